package trace

import (
	"errors"
	"fmt"
)

var (
	// ErrStructural marks a line that cannot be tokenized for the state it
	// arrived in. The open record is dropped and parsing continues.
	ErrStructural = errors.New("trace: malformed record line")
	// ErrSemantic marks a well-formed line carrying an impossible value, such
	// as reserved mode bits or an unknown exception ordinal. It aborts the pass.
	ErrSemantic = errors.New("trace: undecodable value")

	// ErrChainOrder rejects a block that does not follow its chain's tail.
	ErrChainOrder = errors.New("trace: block out of log order")
	// ErrSequence rejects snapshot ids that are not 0..N-1.
	ErrSequence = errors.New("trace: snapshot ids are not dense")

	ErrStreaming     = errors.New("trace: snapshot history is not retained in streaming mode")
	ErrConsumed      = errors.New("trace: streaming source already consumed")
	ErrUnknownArch   = errors.New("trace: unknown architecture")
	ErrUnknownEndian = errors.New("trace: unknown endianness")
)

// DecodeError locates a parse failure in the log.
type DecodeError struct {
	Line  int
	State string
	Text  string
	Err   error
	msg   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d (%s): %s: %q", e.Line, e.State, e.msg, e.Text)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func structural(state, text, format string, args ...any) *DecodeError {
	return &DecodeError{State: state, Text: text, Err: ErrStructural, msg: fmt.Sprintf(format, args...)}
}

func semantic(state, text, format string, args ...any) *DecodeError {
	return &DecodeError{State: state, Text: text, Err: ErrSemantic, msg: fmt.Sprintf(format, args...)}
}
