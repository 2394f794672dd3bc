// Package colorize highlights disassembly for terminal output.
package colorize

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"qemutrace/internal/trace"
)

// EnvNoColor disables colouring when set to any value.
const EnvNoColor = "QEMUTRACE_NO_COLOR"

// Enabled reports whether output should be coloured.
func Enabled() bool {
	return os.Getenv(EnvNoColor) == ""
}

// Disable turns colouring off for the rest of the process.
func Disable() {
	os.Setenv(EnvNoColor, "1")
}

var lexerCandidates = map[trace.Arch][]string{
	trace.ARM:  {"armasm", "gas", "nasm"},
	trace.MIPS: {"gas", "nasm"},
}

// getAssemblyLexer returns the first available lexer for arch.
func getAssemblyLexer(arch trace.Arch) chroma.Lexer {
	for _, name := range lexerCandidates[arch] {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

func getDisasmStyle() *chroma.Style {
	for _, name := range []string{"disasm-dark", "dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

func getTerminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// Code highlights a listing of instructions for arch. Errors fall back to the
// plain text.
func Code(arch trace.Arch, code string) string {
	if !Enabled() {
		return code
	}
	lexer := getAssemblyLexer(arch)
	if lexer == nil {
		return code
	}
	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getDisasmStyle(), iterator); err != nil {
		return code
	}
	out := buf.String()
	// Some lexers append a newline; it may sit inside a colour escape.
	if !strings.HasSuffix(code, "\n") {
		if i := strings.LastIndex(out, "\n"); i >= 0 && StripANSI(out[i+1:]) == "" {
			out = out[:i] + out[i+1:]
		}
	}
	return out
}

// Instruction renders "addr  raw  text" with the address and raw word dimmed.
// An empty text marks a word neither QEMU nor the fallback decoder understood.
func Instruction(arch trace.Arch, addr, raw, text string) string {
	if !Enabled() {
		if text == "" {
			return fmt.Sprintf("%s  %-8s  (undecoded)", addr, raw)
		}
		return fmt.Sprintf("%s  %-8s  %s", addr, raw, text)
	}
	addrColored := fmt.Sprintf("\033[38;2;79;79;79m%s\033[0m", addr)
	rawColored := fmt.Sprintf("\033[38;2;124;156;157m%-8s\033[0m", raw)
	if text == "" {
		return fmt.Sprintf("%s  %s  \033[38;2;255;95;135m(undecoded)\033[0m", addrColored, rawColored)
	}
	return fmt.Sprintf("%s  %s  %s", addrColored, rawColored, Code(arch, text))
}

// Label renders a symbol label line above a run of instructions.
func Label(name string) string {
	if !Enabled() {
		return name + ":"
	}
	return fmt.Sprintf("\033[38;2;255;215;0m%s:\033[0m", name)
}

// StripANSI removes colour escapes.
func StripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
