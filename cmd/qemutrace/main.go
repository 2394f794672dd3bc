// Command qemutrace turns QEMU "-d in_asm,cpu,int" logs of ARM and MIPS
// guests into register snapshots and translated blocks, and lets you step
// through them. See "qemutrace --help" for the subcommands.
//
// Setting QEMUTRACE_PROFILE serves net/http/pprof, on localhost:6060 or on
// the host:port given as its value.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	_ "net/http/pprof" // profiling

	"qemutrace/internal/qemutrace/cmd"
	"qemutrace/internal/qemutrace/log"
)

const defaultProfileAddr = "localhost:6060"

func main() {
	defer log.RecoverPanic("main", func() {
		slog.Error("Application terminated due to unhandled panic")
	})

	if addr := profileAddr(os.Getenv("QEMUTRACE_PROFILE")); addr != "" {
		go func() {
			slog.Info("Serving pprof", "addr", addr)
			if httpErr := http.ListenAndServe(addr, nil); httpErr != nil {
				slog.Error("Failed to pprof listen", "error", httpErr)
			}
		}()
	}

	cmd.Execute()
}

// profileAddr maps the QEMUTRACE_PROFILE value to a listen address; "" turns
// profiling off.
func profileAddr(v string) string {
	switch {
	case v == "":
		return ""
	case strings.Contains(v, ":"):
		return v
	default:
		return defaultProfileAddr
	}
}
