package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	pathpkg "path/filepath"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"qemutrace/internal/config"
	"qemutrace/internal/elfx"
	"qemutrace/internal/logging"
	qlog "qemutrace/internal/qemutrace/log"
	"qemutrace/internal/trace"
	"qemutrace/internal/ui/colorize"
	"qemutrace/internal/ui/view"
)

// defaultConfig is read from the working directory when --config is absent.
const defaultConfig = "qemutrace.yaml"

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./"+defaultConfig+" if present)")
	rootCmd.PersistentFlags().StringP("target", "t", "", "Target shorthand: armel, armeb, mipsel or mipseb")
	rootCmd.PersistentFlags().StringP("arch", "a", "", "Guest architecture: arm or mips")
	rootCmd.PersistentFlags().StringP("endian", "e", "", "Guest byte order: little or big")
	rootCmd.PersistentFlags().StringP("mode", "m", "", "Snapshot production: eager or streaming")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to this file")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colouring")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Print a summary instead of starting the navigator")
	rootCmd.Flags().String("elf", "", "Guest ELF image for symbol labels")
	rootCmd.Flags().Int("start", 0, "Snapshot id to open at")

	rootCmd.AddCommand(linesCmd, parseCmd, showCmd, viewCmd, followCmd, schemaCmd)
}

var rootCmd = &cobra.Command{
	Use:   "qemutrace [log]",
	Short: "Explore QEMU execution traces",
	Long: `Qemutrace reads logs written by QEMU with -d in_asm,cpu,int and turns them into
register snapshots and translated blocks you can step through backwards and forwards.`,
	Example: `
# Browse a trace of a little-endian ARM guest
qemutrace -t armel qemu.log

# Print a summary without the navigator
qemutrace -t mipseb -n qemu.log
  `,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		st, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		qlog.Setup(st.cfg.LogFile, st.cfg.Debug)
		cmd.SetContext(withSettings(cmd.Context(), st))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		noTUI, _ := cmd.Flags().GetBool("no-tui")
		if !term.IsTerminal(os.Stdout.Fd()) {
			noTUI = true
		}
		if noTUI {
			return runSummary(cmd, args[0])
		}
		return runView(cmd, args[0])
	},
}

// settings is the merged result of the config file and the command line.
type settings struct {
	cfg    config.Config
	arch   trace.Arch
	endian trace.Endian
	mode   trace.Mode
	logger *charmlog.Logger
}

type settingsKey struct{}

func withSettings(ctx context.Context, st *settings) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, settingsKey{}, st)
}

func settingsFrom(cmd *cobra.Command) (*settings, error) {
	if st, ok := cmd.Context().Value(settingsKey{}).(*settings); ok {
		return st, nil
	}
	return loadSettings(cmd)
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	optional := path == ""
	if optional {
		path = defaultConfig
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, err
	}

	str := func(name string, dst *string) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	boolean := func(name string, dst *bool) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			*dst, _ = flags.GetBool(name)
		}
	}
	if flags.Changed("arch") || flags.Changed("endian") {
		cfg.Target = ""
	}
	str("target", &cfg.Target)
	str("arch", &cfg.Arch)
	str("endian", &cfg.Endian)
	str("mode", &cfg.Mode)
	str("format", &cfg.Format)
	str("out", &cfg.OutDir)
	str("log-file", &cfg.LogFile)
	boolean("no-color", &cfg.NoColor)
	boolean("debug", &cfg.Debug)
	if f := flags.Lookup("limit"); f != nil && f.Changed {
		cfg.Limit, _ = flags.GetInt("limit")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st := &settings{cfg: cfg}
	if st.arch, st.endian, err = cfg.Machine(); err != nil {
		return nil, err
	}
	if st.mode, err = trace.ParseMode(cfg.Mode); err != nil {
		return nil, err
	}
	if cfg.NoColor {
		colorize.Disable()
	}

	lg := logging.NewLoggerWithWriter(cmd.ErrOrStderr())
	if cfg.Debug {
		lg.SetLevel(charmlog.DebugLevel)
	}
	st.logger = lg.Logger
	return st, nil
}

// openSource opens path with the command's settings. Mode overrides the
// configured one unless it is nil.
func openSource(cmd *cobra.Command, path string, mode *trace.Mode) (*trace.Source, *settings, error) {
	st, err := settingsFrom(cmd)
	if err != nil {
		return nil, nil, err
	}
	m := st.mode
	if mode != nil {
		m = *mode
	}
	src, err := trace.Open(st.arch, st.endian, path, trace.WithLogger(st.logger), trace.WithMode(m))
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("opened trace", "path", path, "arch", st.arch, "endian", st.endian, "mode", m)
	return src, st, nil
}

// openELF loads the --elf image if one was given and checks it against the
// trace target.
func openELF(cmd *cobra.Command, st *settings) (*elfx.Image, error) {
	path, _ := cmd.Flags().GetString("elf")
	if path == "" {
		return nil, nil
	}
	im, err := elfx.Open(path)
	if err != nil {
		return nil, err
	}
	if err := im.Match(st.arch, st.endian); err != nil {
		slog.Warn("ELF image does not match trace", "error", err)
	}
	return im, nil
}

func runSummary(cmd *cobra.Command, path string) error {
	eager := trace.Eager
	src, _, err := openSource(cmd, path, &eager)
	if err != nil {
		return err
	}
	c, err := src.Corpus()
	if err != nil {
		return err
	}
	printStats(cmd.OutOrStdout(), pathpkg.Base(path), c.Stats(), src.Dropped())
	return nil
}

func runView(cmd *cobra.Command, path string) error {
	eager := trace.Eager
	src, st, err := openSource(cmd, path, &eager)
	if err != nil {
		return err
	}
	if st.mode == trace.Streaming {
		return fmt.Errorf("view: %w", trace.ErrStreaming)
	}
	elf, err := openELF(cmd, st)
	if err != nil {
		return err
	}
	if elf != nil {
		defer elf.Close()
	}
	start, _ := cmd.Flags().GetInt("start")

	program := tea.NewProgram(
		view.New(src, elf, start),
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)
	final, err := program.Run()
	if err != nil {
		slog.Error("TUI run error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}
	if m, ok := final.(view.Model); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}

func Execute() {
	// Plain cobra when output is piped or the navigator is off, so fang does
	// not restyle machine-readable output.
	plain := !term.IsTerminal(os.Stdout.Fd())
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" {
			plain = true
			break
		}
	}

	var err error
	if plain {
		err = rootCmd.Execute()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	} else {
		err = fang.Execute(
			context.Background(),
			rootCmd,
			fang.WithNotifySignal(os.Interrupt),
		)
	}
	if err != nil {
		if errors.Is(err, trace.ErrSemantic) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
