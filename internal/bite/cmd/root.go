package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	pathpkg "path/filepath"
	"runtime/pprof"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	bitelog "bite/internal/bite/log"
	"bite/internal/config"
	"bite/internal/image"
	"bite/internal/logging"
	"bite/internal/processor"
	"bite/internal/tokens"
	"bite/internal/ui/colorize"
)

var cpuProfile *os.File

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (yaml, toml or json)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().String("cpuprofile", "", "Write CPU profile to file")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().StringP("section", "s", "", "Only list the named section")
	rootCmd.Flags().IntP("limit", "n", 0, "Stop after this many blocks")
	rootCmd.Flags().Bool("no-color", false, "Disable colors")

	rootCmd.AddCommand(symbolsCmd, infoCmd, schemaCmd)
}

var rootCmd = &cobra.Command{
	Use:   "bite [file]",
	Short: "Terminal-based disassembler",
	Long: `Bite lists the contents of an ELF, PE or Mach-O executable as blocks:
instructions, pointers, strings, structured records and raw bytes, with symbols
recovered from debug info, imports and mangled names.`,
	Example: `
# List a whole binary
bite /path/to/binary

# List the first 50 blocks of .text
bite -s .text -n 50 /path/to/binary

# Run with debug logging
bite -d /path/to/binary
  `,
	Args: cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("cpuprofile")
		if path == "" {
			return nil
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		cpuProfile = f
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cpuProfile != nil {
			pprof.StopCPUProfile()
			cpuProfile.Close()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := setup(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		p, err := s.open(args[0])
		if err != nil {
			return err
		}

		section, _ := cmd.Flags().GetString("section")
		limit, _ := cmd.Flags().GetInt("limit")
		noColor, _ := cmd.Flags().GetBool("no-color")
		color := !noColor && term.IsTerminal(os.Stdout.Fd())

		w := bufio.NewWriter(cmd.OutOrStdout())
		defer w.Flush()

		if section == "" {
			for _, line := range p.Lines(0, limit) {
				fmt.Fprintln(w, colorize.Render(line.Tokens(), color))
			}
			return nil
		}
		return listSection(w, p, section, limit, color, s.cfg.Colors)
	},
}

// listSection prints the blocks from the start to the end of one section.
func listSection(w io.Writer, p *processor.Processor, name string, limit int, color bool, palette tokens.Palette) error {
	var sec *image.Section
	for i, s := range p.Sections() {
		if s.Name == name {
			sec = &p.Sections()[i]
			break
		}
	}
	if sec == nil {
		return fmt.Errorf("no section named %q", name)
	}

	n := 0
	for _, addr := range p.Boundaries() {
		if addr < sec.Start || addr > sec.End {
			continue
		}
		for _, b := range p.BlocksAt(addr) {
			if limit > 0 && n == limit {
				return nil
			}
			s := tokens.NewStream()
			b.Tokenize(s, palette)
			fmt.Fprintln(w, colorize.Render(s.Tokens(), color))
			n++
		}
	}
	return nil
}

// session carries what every subcommand needs to analyze a file.
type session struct {
	cfg    *config.Config
	logger *logging.LoggerCloser
}

func setup(cmd *cobra.Command) (*session, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	bitelog.Setup("", debug)

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger()
	if debug {
		logger.SetLevel(log.DebugLevel)
	}
	return &session{cfg: cfg, logger: logger}, nil
}

func (s *session) Close() error {
	return s.logger.Close()
}

func (s *session) open(file string) (*processor.Processor, error) {
	absPath, err := pathpkg.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", file)
		}
		return nil, fmt.Errorf("cannot access file: %w", err)
	}
	return processor.Open(absPath, s.cfg, s.logger.Logger)
}

func Execute() {
	// fang renders help and errors for humans; pipes get plain cobra
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}
