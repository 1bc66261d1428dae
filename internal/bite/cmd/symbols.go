package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"bite/internal/symbols"
	"bite/internal/tokens"
	"bite/internal/ui/colorize"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols [file]",
	Short: "List recovered symbols",
	Example: `
# Only functions with real names
bite symbols --named /path/to/binary

# Imported functions
bite symbols --imports /path/to/app.exe
  `,
	Args: cobra.ExactArgs(1),
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

		named, _ := cmd.Flags().GetBool("named")
		imports, _ := cmd.Flags().GetBool("imports")
		noColor, _ := cmd.Flags().GetBool("no-color")
		color := !noColor && term.IsTerminal(os.Stdout.Fd())
		palette := s.cfg.Colors

		w := bufio.NewWriter(cmd.OutOrStdout())
		defer w.Flush()

		for _, e := range p.Index().Entries() {
			if named && e.Func.Intrinsic() {
				continue
			}
			if imports && e.Source != symbols.SourceImport {
				continue
			}
			line := tokens.NewStream()
			line.Push(fmt.Sprintf("%010X  ", e.Addr), palette.Address)
			if m := e.Func.Module(); m != "" {
				line.Push(m, palette.Root)
				line.Push("!", palette.Delimiter)
			}
			line.Extend(e.Func.Name().Tokens())
			line.Push(fmt.Sprintf("  (%s)", e.Source), palette.Comment)
			fmt.Fprintln(w, colorize.Render(line.Tokens(), color))
		}
		return nil
	},
}

func init() {
	symbolsCmd.Flags().Bool("named", false, "Hide compiler generated symbols")
	symbolsCmd.Flags().Bool("imports", false, "Only show imported symbols")
	symbolsCmd.Flags().Bool("no-color", false, "Disable colors")
}
