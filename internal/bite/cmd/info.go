package cmd

import (
	"fmt"
	"os"
	pathpkg "path/filepath"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"bite/internal/bite/styles"
	"bite/internal/processor"
	"bite/internal/symbols"
)

var infoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Summarize an executable",
	Args:  cobra.ExactArgs(1),
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

		md := summary(p)
		if !term.IsTerminal(os.Stdout.Fd()) {
			fmt.Fprint(cmd.OutOrStdout(), md)
			return nil
		}

		width := 100
		if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
			width = w
		}
		theme, _ := cmd.Flags().GetString("theme")
		out, err := styles.GetMarkdownRenderer(width, styles.Theme(theme)).Render(md)
		if err != nil {
			return fmt.Errorf("failed to render summary: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	infoCmd.Flags().String("theme", string(styles.ThemeCharm), "Markdown theme (charm or vscode)")
}

// summary describes the image, its sections and its symbols as markdown.
func summary(p *processor.Processor) string {
	img := p.Image()
	ix := p.Index()

	var imports int
	for _, e := range ix.Entries() {
		if e.Source == symbols.SourceImport {
			imports++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", pathpkg.Base(img.Path))
	fmt.Fprintf(&b, "- **Format:** %s\n", img.Format)
	fmt.Fprintf(&b, "- **Architecture:** %s\n", img.Arch)
	fmt.Fprintf(&b, "- **Size:** %s\n", humanize.Bytes(uint64(len(img.Raw))))
	fmt.Fprintf(&b, "- **Entry:** `%#x`\n", img.Entry)
	if img.PDBPath != "" {
		fmt.Fprintf(&b, "- **PDB:** `%s`\n", img.PDBPath)
	}
	fmt.Fprintf(&b, "- **Symbols:** %s (%s named, %s imported)\n",
		humanize.Comma(int64(ix.Len())), humanize.Comma(int64(ix.NamedLen())), humanize.Comma(int64(imports)))
	fmt.Fprintf(&b, "- **Blocks:** %s\n\n", humanize.Comma(int64(len(p.Boundaries()))))

	b.WriteString("## Sections\n\n")
	b.WriteString("| Name | Kind | Start | End | Size |\n")
	b.WriteString("|------|------|-------|-----|------|\n")
	for _, sec := range p.Sections() {
		fmt.Fprintf(&b, "| `%s` | %s | `%#x` | `%#x` | %s |\n",
			sec.Name, sec.Kind, sec.Start, sec.End, humanize.Bytes(sec.Size()))
	}
	return b.String()
}
