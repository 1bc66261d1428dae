// Package processor partitions the sections of an image into blocks and
// turns them into token streams for display.
package processor

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"bite/internal/config"
	"bite/internal/demangle"
	"bite/internal/disasm"
	"bite/internal/image"
	"bite/internal/logging"
	"bite/internal/symbols"
	"bite/internal/tokens"
)

// Processor owns the analysis of one image. Everything it holds is
// read-only once New returns.
type Processor struct {
	img        *image.Image
	index      *symbols.Index
	dec        disasm.Decoder
	cfg        *config.Config
	logger     *log.Logger
	boundaries []uint64
}

// Open loads the image at path, builds its symbol index, decodes its code
// and computes block boundaries.
func Open(path string, cfg *config.Config, logger *log.Logger) (*Processor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = logging.OrDiscard(logger)

	img, err := image.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	logger.Debug("loaded image", "path", path, "format", img.Format, "arch", img.Arch, "sections", len(img.Sections))

	index := symbols.NewIndex(demangle.New(cfg.Colors, cfg.DemangleCacheSize), cfg, logger)
	if err := index.ParseDebug(img); err != nil {
		return nil, fmt.Errorf("failed to parse debug info: %w", err)
	}
	if err := index.ParseImports(img.Raw, img); err != nil {
		return nil, fmt.Errorf("failed to parse imports: %w", err)
	}
	index.Label()

	dec := disasm.NewSweep(img.Arch, img.Sections, cfg.Colors, cfg.MaxWorkers, logger)
	return New(img, index, dec, cfg, logger), nil
}

// New assembles a processor from pre-built collaborators and computes the
// boundaries of every section.
func New(img *image.Image, index *symbols.Index, dec disasm.Decoder, cfg *config.Config, logger *log.Logger) *Processor {
	if cfg == nil {
		cfg = config.Default()
	}
	if index == nil {
		index = symbols.NewIndex(nil, cfg, logger)
	}
	if dec == nil {
		dec = disasm.NewSweep(image.ArchUnknown, nil, cfg.Colors, 0, logger)
	}
	p := &Processor{
		img:    img,
		index:  index,
		dec:    dec,
		cfg:    cfg,
		logger: logging.OrDiscard(logger),
	}
	p.boundaries = p.ComputeBoundaries(img.Sections)
	return p
}

func (p *Processor) Image() *image.Image { return p.img }
func (p *Processor) Index() *symbols.Index { return p.index }
func (p *Processor) Decoder() disasm.Decoder { return p.dec }
func (p *Processor) Sections() []image.Section { return p.img.Sections }

// Boundaries returns the sorted block start addresses of the image.
func (p *Processor) Boundaries() []uint64 {
	return p.boundaries
}

// Lines tokenizes up to n blocks starting at the first boundary at or after
// from. n <= 0 means every remaining block.
func (p *Processor) Lines(from uint64, n int) []*tokens.Stream {
	i := sort.Search(len(p.boundaries), func(i int) bool { return p.boundaries[i] >= from })

	var out []*tokens.Stream
	for ; i < len(p.boundaries); i++ {
		for _, b := range p.BlocksAt(p.boundaries[i]) {
			if n > 0 && len(out) == n {
				return out
			}
			s := tokens.NewStream()
			b.Tokenize(s, p.cfg.Colors)
			out = append(out, s)
		}
	}
	return out
}
