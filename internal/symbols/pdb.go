package symbols

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jtang613/gopdb/pkg/pdb"

	"bite/internal/image"
)

// pdbCandidates lists where the PDB recorded in img may live: the recorded
// path, next to the image, then each configured search directory.
func pdbCandidates(img *image.Image, searchPaths []string) []string {
	if img.PDBPath == "" {
		return nil
	}
	// recorded paths are usually Windows paths
	base := img.PDBPath
	if i := strings.LastIndexAny(base, `\/`); i >= 0 {
		base = base[i+1:]
	}

	paths := []string{img.PDBPath}
	if img.Path != "" {
		paths = append(paths, filepath.Join(filepath.Dir(img.Path), base))
	}
	for _, dir := range searchPaths {
		paths = append(paths, filepath.Join(dir, base))
	}
	return paths
}

func findPDB(img *image.Image, searchPaths []string) (string, bool) {
	for _, p := range pdbCandidates(img, searchPaths) {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

func (ix *Index) parsePDB(img *image.Image) error {
	path, ok := findPDB(img, ix.cfg.PDBSearchPaths)
	if !ok {
		if img.PDBPath != "" {
			ix.logger.Debug("pdb not found", "path", img.PDBPath)
		}
		return nil
	}

	p, err := pdb.Open(path)
	if err != nil {
		if ix.cfg.StrictPDB {
			return &PDBError{Path: path, Err: err}
		}
		ix.logger.Warn("failed to parse pdb, using native symbols only", "path", path, "err", err)
		return nil
	}
	defer p.Close()

	var n int
	for _, pub := range p.PublicSymbols() {
		addr, ok := publicAddr(img, pub.Segment, pub.Offset)
		if !ok || pub.Name == "" {
			continue
		}
		ix.insertName(addr, pub.Name, "", SourceDebug)
		n++
	}
	ix.logger.Debug("loaded pdb", "path", path, "publics", n)
	return nil
}

// publicAddr converts a segment:offset pair to an absolute address. Only
// publics that land in code are kept.
func publicAddr(img *image.Image, seg uint16, off uint32) (uint64, bool) {
	if seg == 0 || int(seg) > len(img.SegmentRVAs) {
		return 0, false
	}
	addr := img.Base + uint64(img.SegmentRVAs[seg-1]) + uint64(off)
	sec, ok := img.SectionByAddr(addr)
	if !ok || sec.Kind != image.KindCode || !sec.Contains(addr) {
		return 0, false
	}
	return addr, true
}
