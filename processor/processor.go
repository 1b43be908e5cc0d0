// Package processor post-processes a mirrored site in place: it moves
// duplicate pages to their canonical location, writes redirect pages, makes
// links relative and cleans up leftover query-string filenames.
//
// All paths handled here are slash-separated and relative to the copy root
// of the afero.Fs the Processor was built with.
package processor

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"sitecopy/logger"
)

var (
	ErrInvalidSiteURL = errors.New("invalid site URL")
	ErrParseFailed    = errors.New("parsing failed")
)

type Config struct {
	// SiteURL is the root URL that was mirrored. Absolute links to its host are made relative.
	SiteURL string
	// DryRun logs every mutation instead of performing it.
	DryRun bool
	// TrackingParams overrides DefaultTrackingParams when non-nil.
	TrackingParams []string
}

// Stats summarises one pass over the tree.
type Stats struct {
	Scanned        int
	Changed        int
	LinksRewritten int
	Moved          int
	Removed        int
	Conflicts      int
	Warnings       int
}

func (s Stats) fields() []logger.Field {
	return []logger.Field{
		logger.Int("scanned", s.Scanned),
		logger.Int("changed", s.Changed),
		logger.Int("links_rewritten", s.LinksRewritten),
		logger.Int("moved", s.Moved),
		logger.Int("removed", s.Removed),
		logger.Int("conflicts", s.Conflicts),
		logger.Int("warnings", s.Warnings),
	}
}

type Processor struct {
	fs   afero.Fs
	cfg  Config
	site *Site
	norm *Normalizer
	log  logger.Logger
}

// New returns a Processor working on fsys, whose root is the copy root.
func New(fsys afero.Fs, cfg Config, log logger.Logger) (*Processor, error) {
	site, err := NewSite(cfg.SiteURL)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{
		fs:   fsys,
		cfg:  cfg,
		site: site,
		norm: NewNormalizer(cfg.TrackingParams),
		log:  log.With(logger.Bool("dry_run", cfg.DryRun)),
	}, nil
}

// Normalizer exposes the normalizer built from the configured tracking parameters.
func (p *Processor) Normalizer() *Normalizer { return p.norm }

// Depth is the number of folders between the copy root and the file at rel.
func Depth(rel string) int {
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return 0
	}
	return len(splitPath(dir))
}

func isHTML(rel string) bool {
	ext := strings.ToLower(path.Ext(rel))
	return ext == ".html" || ext == ".htm"
}

func isCSS(rel string) bool {
	return strings.ToLower(path.Ext(rel)) == ".css"
}

// collect walks the tree and returns the slash paths of regular files
// accepted by keep, sorted.
func (p *Processor) collect(keep func(rel string) bool) ([]string, error) {
	var files []string
	err := afero.Walk(p.fs, ".", func(fpath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := filepath.ToSlash(fpath)
		if keep(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk copy root: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (p *Processor) isFile(rel string) bool {
	info, err := p.fs.Stat(rel)
	return err == nil && info.Mode().IsRegular()
}

// writeIfChanged writes content to rel unless the file already holds exactly that.
func (p *Processor) writeIfChanged(rel string, content []byte) (bool, error) {
	if old, err := afero.ReadFile(p.fs, rel); err == nil && bytes.Equal(old, content) {
		return false, nil
	}
	if p.cfg.DryRun {
		p.log.Info("would write", logger.String("path", rel))
		return true, nil
	}
	if err := afero.WriteFile(p.fs, rel, content, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", rel, err)
	}
	return true, nil
}

func (p *Processor) remove(rel string) error {
	if p.cfg.DryRun {
		p.log.Info("would remove", logger.String("path", rel))
		return nil
	}
	if err := p.fs.Remove(rel); err != nil {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}

func (p *Processor) move(from, to string) error {
	if p.cfg.DryRun {
		p.log.Info("would move", logger.String("from", from), logger.String("to", to))
		return nil
	}
	if err := p.fs.MkdirAll(path.Dir(to), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", path.Dir(to), err)
	}
	if err := p.fs.Rename(from, to); err != nil {
		return fmt.Errorf("move %s: %w", from, err)
	}
	return nil
}

// sameContent reports whether two files hold identical bytes.
func (p *Processor) sameContent(a, b string) (bool, error) {
	ba, err := afero.ReadFile(p.fs, a)
	if err != nil {
		return false, err
	}
	bb, err := afero.ReadFile(p.fs, b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ba, bb), nil
}
