package processor

import (
	"fmt"
	"path"

	"github.com/spf13/afero"

	"sitecopy/logger"
)

// Dedupe moves every HTML document that is not an index.html to its
// canonical location. When the canonical file already exists the document is
// deleted if both are byte-identical and kept, with a conflict warning,
// otherwise. It must run before Relink.
func (p *Processor) Dedupe() (Stats, error) {
	var st Stats
	files, err := p.collect(func(rel string) bool {
		return isHTML(rel) && path.Base(rel) != IndexFile
	})
	if err != nil {
		return st, err
	}
	for _, rel := range files {
		st.Scanned++
		target := p.norm.Canonicalize(rel).Path
		if target == rel {
			continue
		}
		if err := p.settle(rel, target, &st); err != nil {
			return st, err
		}
	}
	p.log.Info("dedupe finished", st.fields()...)
	return st, nil
}

// settle resolves rel against its canonical location target: delete when
// identical, warn when different, move when absent.
func (p *Processor) settle(rel, target string, st *Stats) error {
	log := p.log.With(logger.String("path", rel), logger.String("canonical", target))

	if p.isFile(target) {
		same, err := p.sameContent(rel, target)
		if err != nil {
			return fmt.Errorf("compare %s: %w", rel, err)
		}
		if !same {
			st.Conflicts++
			log.Warn("duplicate with different content, keeping both")
			return nil
		}
		if err := p.remove(rel); err != nil {
			return err
		}
		st.Removed++
		log.Debug("removed duplicate")
		return nil
	}

	content, err := afero.ReadFile(p.fs, rel)
	if err != nil {
		return fmt.Errorf("read %s: %w", rel, err)
	}
	if err := p.move(rel, target); err != nil {
		return err
	}
	st.Moved++
	log.Debug("moved to canonical location")

	from, to := path.Dir(rel), path.Dir(target)
	// The old name may carry a query string, so the type comes from target.
	if from == to || !(isHTML(target) || isCSS(target)) {
		return nil
	}
	// Relative references were written for the old folder.
	out, n, err := rewriteDocument(target, content, func(raw string) string {
		return p.rebaseReference(raw, from, to)
	})
	if err != nil {
		st.Warnings++
		log.Warn("cannot rebase references", logger.Error(err))
		return nil
	}
	if n == 0 || p.cfg.DryRun {
		return nil
	}
	if _, err := p.writeIfChanged(target, out); err != nil {
		return err
	}
	return nil
}
