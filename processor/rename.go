package processor

import (
	"path"
	"strings"
)

// RenameQueryFiles moves files whose name still carries a query string to
// their canonical name: pages get the encoded "|key__value.html" form and
// assets lose the query. Collisions are handled as in Dedupe.
func (p *Processor) RenameQueryFiles() (Stats, error) {
	var st Stats
	files, err := p.collect(func(rel string) bool {
		return strings.Contains(path.Base(rel), "?")
	})
	if err != nil {
		return st, err
	}
	for _, rel := range files {
		st.Scanned++
		target := p.norm.Canonicalize(rel).Path
		if target == rel || target == "" {
			continue
		}
		if err := p.settle(rel, target, &st); err != nil {
			return st, err
		}
	}
	p.log.Info("rename finished", st.fields()...)
	return st, nil
}
