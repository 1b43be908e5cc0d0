package processor

import (
	"fmt"
	"html"
	"time"

	"github.com/spf13/afero"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"sitecopy/logger"
)

// StampName is the meta name carrying the copy stamp.
const StampName = "static-copy"

// Stamp renders the meta tag recording where and when the copy was made.
func Stamp(source string, when time.Time) string {
	content := when.UTC().Format("2006-01-02")
	if source != "" {
		content = source + " " + content
	}
	return fmt.Sprintf(`<meta name="%s" content="%s">`, StampName, html.EscapeString(content))
}

// stampPage drops any existing stamp and inserts stamp right after <head>.
// ok is false when the page has no head element.
func stampPage(content []byte, stamp string) (out []byte, ok bool, err error) {
	out, err = scanTokens(content, func(z *xhtml.Tokenizer, tt xhtml.TokenType, raw []byte) []byte {
		if tt != xhtml.StartTagToken && tt != xhtml.SelfClosingTagToken {
			return raw
		}
		tok := z.Token()
		switch tok.DataAtom {
		case atom.Head:
			if ok {
				return raw
			}
			ok = true
			return append(raw, stamp...)
		case atom.Meta:
			for _, a := range tok.Attr {
				if a.Key == "name" && a.Val == StampName {
					return nil
				}
			}
		}
		return raw
	})
	return out, ok, err
}

// Tag stamps every HTML page with a meta tag naming the source site and the
// copy date. Pages already carrying the same stamp are left untouched.
func (p *Processor) Tag(when time.Time) (Stats, error) {
	var st Stats
	files, err := p.collect(isHTML)
	if err != nil {
		return st, err
	}
	stamp := Stamp(p.cfg.SiteURL, when)
	for _, rel := range files {
		st.Scanned++
		content, err := afero.ReadFile(p.fs, rel)
		if err != nil {
			return st, fmt.Errorf("read %s: %w", rel, err)
		}
		out, ok, err := stampPage(content, stamp)
		if err != nil {
			st.Warnings++
			p.log.Warn("cannot parse page, not tagged", logger.String("path", rel), logger.Error(err))
			continue
		}
		if !ok {
			st.Warnings++
			p.log.Warn("page has no head element, not tagged", logger.String("path", rel))
			continue
		}
		written, err := p.writeIfChanged(rel, out)
		if err != nil {
			return st, err
		}
		if written {
			st.Changed++
		}
	}
	p.log.Info("tag finished", st.fields()...)
	return st, nil
}
