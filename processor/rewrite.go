package processor

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"sitecopy/logger"
)

var (
	cssURLRegex   = regexp.MustCompile(`url\(\s*(?:'([^']*)'|"([^"]*)"|([^'"\)\s]+))\s*\)`)
	linkAttrNames = map[string]bool{"src": true, "href": true, "action": true, "poster": true}
)

// rewriteFunc maps one reference to its replacement.
type rewriteFunc func(raw string) string

// tokenVisitor returns the bytes to emit for the current token. raw is a
// private copy of the token's source bytes.
type tokenVisitor func(z *html.Tokenizer, tt html.TokenType, raw []byte) []byte

// scanTokens re-emits an HTML document token by token, letting visit replace
// any of them. Untouched tokens are copied byte for byte.
func scanTokens(content []byte, visit tokenVisitor) ([]byte, error) {
	z := html.NewTokenizer(bytes.NewReader(content))
	var out bytes.Buffer
	out.Grow(len(content))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrParseFailed, z.Err())
		}
		raw := append([]byte(nil), z.Raw()...)
		out.Write(visit(z, tt, raw))
	}
	return out.Bytes(), nil
}

// rewriteHTML applies fn to every reference-bearing attribute, to inline
// style attributes and to <style> blocks. It returns the new content and the
// number of references that changed; with zero changes content is returned as is.
func rewriteHTML(content []byte, fn rewriteFunc) ([]byte, int, error) {
	changed := 0
	inStyle := false
	out, err := scanTokens(content, func(z *html.Tokenizer, tt html.TokenType, raw []byte) []byte {
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom == atom.Style && tt == html.StartTagToken {
				inStyle = true
			}
			n := rewriteAttrs(&tok, fn)
			if n == 0 {
				return raw
			}
			changed += n
			return []byte(tok.String())
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "style" {
				inStyle = false
			}
		case html.TextToken:
			if inStyle {
				css, n := rewriteCSS(string(raw), fn)
				changed += n
				return []byte(css)
			}
		}
		return raw
	})
	if err != nil {
		return content, 0, err
	}
	if changed == 0 {
		return content, 0, nil
	}
	return out, changed, nil
}

func rewriteAttrs(tok *html.Token, fn rewriteFunc) int {
	n := 0
	for i, a := range tok.Attr {
		if a.Namespace != "" {
			continue
		}
		val := a.Val
		switch {
		case linkAttrNames[a.Key]:
			val = fn(a.Val)
		case a.Key == "srcset":
			val = rewriteSrcset(a.Val, fn)
		case a.Key == "style":
			val, _ = rewriteCSS(a.Val, fn)
		}
		if val != a.Val {
			tok.Attr[i].Val = val
			n++
		}
	}
	return n
}

// rewriteSrcset rewrites each candidate of a srcset list independently. The
// list is rejoined with "," only when a candidate changed.
func rewriteSrcset(srcset string, fn rewriteFunc) string {
	candidates := parseSrcset(srcset)
	parts := make([]string, len(candidates))
	changed := false
	for i, c := range candidates {
		u := fn(c.url)
		if u != c.url {
			changed = true
		}
		if c.descriptor != "" {
			u += " " + c.descriptor
		}
		parts[i] = u
	}
	if !changed {
		return srcset
	}
	return strings.Join(parts, ",")
}

type srcsetCandidate struct {
	url        string
	descriptor string
}

const srcsetSpace = " \t\n\r\f"

// parseSrcset splits a srcset value into candidates. A comma ends the URL of
// a candidate, except in a data: URL where only whitespace does; otherwise
// it ends the descriptor.
func parseSrcset(srcset string) []srcsetCandidate {
	var out []srcsetCandidate
	s := srcset
	for {
		s = strings.TrimLeft(s, srcsetSpace+",")
		if s == "" {
			return out
		}
		end := srcsetURLEnd(s)
		c := srcsetCandidate{url: s[:end]}
		s = s[end:]
		switch {
		case strings.HasSuffix(c.url, ","):
			c.url = strings.TrimRight(c.url, ",")
		case strings.HasPrefix(s, ","):
			s = s[1:]
		default:
			var d string
			d, s, _ = strings.Cut(s, ",")
			c.descriptor = strings.TrimSpace(d)
		}
		out = append(out, c)
	}
}

func srcsetURLEnd(s string) int {
	data := len(s) >= 5 && strings.EqualFold(s[:5], "data:")
	for i := 0; i < len(s); i++ {
		switch {
		case strings.IndexByte(srcsetSpace, s[i]) >= 0:
			return i
		case s[i] == ',' && !data:
			return i
		}
	}
	return len(s)
}

// rewriteCSS applies fn to every url(...) in css, replacing only the URL
// text inside each match.
func rewriteCSS(css string, fn rewriteFunc) (string, int) {
	matches := cssURLRegex.FindAllStringSubmatchIndex(css, -1)
	if matches == nil {
		return css, 0
	}
	var b strings.Builder
	last, n := 0, 0
	for _, m := range matches {
		for g := 2; g < len(m); g += 2 {
			start, end := m[g], m[g+1]
			if start < 0 {
				continue
			}
			raw := css[start:end]
			nu := fn(raw)
			if nu != raw {
				b.WriteString(css[last:start])
				b.WriteString(nu)
				last = end
				n++
			}
			break
		}
	}
	if n == 0 {
		return css, 0
	}
	b.WriteString(css[last:])
	return b.String(), n
}

// rewriteDocument dispatches on the file type of rel.
func rewriteDocument(rel string, content []byte, fn rewriteFunc) ([]byte, int, error) {
	if isCSS(rel) {
		css, n := rewriteCSS(string(content), fn)
		if n == 0 {
			return content, 0, nil
		}
		return []byte(css), n, nil
	}
	return rewriteHTML(content, fn)
}

// relinkReference is the link rewriting rule for a document at depth.
func (p *Processor) relinkReference(raw string, depth int) string {
	switch ref := ParseReference(raw, p.site).(type) {
	case Internal:
		out := p.norm.Normalize(ref.Path, true)
		if ref.RootRelative() {
			out = Relative(out, depth)
		} else if out == "" {
			out = "./"
		}
		if ref.Fragment != "" {
			out += "#" + ref.Fragment
		}
		return out
	case External:
		return raw
	}
	return raw
}

// rebaseReference keeps a relative reference pointing at the same target
// after its document moved from directory from to directory to.
func (p *Processor) rebaseReference(raw, from, to string) string {
	ref, ok := ParseReference(raw, p.site).(Internal)
	if !ok || ref.RootRelative() || ref.Path == "" || strings.HasPrefix(ref.Path, "?") {
		return raw
	}
	target, query, hasQuery := strings.Cut(ref.Path, "?")
	abs := path.Join(from, target)
	if strings.HasSuffix(target, "/") {
		abs += "/"
	}
	out := relativeTo(to, abs)
	if hasQuery {
		out += "?" + query
	}
	if ref.Fragment != "" {
		out += "#" + ref.Fragment
	}
	return out
}

// Relink rewrites the references of every HTML and CSS document to
// normalized paths relative to the document. Files whose references are
// already in final form are not written.
func (p *Processor) Relink() (Stats, error) {
	var st Stats
	files, err := p.collect(func(rel string) bool { return isHTML(rel) || isCSS(rel) })
	if err != nil {
		return st, err
	}
	for _, rel := range files {
		st.Scanned++
		content, err := afero.ReadFile(p.fs, rel)
		if err != nil {
			return st, fmt.Errorf("read %s: %w", rel, err)
		}
		depth := Depth(rel)
		out, n, err := rewriteDocument(rel, content, func(raw string) string {
			return p.relinkReference(raw, depth)
		})
		if err != nil {
			st.Warnings++
			p.log.Warn("cannot parse document", logger.String("path", rel), logger.Error(err))
			continue
		}
		if n == 0 {
			continue
		}
		written, err := p.writeIfChanged(rel, out)
		if err != nil {
			return st, err
		}
		if written {
			st.Changed++
			st.LinksRewritten += n
			p.log.Debug("relinked", logger.String("path", rel), logger.Int("links", n))
		}
	}
	p.log.Info("relink finished", st.fields()...)
	return st, nil
}
