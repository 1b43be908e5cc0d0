// Package wgetlog parses the stderr log written by GNU Wget during a mirror run.
//
// The log is scanned forward once. Lines ending in a bare URL move the current
// URL cursor; "Location:" lines record a redirect for the current URL and
// "ERROR <code>:" lines record a failed request for it.
package wgetlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// ErrMalformedLog is matched by every MalformedLogError.
var ErrMalformedLog = errors.New("malformed wget log")

var (
	locationRegex = regexp.MustCompile(`^Location: ([^\s]+) `)
	urlRegex      = regexp.MustCompile(`\s(http[^\s]+)$`)
	errorRegex    = regexp.MustCompile(`\sERROR (\d+):`)
)

// MalformedLogError reports a line that cannot be attributed to a URL.
type MalformedLogError struct {
	Line   int
	Text   string
	Reason string
}

func (e *MalformedLogError) Error() string {
	return fmt.Sprintf("%s: line %d: %s: %q", ErrMalformedLog, e.Line, e.Reason, e.Text)
}

func (e *MalformedLogError) Is(target error) bool {
	return target == ErrMalformedLog
}

// Kind classifies a log line.
type Kind int

const (
	KindNone Kind = iota
	KindPlainURL
	KindRedirect
	KindError
)

// Record is one classified log line. Target is set for redirects, Code for errors.
type Record struct {
	Kind   Kind
	URL    string
	Target string
	Code   int
}

// ParseLine classifies a single line. The returned record carries no current
// URL for redirects and errors; that is resolved by Parse.
func ParseLine(line string) Record {
	line = strings.TrimRight(line, "\r")
	if m := locationRegex.FindStringSubmatch(line); m != nil {
		return Record{Kind: KindRedirect, Target: m[1]}
	}
	if m := urlRegex.FindStringSubmatch(line); m != nil {
		return Record{Kind: KindPlainURL, URL: m[1]}
	}
	if m := errorRegex.FindStringSubmatch(line); m != nil {
		code, _ := strconv.Atoi(m[1])
		return Record{Kind: KindError, Code: code}
	}
	return Record{Kind: KindNone}
}

// Redirect is one source/target pair.
type Redirect struct {
	From string
	To   string
}

// RedirectMap keeps redirects in log order. Setting an existing source
// replaces its target and keeps its position.
type RedirectMap struct {
	order   []string
	targets map[string]string
}

func NewRedirectMap() *RedirectMap {
	return &RedirectMap{targets: make(map[string]string)}
}

func (m *RedirectMap) Set(from, to string) {
	if _, ok := m.targets[from]; !ok {
		m.order = append(m.order, from)
	}
	m.targets[from] = to
}

func (m *RedirectMap) Get(from string) (string, bool) {
	to, ok := m.targets[from]
	return to, ok
}

func (m *RedirectMap) Len() int { return len(m.order) }

// Pairs returns all redirects in insertion order.
func (m *RedirectMap) Pairs() []Redirect {
	pairs := make([]Redirect, 0, len(m.order))
	for _, from := range m.order {
		pairs = append(pairs, Redirect{From: from, To: m.targets[from]})
	}
	return pairs
}

// ErrorMap groups failed URLs by HTTP status code.
type ErrorMap map[int]map[string]struct{}

func (e ErrorMap) Add(code int, url string) {
	if e[code] == nil {
		e[code] = make(map[string]struct{})
	}
	e[code][url] = struct{}{}
}

// Codes returns the status codes in ascending order.
func (e ErrorMap) Codes() []int {
	codes := make([]int, 0, len(e))
	for c := range e {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	return codes
}

// URLs returns the URLs that failed with code, sorted.
func (e ErrorMap) URLs(code int) []string {
	urls := make([]string, 0, len(e[code]))
	for u := range e[code] {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Result holds everything extracted from one log.
type Result struct {
	Errors    ErrorMap
	Redirects *RedirectMap
}

// accumulator is the state threaded through the scan.
type accumulator struct {
	currentURL string
	result     *Result
}

func (a accumulator) fold(n int, line string) (accumulator, error) {
	rec := ParseLine(line)
	switch rec.Kind {
	case KindPlainURL:
		a.currentURL = rec.URL
	case KindRedirect:
		if a.currentURL == "" {
			return a, &MalformedLogError{Line: n, Text: line, Reason: "redirect before any URL"}
		}
		a.result.Redirects.Set(a.currentURL, rec.Target)
	case KindError:
		if a.currentURL == "" {
			return a, &MalformedLogError{Line: n, Text: line, Reason: "error before any URL"}
		}
		a.result.Errors.Add(rec.Code, a.currentURL)
	}
	return a, nil
}

// Parse scans a whole log.
func Parse(r io.Reader) (*Result, error) {
	acc := accumulator{result: &Result{Errors: ErrorMap{}, Redirects: NewRedirectMap()}}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		var err error
		if acc, err = acc.fold(n, sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read wget log: %w", err)
	}
	return acc.result, nil
}

// ParseFile opens path on fsys and parses it.
func ParseFile(fsys afero.Fs, path string) (*Result, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wget log: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// WriteErrors prints one "<code>\t<url>" line per failed request.
func (r *Result) WriteErrors(w io.Writer) {
	for _, code := range r.Errors.Codes() {
		for _, u := range r.Errors.URLs(code) {
			fmt.Fprintf(w, "%d\t%s\n", code, u)
		}
	}
}

// WriteRedirects prints one "->\t<from>\t<to>" line per redirect.
func (r *Result) WriteRedirects(w io.Writer) {
	for _, p := range r.Redirects.Pairs() {
		fmt.Fprintf(w, "->\t%s\t%s\n", p.From, p.To)
	}
}
