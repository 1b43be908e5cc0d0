package processor

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exists(t *testing.T, fs afero.Fs, name string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, name)
	require.NoError(t, err)
	return ok
}

func TestDedupe_IdenticalDuplicateRemoved(t *testing.T) {
	p, fs := newTestProcessor(t, map[string]string{
		"photos.html":       "<p>photos</p>",
		"photos/index.html": "<p>photos</p>",
	})

	st, err := p.Dedupe()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Removed)
	assert.Zero(t, st.Conflicts)

	assert.False(t, exists(t, fs, "photos.html"))
	assert.True(t, exists(t, fs, "photos/index.html"))
}

func TestDedupe_ConflictKeepsBoth(t *testing.T) {
	p, fs := newTestProcessor(t, map[string]string{
		"photos.html":       "<p>old photos</p>",
		"photos/index.html": "<p>new photos</p>",
	})

	st, err := p.Dedupe()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Conflicts)
	assert.Zero(t, st.Removed)

	assert.Equal(t, "<p>old photos</p>", readFile(t, fs, "photos.html"))
	assert.Equal(t, "<p>new photos</p>", readFile(t, fs, "photos/index.html"))
}

func TestDedupe_MovesToCanonicalLocation(t *testing.T) {
	p, fs := newTestProcessor(t, map[string]string{
		"about.html":                  `<img src="img/team.png"><a href="/contact/">c</a><a href="#top">t</a>`,
		"blog/index.html":             "<p>page 1</p>",
		"blog/index.html?page=2.html": `<a href="../index.html">home</a>`,
		"blog/|page__3.html":          "<p>page 3</p>",
	})

	st, err := p.Dedupe()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Moved)

	assert.False(t, exists(t, fs, "about.html"))
	assert.Equal(t, `<img src="../img/team.png"><a href="/contact/">c</a><a href="#top">t</a>`, readFile(t, fs, "about/index.html"))

	assert.False(t, exists(t, fs, "blog/index.html?page=2.html"))
	assert.Equal(t, `<a href="../index.html">home</a>`, readFile(t, fs, "blog/|page__2.html"))
	assert.Equal(t, "<p>page 3</p>", readFile(t, fs, "blog/|page__3.html"))
}

func TestDedupe_DryRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "about.html", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "news.html", []byte("n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "news/index.html", []byte("n"), 0o644))
	p, err := New(afero.NewReadOnlyFs(fs), Config{DryRun: true}, nil)
	require.NoError(t, err)

	st, err := p.Dedupe()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Moved)
	assert.Equal(t, 1, st.Removed)
	assert.True(t, exists(t, fs, "about.html"))
	assert.True(t, exists(t, fs, "news.html"))
	assert.False(t, exists(t, fs, "about/index.html"))
}

func TestRenameQueryFiles(t *testing.T) {
	p, fs := newTestProcessor(t, map[string]string{
		"css/site.css?ver=5.2":    "body{}",
		"js/app.js?v=1":           "a()",
		"js/app.js":               "b()",
		"search?q=go":             `<p>results</p><img src="img/logo.png">`,
		"img/logo.png?utm_source": "png",
	})

	st, err := p.RenameQueryFiles()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Moved)
	assert.Equal(t, 1, st.Conflicts)

	assert.Equal(t, "body{}", readFile(t, fs, "css/site.css"))
	assert.Equal(t, `<p>results</p><img src="../img/logo.png">`, readFile(t, fs, "search/|q__go.html"))
	assert.Equal(t, "png", readFile(t, fs, "img/logo.png"))
	assert.True(t, exists(t, fs, "js/app.js?v=1"))
	assert.Equal(t, "b()", readFile(t, fs, "js/app.js"))
}
