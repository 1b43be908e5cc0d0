package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e exitError) ExitCode() int { return int(e) }

type fakeRunner struct {
	name   string
	args   []string
	stdout string
	stderr string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, stdout, stderr io.Writer) error {
	f.name = name
	f.args = args
	_, _ = io.WriteString(stdout, f.stdout)
	_, _ = io.WriteString(stderr, f.stderr)
	return f.err
}

func TestArgs(t *testing.T) {
	args := Args(Config{URL: "https://site.ac.uk/", CopyPath: "out", ExtraArgs: []string{"--wait=1"}})
	assert.Equal(t, []string{
		"--mirror", "--convert-links", "--adjust-extension", "--page-requisites", "--no-parent",
		"-P", "out", "-nH", "--wait=1", "https://site.ac.uk/",
	}, args)
}

func TestMirror_WritesLogs(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := &fakeRunner{stdout: "out", stderr: "--2024-01-01--  https://site.ac.uk/\n"}
	d := New(fs, runner, nil)

	err := d.Mirror(context.Background(), Config{URL: "https://site.ac.uk/"})
	require.NoError(t, err)

	assert.Equal(t, DefaultBinary, runner.name)
	assert.Equal(t, "https://site.ac.uk/", runner.args[len(runner.args)-1])

	logBytes, err := afero.ReadFile(fs, DefaultLogFile)
	require.NoError(t, err)
	assert.Contains(t, string(logBytes), "https://site.ac.uk/")
	outBytes, err := afero.ReadFile(fs, DefaultOutLog)
	require.NoError(t, err)
	assert.Equal(t, "out", string(outBytes))
}

func TestMirror_Errors(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		d := New(afero.NewMemMapFs(), &fakeRunner{}, nil)
		assert.ErrorIs(t, d.Mirror(context.Background(), Config{}), ErrMissingURL)
	})

	t.Run("output exists", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("html", 0o755))
		runner := &fakeRunner{}
		d := New(fs, runner, nil)
		assert.ErrorIs(t, d.Mirror(context.Background(), Config{URL: "https://site.ac.uk/"}), ErrOutputExists)
		assert.Empty(t, runner.name)
	})

	t.Run("server errors tolerated", func(t *testing.T) {
		d := New(afero.NewMemMapFs(), &fakeRunner{err: exitError(8)}, nil)
		assert.NoError(t, d.Mirror(context.Background(), Config{URL: "https://site.ac.uk/"}))
	})

	t.Run("tool failure", func(t *testing.T) {
		d := New(afero.NewMemMapFs(), &fakeRunner{err: exitError(4)}, nil)
		err := d.Mirror(context.Background(), Config{URL: "https://site.ac.uk/"})
		assert.ErrorIs(t, err, ErrCopyToolFailed)
		assert.Contains(t, err.Error(), "status 4")
	})

	t.Run("tool not found", func(t *testing.T) {
		d := New(afero.NewMemMapFs(), &fakeRunner{err: errors.New("executable file not found")}, nil)
		assert.ErrorIs(t, d.Mirror(context.Background(), Config{URL: "https://site.ac.uk/"}), ErrCopyToolFailed)
	})
}
