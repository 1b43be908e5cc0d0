// Package downloader runs GNU Wget to mirror a site into a local folder.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/spf13/afero"

	"sitecopy/logger"
)

const (
	DefaultBinary   = "wget"
	DefaultCopyPath = "html"
	DefaultLogFile  = "copy.log"
	DefaultOutLog   = "copy_out.log"

	// exitServerError is wget's status when some requests got an HTTP error
	// response. Those are listed by the report action, so the copy stands.
	exitServerError = 8
)

var (
	ErrMissingURL     = errors.New("pass a valid URL to the copy action using -u")
	ErrOutputExists   = errors.New("output folder already exists")
	ErrCopyToolFailed = errors.New("copy tool failed")
)

type Config struct {
	URL       string
	CopyPath  string
	LogFile   string
	OutLog    string
	Binary    string
	ExtraArgs []string
}

func (c *Config) setDefaults() {
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
	if c.CopyPath == "" {
		c.CopyPath = DefaultCopyPath
	}
	if c.LogFile == "" {
		c.LogFile = DefaultLogFile
	}
	if c.OutLog == "" {
		c.OutLog = DefaultOutLog
	}
}

// Runner runs an external command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// exitCoder is satisfied by *exec.ExitError.
type exitCoder interface {
	ExitCode() int
}

// Args returns the wget command line for cfg.
func Args(cfg Config) []string {
	cfg.setDefaults()
	args := []string{
		"--mirror",
		"--convert-links",
		"--adjust-extension",
		"--page-requisites",
		"--no-parent",
		"-P", cfg.CopyPath,
		"-nH",
	}
	args = append(args, cfg.ExtraArgs...)
	return append(args, cfg.URL)
}

type Downloader struct {
	fs     afero.Fs
	runner Runner
	log    logger.Logger
}

func New(fsys afero.Fs, runner Runner, log logger.Logger) *Downloader {
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Downloader{fs: fsys, runner: runner, log: log}
}

// Mirror copies cfg.URL into cfg.CopyPath. wget's stdout goes to cfg.OutLog
// and its stderr, the log the report and redirect actions parse, to cfg.LogFile.
func (d *Downloader) Mirror(ctx context.Context, cfg Config) error {
	cfg.setDefaults()
	if cfg.URL == "" {
		return ErrMissingURL
	}
	if ok, _ := afero.Exists(d.fs, cfg.CopyPath); ok {
		return fmt.Errorf("%w (%s)", ErrOutputExists, cfg.CopyPath)
	}

	stdout, err := d.fs.Create(cfg.OutLog)
	if err != nil {
		return fmt.Errorf("create %s: %w", cfg.OutLog, err)
	}
	defer stdout.Close()
	stderr, err := d.fs.Create(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("create %s: %w", cfg.LogFile, err)
	}
	defer stderr.Close()

	args := Args(cfg)
	d.log.Info("mirroring site",
		logger.String("url", cfg.URL),
		logger.String("binary", cfg.Binary),
		logger.Strings("args", args))

	err = d.runner.Run(ctx, cfg.Binary, args, stdout, stderr)
	if err == nil {
		return nil
	}
	var ec exitCoder
	if errors.As(err, &ec) {
		if ec.ExitCode() == exitServerError {
			d.log.Warn("some requests failed, see the report action", logger.Int("exit_code", ec.ExitCode()))
			return nil
		}
		return fmt.Errorf("%w: %s exited with status %d (see %s)", ErrCopyToolFailed, cfg.Binary, ec.ExitCode(), cfg.LogFile)
	}
	return fmt.Errorf("%w: %v", ErrCopyToolFailed, err)
}
