// Command sitecopy mirrors a website with wget and post-processes the copy
// into a static site that works from any folder or host.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sitecopy/config"
	"sitecopy/downloader"
	"sitecopy/logger"
)

// deps are the process level collaborators, replaced in tests.
type deps struct {
	fs     afero.Fs
	runner downloader.Runner
	out    io.Writer
	// log overrides the logger built from configuration.
	log logger.Logger
	now func() time.Time
}

func newRootCmd(d deps) *cobra.Command {
	v := viper.New()
	var cfgFile string
	app := &App{fs: d.fs, runner: d.runner, out: d.out, now: d.now}
	if app.now == nil {
		app.now = time.Now
	}

	root := &cobra.Command{
		Use:           "sitecopy",
		Short:         "Mirror a site with wget and turn it into a portable static copy",
		Long:          "Mirror a site with wget and turn it into a portable static copy.\n\n" + actionHelp(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Setup(v, cfgFile); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			app.cfg = cfg
			if d.log != nil {
				app.log = d.log
				return nil
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			app.log = log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if app.log != nil {
				_ = app.log.Sync()
			}
		},
	}
	root.SetOut(d.out)

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./sitecopy.yaml)")
	flags.StringP("url", "u", "", "root URL of the site to copy")
	flags.Bool("dry-run", false, "log changes without writing anything")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	_ = v.BindPFlag("url", flags.Lookup("url"))
	_ = v.BindPFlag("dry_run", flags.Lookup("dry-run"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))

	for _, act := range actions {
		root.AddCommand(act.command(app, v))
	}
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(deps{
		fs:     afero.NewOsFs(),
		runner: downloader.ExecRunner{},
		out:    os.Stdout,
	})
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
