// Command uptime-notify emails the list of sites UptimeRobot reports as down.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sitecopy/logger"
	"sitecopy/uptime"
)

func newRootCmd(mailer uptime.Mailer) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "uptime-notify",
		Short:         "Email a digest of the monitored sites that are down",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := uptime.LoadConfig(viper.New(), cfgFile)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			m := mailer
			if m == nil {
				m = cfg.Email.Mailer()
			}
			client := uptime.NewClient(cfg.APIKey, cfg.APIURL, nil)
			_, err = uptime.NewNotifier(client, m, cfg.Email, log).Run(cmd.Context())
			return err
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is ./uptime.yaml)")
	return cmd
}

func main() {
	if err := newRootCmd(nil).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
