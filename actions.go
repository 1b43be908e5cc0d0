package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type action struct {
	name        string
	description string
	run         func(a *App, ctx context.Context) error
	// flags registers action specific flags, bound to v.
	flags func(cmd *cobra.Command, v *viper.Viper)
}

var actions = []action{
	{
		name:        "copy",
		description: "mirror --url into copy_path with wget, then stop",
		run:         (*App).runCopy,
	},
	{
		name:        "copy_and_fix",
		description: "copy, then dedupe, redirect, relink and rename",
		run:         (*App).runCopyAndFix,
	},
	{
		name:        "report",
		description: "list failed requests and redirects from the wget log",
		run:         (*App).runReport,
	},
	{
		name:        "redirect",
		description: "replace pages fetched through a redirect with a redirect page",
		run:         (*App).runRedirect,
	},
	{
		name:        "relink",
		description: "rewrite links in HTML and CSS to normalized relative paths",
		run:         (*App).runRelink,
	},
	{
		name:        "dedupe",
		description: "move pages to their canonical location, removing identical duplicates",
		run:         (*App).runDedupe,
	},
	{
		name:        "rename",
		description: "move files whose name still carries a query string",
		run:         (*App).runRename,
	},
	{
		name:        "serve",
		description: "serve the copy locally over HTTP",
		run:         (*App).runServe,
		flags: func(cmd *cobra.Command, v *viper.Viper) {
			cmd.Flags().String("addr", "", "listen address (default :8000)")
			_ = v.BindPFlag("serve.addr", cmd.Flags().Lookup("addr"))
		},
	},
	{
		name:        "tag",
		description: "stamp every page with the source URL and copy date",
		run:         (*App).runTag,
	},
}

// actionHelp lists every action with its description, one per line.
func actionHelp() string {
	var b strings.Builder
	b.WriteString("Actions:\n")
	for _, act := range actions {
		fmt.Fprintf(&b, "  %-13s %s\n", act.name, act.description)
	}
	return b.String()
}

func (act action) command(app *App, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   act.name,
		Short: act.description,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := act.run(app, cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(app.out, "done (%s)\n", act.name)
			return nil
		},
	}
	if act.flags != nil {
		act.flags(cmd, v)
	}
	return cmd
}
