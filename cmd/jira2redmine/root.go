package main

import (
	"fmt"

	"github.com/jcatrysse/jira2redmine/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgPath   string
	sinceFlag string

	app *App
)

// newRootCmd builds the jira2redmine cobra root: a persistent --config/
// --since pair plus one subcommand per entity family, spec.md §4.10.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jira2redmine",
		Short: "Migrate a Jira Cloud project into a self-hosted Redmine instance",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			_, cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			built, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}

			since, err := parseSince(sinceFlag)
			if err != nil {
				return err
			}
			built.Extractor.Since = since

			app = built
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app == nil {
				return nil
			}
			return app.Close()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to jira2redmine.yaml (default: $JIRA2REDMINE_CONFIG or ./jira2redmine.yaml)")
	root.PersistentFlags().StringVar(&sinceFlag, "since", "", "restrict issue extraction to issues updated since this date (RFC3339 or natural language)")

	root.AddCommand(newVersionCmd())
	for _, cmd := range familyCommands() {
		root.AddCommand(cmd)
	}
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the jira2redmine version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("jira2redmine (development build)")
			return nil
		},
	}
}
