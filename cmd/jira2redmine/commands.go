package main

import (
	"github.com/jcatrysse/jira2redmine/internal/orchestrator"
	"github.com/spf13/cobra"
)

// familyCommand describes one entity-family subcommand, spec.md §4.10.
type familyCommand struct {
	use    string
	short  string
	family orchestrator.Family
}

var familyDefs = []familyCommand{
	{"projects", "Migrate Jira projects into Redmine projects", orchestrator.FamilyProjects},
	{"users", "Migrate Jira users into Redmine users", orchestrator.FamilyUsers},
	{"issues", "Migrate Jira issues into Redmine issues", orchestrator.FamilyIssues},
	{"attachments", "Pull Jira attachments and push them to Redmine/SharePoint", orchestrator.FamilyAttachments},
	{"journals", "Migrate Jira comments/changelog into Redmine journals", orchestrator.FamilyJournals},
	{"watchers", "Migrate Jira issue watchers into Redmine watchers", orchestrator.FamilyWatchers},
	{"subtasks", "Link migrated child issues to their migrated parents", orchestrator.FamilySubtasks},
}

// familyCommands builds one cobra.Command per entity family, each sharing
// the familyFlags set and delegating execution to runFamily.
func familyCommands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(familyDefs))
	for _, def := range familyDefs {
		def := def
		flags := &familyFlags{}
		cmd := &cobra.Command{
			Use:   def.use,
			Short: def.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runFamily(cmd.Context(), app, def.family, *flags)
			},
		}
		addFamilyFlags(cmd, flags)
		cmds = append(cmds, cmd)
	}
	return cmds
}
