// Command jira2redmine drives one entity family's migration phases against
// a mapping database, per spec.md §4.10. Each subcommand corresponds to an
// entity family (projects, users, issues, attachments, journals, watchers,
// subtasks); the PhaseOrchestrator sequences that family's jira/redmine/
// transform/push (plus pull, for attachments) phases and enforces the
// cross-family ordering spec.md requires.
package main
