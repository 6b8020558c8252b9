// Package rewrite implements ContentRewriter, spec.md §4.5: a pure function
// that turns Jira rich text (ADF and/or rendered HTML) into Redmine-flavored
// Markdown. Grounded on the teacher's internal/jira/client.go
// DescriptionToPlainText/PlainTextToADF pair, generalized from a fixed
// two-level struct decode into a full ADF tree walk (adf.go) and extended
// with an HTML path (html.go) and the reference-rewriting rules (refs.go)
// the teacher has no equivalent for.
package rewrite

import (
	"encoding/json"
)

// Input is everything one ContentRewriter call needs: the raw rich-text
// source plus the three lookup tables used to rewrite embedded references.
type Input struct {
	HTML    string          // Jira-rendered HTML, empty if unavailable
	ADF     json.RawMessage // Jira ADF document, empty/nil if unavailable
	Lookups Lookups
}

// Rewrite converts Input into Markdown following the six ordered rules of
// spec.md §4.5. It is a pure function of its arguments: identical Input
// values always produce byte-identical output, since downstream
// automation_hash computation depends on that determinism.
func Rewrite(in Input) string {
	md := convertToMarkdown(in.HTML, in.ADF)
	md = rewriteAttachmentRefs(md, in.Lookups.Attachments)
	md = rewriteUserLinks(md, in.Lookups.Users)
	md = rewriteIssueKeys(md, in.Lookups.Issues)
	md = removeJiraAvatars(md)
	md = normalizeCrossRefSpacing(md)
	return md
}

// convertToMarkdown implements rule 1: prefer HTML unless it carries macro
// placeholders Jira couldn't render, in which case prefer ADF; if the
// preferred source is empty or fails to convert, fall back to the other,
// and finally to a plain-text flattening of the ADF tree.
func convertToMarkdown(rawHTML string, adf json.RawMessage) string {
	preferHTML := rawHTML != "" && !hasMacroPlaceholders(rawHTML)

	if preferHTML {
		if md, err := htmlToMarkdown(rawHTML); err == nil {
			return md
		}
	}

	if len(adf) > 0 {
		if md, err := adfToMarkdown(adf); err == nil {
			return md
		}
	}

	if rawHTML != "" {
		if md, err := htmlToMarkdown(rawHTML); err == nil {
			return md
		}
	}

	return adfPlainText(adf)
}
