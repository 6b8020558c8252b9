package rewrite

import (
	"regexp"
	"strconv"
)

// AttachmentRef is one entry of the attachment index passed to Rewrite:
// the Redmine-unique filename an attachment was uploaded under, and the
// SharePoint URL if the attachment was offloaded there instead (spec.md
// §4.8 step 3).
type AttachmentRef struct {
	UniqueFilename string
	SharePointURL  string
}

// IssueRef is one entry of the issue-key lookup: a Jira issue already
// mapped to a Redmine issue id.
type IssueRef struct {
	RedmineIssueID int64
}

// Lookups bundles the three tables Rewrite needs to turn Jira-relative
// references into Redmine-relative ones, per spec.md §4.5 rules 2-4.
type Lookups struct {
	Attachments map[string]AttachmentRef // jira attachment id -> ref
	Users       map[string]int64         // jira account id -> redmine user id
	Issues      map[string]IssueRef      // jira issue key -> ref
}

var (
	// markdownLinkRe matches ![alt](url) and [text](url) so attachment URLs
	// embedded in either form can be rewritten without disturbing the
	// surrounding link syntax.
	markdownLinkRe = regexp.MustCompile(`(!?\[[^\]]*\])\(([^)]+)\)`)

	// attachmentContentURLRe matches Jira's REST attachment-content URL
	// shape, capturing the trailing numeric attachment id.
	attachmentContentURLRe = regexp.MustCompile(`(?:/rest/api/\d+/attachment/content/|/secure/attachment/)(\d+)(?:/[^)\s]*)?`)

	// attachmentTokenRe matches the literal `attachment:{id}` reference form.
	attachmentTokenRe = regexp.MustCompile(`attachment:(\d+)\b`)

	// userProfileLinkRe matches Jira user profile URLs, capturing the
	// accountId query parameter.
	userProfileLinkRe = regexp.MustCompile(`/(?:jira/)?people/([a-zA-Z0-9:\-]+)|accountId=([a-zA-Z0-9:\-]+)`)

	// issueKeyRe matches a bare Jira issue key (PROJECT-123 style).
	issueKeyRe = regexp.MustCompile(`\b([A-Z][A-Z0-9]+-\d+)\b`)

	// issueBrowseLinkRe matches /browse/{KEY} and ?selectedIssue={KEY} forms.
	issueBrowseLinkRe = regexp.MustCompile(`/browse/([A-Z][A-Z0-9]+-\d+)|[?&]selectedIssue=([A-Z][A-Z0-9]+-\d+)`)

	// jiraAvatarImgRe matches a Markdown image whose URL looks like a Jira
	// avatar (profile picture), for removal per spec.md §4.5 rule 5.
	jiraAvatarImgRe = regexp.MustCompile(`!\[[^\]]*\]\([^)]*(?:/useravatar|/avatar/)[^)]*\)`)

	// crossRefSpacingRe finds a Redmine cross-reference (#123, user#123)
	// directly glued to adjoining word characters, which breaks Redmine's
	// own link parser.
	crossRefSpacingRe = regexp.MustCompile(`(\S)(#\d+|user#\d+)(\S)`)
)

// rewriteAttachmentRefs applies spec.md §4.5 rule 2: Markdown image/link
// URLs, attachment: tokens, and raw content URLs pointing at a Jira
// attachment id are rewritten to the SharePoint URL (if offloaded), else the
// attachment:{unique_filename} token Redmine expects. Every id present in
// attachments gets one of the two, whatever its upload state; ids missing
// from attachments are left unchanged.
func rewriteAttachmentRefs(md string, attachments map[string]AttachmentRef) string {
	resolve := func(id string) (string, bool) {
		ref, ok := attachments[id]
		if !ok {
			return "", false
		}
		if ref.SharePointURL != "" {
			return ref.SharePointURL, true
		}
		return "attachment:" + ref.UniqueFilename, true
	}

	md = markdownLinkRe.ReplaceAllStringFunc(md, func(m string) string {
		parts := markdownLinkRe.FindStringSubmatch(m)
		label, url := parts[1], parts[2]
		if sub := attachmentContentURLRe.FindStringSubmatch(url); sub != nil {
			if repl, ok := resolve(sub[1]); ok {
				return label + "(" + repl + ")"
			}
		}
		return m
	})

	md = attachmentTokenRe.ReplaceAllStringFunc(md, func(m string) string {
		id := attachmentTokenRe.FindStringSubmatch(m)[1]
		if repl, ok := resolve(id); ok {
			return repl
		}
		return m
	})

	md = attachmentContentURLRe.ReplaceAllStringFunc(md, func(m string) string {
		id := attachmentContentURLRe.FindStringSubmatch(m)[1]
		if repl, ok := resolve(id); ok {
			return repl
		}
		if ref, ok := attachments[id]; ok {
			return ref.UniqueFilename
		}
		return m
	})

	return md
}

// rewriteUserLinks applies spec.md §4.5 rule 3.
func rewriteUserLinks(md string, users map[string]int64) string {
	return userProfileLinkRe.ReplaceAllStringFunc(md, func(m string) string {
		sub := userProfileLinkRe.FindStringSubmatch(m)
		accountID := sub[1]
		if accountID == "" {
			accountID = sub[2]
		}
		if redmineID, ok := users[accountID]; ok {
			return userRefText(redmineID)
		}
		return m
	})
}

func userRefText(redmineUserID int64) string {
	return "user#" + strconv.FormatInt(redmineUserID, 10)
}

// rewriteIssueKeys applies spec.md §4.5 rule 4.
func rewriteIssueKeys(md string, issues map[string]IssueRef) string {
	md = issueBrowseLinkRe.ReplaceAllStringFunc(md, func(m string) string {
		sub := issueBrowseLinkRe.FindStringSubmatch(m)
		key := sub[1]
		if key == "" {
			key = sub[2]
		}
		if ref, ok := issues[key]; ok {
			return issueRefText(ref.RedmineIssueID)
		}
		return m
	})

	md = issueKeyRe.ReplaceAllStringFunc(md, func(key string) string {
		if ref, ok := issues[key]; ok {
			return issueRefText(ref.RedmineIssueID)
		}
		return key
	})

	return md
}

func issueRefText(redmineIssueID int64) string {
	return "#" + strconv.FormatInt(redmineIssueID, 10)
}

// removeJiraAvatars applies spec.md §4.5 rule 5.
func removeJiraAvatars(md string) string {
	return jiraAvatarImgRe.ReplaceAllString(md, "")
}

// normalizeCrossRefSpacing applies spec.md §4.5 rule 6: ensures a Redmine
// cross-reference has whitespace on both sides so Redmine's own renderer
// parses it as a link rather than as part of an adjoining word/number.
func normalizeCrossRefSpacing(md string) string {
	for {
		replaced := crossRefSpacingRe.ReplaceAllString(md, "$1 $2 $3")
		if replaced == md {
			return md
		}
		md = replaced
	}
}
