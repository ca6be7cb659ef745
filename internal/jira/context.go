package jira

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	maxContextDescriptionRunes = 1500
	maxContextComments         = 3
	maxCommentRunes            = 200
)

var (
	// wikiMarkupRE strips {code}, {noformat}, {color:...} and similar
	// wiki blocks left over in migrated descriptions.
	wikiMarkupRE = regexp.MustCompile(`\{[^}]+\}`)
	// mentionRE strips [~accountid:...] user mentions.
	mentionRE = regexp.MustCompile(`\[~[^\]]+\]`)
)

// BuildIssueContext renders an issue as the document handed to the
// embedding model:
//
//	ISSUE_TYPE: {type}
//	SUMMARY: {summary}
//	STATUS: {status}
//	PRIORITY: {priority}
//	LABELS: {a, b}
//	DESCRIPTION: {cleaned, first 1500 chars}
//	KEY_COMMENTS: {first 3 comments, 200 chars each, " | " separated}
//
// PRIORITY, LABELS, DESCRIPTION and KEY_COMMENTS are omitted when
// empty. Stored vectors are only comparable to queries rendered the
// same way, so the layout must not drift.
func BuildIssueContext(issue IssueContent) string {
	parts := []string{
		"ISSUE_TYPE: " + issue.IssueType,
		"SUMMARY: " + issue.Summary,
		"STATUS: " + issue.Status,
	}
	if issue.Priority != "" {
		parts = append(parts, "PRIORITY: "+issue.Priority)
	}
	if len(issue.Labels) > 0 {
		parts = append(parts, "LABELS: "+strings.Join(issue.Labels, ", "))
	}
	if desc := cleanDescription(issue.Description); desc != "" {
		parts = append(parts, "DESCRIPTION: "+desc)
	}
	if len(issue.Comments) > 0 {
		n := len(issue.Comments)
		if n > maxContextComments {
			n = maxContextComments
		}
		snippets := make([]string, 0, n)
		for _, c := range issue.Comments[:n] {
			snippets = append(snippets, truncateRunes(c.Body, maxCommentRunes))
		}
		parts = append(parts, "KEY_COMMENTS: "+strings.Join(snippets, " | "))
	}
	return strings.Join(parts, "\n")
}

func cleanDescription(desc string) string {
	if desc == "" {
		return ""
	}
	desc = wikiMarkupRE.ReplaceAllString(desc, "")
	desc = mentionRE.ReplaceAllString(desc, "")
	return truncateRunes(strings.TrimSpace(desc), maxContextDescriptionRunes)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// adfNode is the slice of Atlassian Document Format the text
// extractor needs: typed blocks with text leaves.
type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Content []adfNode `json:"content"`
}

// plainText flattens a REST v3 rich-text field. Values arrive either
// as plain strings or as ADF documents.
func plainText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var b strings.Builder
	doc.writeText(&b)
	return strings.TrimSpace(b.String())
}

func (n adfNode) writeText(b *strings.Builder) {
	if n.Text != "" {
		b.WriteString(n.Text)
	}
	if n.Type == "hardBreak" {
		b.WriteString("\n")
	}
	for _, child := range n.Content {
		child.writeText(b)
	}
	switch n.Type {
	case "paragraph", "heading", "listItem", "codeBlock", "blockquote":
		b.WriteString("\n")
	}
}
