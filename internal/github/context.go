package github

import (
	"regexp"
	"strings"
)

const maxDescriptionRunes = 1000

var (
	htmlCommentRE = regexp.MustCompile(`(?s)<!--.*?-->`)
	wordRE        = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// BuildContext renders a pull request as the structured document the
// embedding model sees. The layout is fixed; stored vectors are only
// comparable to queries rendered the same way.
//
//	PR_INTENT: <title>
//	DESCRIPTION: <body, HTML comments stripped, capped at 1000 runes>
//	LABELS: <name, name, ...>
//	STACK:
//	FILE_CHANGES:
//	- [STATUS] <filename>
//
//	COMMITS:
//	- <first line of each commit message with more than five words>
func BuildContext(pr PRContent, files []FileChange, commitMessages []string) string {
	desc := strings.TrimSpace(htmlCommentRE.ReplaceAllString(pr.Body, ""))
	if runes := []rune(desc); len(runes) > maxDescriptionRunes {
		desc = string(runes[:maxDescriptionRunes])
	}

	var b strings.Builder
	b.WriteString("PR_INTENT: " + pr.Title + "\n")
	b.WriteString("DESCRIPTION: " + desc + "\n")
	b.WriteString("LABELS: " + strings.Join(pr.Labels, ", ") + "\n")
	b.WriteString("STACK: ")

	b.WriteString("\nFILE_CHANGES:\n")
	for _, f := range files {
		b.WriteString("- [" + strings.ToUpper(f.Status) + "] " + f.Filename + "\n")
	}

	b.WriteString("\nCOMMITS:\n")
	for _, msg := range commitMessages {
		if len(wordRE.FindAllString(msg, 6)) > 5 {
			b.WriteString("- " + firstLine(msg) + "\n")
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
