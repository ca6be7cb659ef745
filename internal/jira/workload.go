package jira

import (
	"math"
	"strings"
	"time"
)

// activeStatuses are the statuses that count toward a workload.
var activeStatuses = map[string]struct{}{
	"Open":        {},
	"To Do":       {},
	"In Progress": {},
	"In Review":   {},
	"Reopened":    {},
}

// Workload score weights per issue bucket.
const (
	weightHigh       = 3.0
	weightMedium     = 2.0
	weightLow        = 1.0
	weightBug        = 1.5
	weightInProgress = 0.5
)

// ComputeWorkload tallies one assignee's active issues into status,
// priority and type buckets and derives the workload score. Issues in
// inactive statuses are ignored entirely.
func ComputeWorkload(accountID string, issues []IssueContent, now time.Time) Workload {
	w := Workload{AccountID: accountID, LastUpdated: &now}

	for i := range issues {
		issue := &issues[i]
		if _, ok := activeStatuses[issue.Status]; !ok {
			continue
		}
		w.TotalActiveIssues++

		switch issue.Status {
		case "In Progress":
			w.InProgressIssues++
		case "In Review":
			w.InReviewIssues++
		default:
			w.OpenIssues++
		}

		switch strings.ToLower(issue.Priority) {
		case "highest", "high", "critical", "blocker":
			w.HighPriorityCount++
		case "medium", "normal":
			w.MediumPriorityCount++
		case "low", "lowest", "trivial":
			w.LowPriorityCount++
		}

		switch strings.ToLower(issue.IssueType) {
		case "bug":
			w.BugsCount++
		case "task", "sub-task":
			w.TasksCount++
		case "story", "feature":
			w.StoriesCount++
		default:
			w.OtherCount++
		}

		if w.DisplayName == "" && issue.Assignee != nil && issue.Assignee.AccountID == accountID {
			w.DisplayName = issue.Assignee.DisplayName
			w.Email = issue.Assignee.EmailAddress
		}
	}

	w.WorkloadScore = round2(
		float64(w.HighPriorityCount)*weightHigh +
			float64(w.MediumPriorityCount)*weightMedium +
			float64(w.LowPriorityCount)*weightLow +
			float64(w.BugsCount)*weightBug +
			float64(w.InProgressIssues)*weightInProgress)
	return w
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
