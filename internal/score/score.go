// Package score ranks resource profiles against a task description by
// comparing the task embedding with each profile's stored pull request
// and issue vectors.
package score

import (
	"github.com/google/uuid"
)

// BestFitInput describes the task to staff. MaxResults defaults to 5
// and is capped at 100.
type BestFitInput struct {
	TaskTitle       string `json:"task_title"`
	TaskDescription string `json:"task_description,omitempty"`
	MaxResults      int    `json:"max_results,omitempty"`
}

// PRScoreInfo is one pull request's contribution to a GitHub score.
type PRScoreInfo struct {
	PRID            string  `json:"pr_id"`
	Title           string  `json:"pr_title,omitempty"`
	Description     string  `json:"pr_description,omitempty"`
	URL             string  `json:"pr_url,omitempty"`
	MatchPercentage float64 `json:"match_percentage"`
}

// ScoreProfile is one ranked candidate. Scores are percentages;
// TotalScore is their sum, so it ranges 0..200.
type ScoreProfile struct {
	UserID         uuid.UUID     `json:"user_id"`
	UserName       string        `json:"user_name,omitempty"`
	GithubPRScore  float64       `json:"github_pr_score"`
	JiraIssueScore float64       `json:"jira_issue_score"`
	PRInfo         []PRScoreInfo `json:"pr_info"`
	IssueLinks     []string      `json:"issue_links"`
	TotalScore     float64       `json:"total_score"`
}
