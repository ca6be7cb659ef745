package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bradleyfalzon/ghinstallation"
	gh "github.com/google/go-github/v29/github"
)

const (
	defaultMaxPRs = 100
	perPage       = 100
)

// Client wraps the GitHub REST API, authenticated as a GitHub App
// installation.
type Client struct {
	api    *gh.Client
	logger *slog.Logger
}

// NewClient builds a Client for one App installation. privateKeyPEM is
// the key issued when the App was registered; installationID comes
// from the installation webhook.
func NewClient(appID int64, privateKeyPEM []byte, installationID int64, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	itr, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("creating installation transport: %w", err)
	}
	httpClient := &http.Client{Transport: itr, Timeout: 60 * time.Second}
	return &Client{api: gh.NewClient(httpClient), logger: logger}, nil
}

// OrgMembers returns every member of the organization.
func (c *Client) OrgMembers(ctx context.Context, org string) ([]Member, error) {
	opt := &gh.ListMembersOptions{ListOptions: gh.ListOptions{PerPage: perPage}}

	var members []Member
	for {
		page, resp, err := c.api.Organizations.ListMembers(ctx, org, opt)
		if err != nil {
			return nil, fmt.Errorf("listing members of %s: %w", org, err)
		}
		for _, u := range page {
			members = append(members, Member{
				Login:     u.GetLogin(),
				ID:        u.GetID(),
				AvatarURL: u.GetAvatarURL(),
				HTMLURL:   u.GetHTMLURL(),
			})
		}
		if resp.NextPage == 0 {
			return members, nil
		}
		opt.Page = resp.NextPage
	}
}

// MemberProfile loads one user through the user endpoint, which
// carries the public name and email the member listing omits.
func (c *Client) MemberProfile(ctx context.Context, login string) (Member, error) {
	u, _, err := c.api.Users.Get(ctx, login)
	if err != nil {
		return Member{}, fmt.Errorf("fetching user %s: %w", login, err)
	}
	return Member{
		Login:     u.GetLogin(),
		ID:        u.GetID(),
		Name:      u.GetName(),
		Email:     u.GetEmail(),
		AvatarURL: u.GetAvatarURL(),
		HTMLURL:   u.GetHTMLURL(),
	}, nil
}

// ClosedPRsByAuthor sweeps every repository in the organization for
// closed pull requests created by author, newest activity first, and
// returns at most maxPRs of them with contexts built. Repositories the
// installation cannot read are logged and skipped, never fatal.
func (c *Client) ClosedPRsByAuthor(ctx context.Context, org string, author Member, maxPRs int) ([]PRContent, error) {
	if maxPRs <= 0 {
		maxPRs = defaultMaxPRs
	}

	var prs []PRContent
	repoOpt := &gh.RepositoryListByOrgOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
	for {
		repos, resp, err := c.api.Repositories.ListByOrg(ctx, org, repoOpt)
		if err != nil {
			return nil, fmt.Errorf("listing repositories of %s: %w", org, err)
		}
		for _, repo := range repos {
			if len(prs) >= maxPRs {
				return prs, nil
			}
			found, err := c.closedPRsInRepo(ctx, org, repo.GetName(), author, maxPRs-len(prs))
			if err != nil {
				c.logger.Warn("skipping repository",
					"repo", repo.GetName(), "author", author.Login, "error", err)
				continue
			}
			prs = append(prs, found...)
		}
		if resp.NextPage == 0 {
			return prs, nil
		}
		repoOpt.Page = resp.NextPage
	}
}

func (c *Client) closedPRsInRepo(ctx context.Context, org, repo string, author Member, remaining int) ([]PRContent, error) {
	opt := &gh.PullRequestListOptions{
		State:       "closed",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	var out []PRContent
	for {
		page, resp, err := c.api.PullRequests.List(ctx, org, repo, opt)
		if err != nil {
			return nil, fmt.Errorf("listing closed pull requests in %s/%s: %w", org, repo, err)
		}
		for _, pr := range page {
			if pr.User == nil || pr.User.GetID() != author.ID {
				continue
			}
			content, err := c.prContent(ctx, org, repo, pr, author)
			if err != nil {
				c.logger.Warn("skipping pull request",
					"repo", repo, "number", pr.GetNumber(), "error", err)
				continue
			}
			out = append(out, content)
			if len(out) >= remaining {
				return out, nil
			}
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opt.Page = resp.NextPage
	}
}

func (c *Client) prContent(ctx context.Context, org, repo string, pr *gh.PullRequest, author Member) (PRContent, error) {
	files, err := c.prFiles(ctx, org, repo, pr.GetNumber())
	if err != nil {
		return PRContent{}, err
	}
	commits, err := c.prCommitMessages(ctx, org, repo, pr.GetNumber())
	if err != nil {
		return PRContent{}, err
	}

	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}
	filenames := make([]string, 0, len(files))
	for _, f := range files {
		filenames = append(filenames, f.Filename)
	}

	content := PRContent{
		ID:           pr.GetID(),
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		Body:         pr.GetBody(),
		HTMLURL:      pr.GetHTMLURL(),
		RepoName:     repo,
		Labels:       labels,
		ChangedFiles: filenames,
		Author:       author,
	}
	content.Context = BuildContext(content, files, commits)
	return content, nil
}

func (c *Client) prFiles(ctx context.Context, org, repo string, number int) ([]FileChange, error) {
	opt := &gh.ListOptions{PerPage: perPage}

	var files []FileChange
	for {
		page, resp, err := c.api.PullRequests.ListFiles(ctx, org, repo, number, opt)
		if err != nil {
			return nil, fmt.Errorf("listing files of %s/%s#%d: %w", org, repo, number, err)
		}
		for _, f := range page {
			files = append(files, FileChange{Filename: f.GetFilename(), Status: f.GetStatus()})
		}
		if resp.NextPage == 0 {
			return files, nil
		}
		opt.Page = resp.NextPage
	}
}

func (c *Client) prCommitMessages(ctx context.Context, org, repo string, number int) ([]string, error) {
	opt := &gh.ListOptions{PerPage: perPage}

	var messages []string
	for {
		page, resp, err := c.api.PullRequests.ListCommits(ctx, org, repo, number, opt)
		if err != nil {
			return nil, fmt.Errorf("listing commits of %s/%s#%d: %w", org, repo, number, err)
		}
		for _, rc := range page {
			messages = append(messages, rc.GetCommit().GetMessage())
		}
		if resp.NextPage == 0 {
			return messages, nil
		}
		opt.Page = resp.NextPage
	}
}
