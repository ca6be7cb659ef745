package jira

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourceiq/resourceiq/internal/testutil"
)

type fakeAPI struct {
	projects    []Project
	projectsErr error
	users       []User
	issues      map[string][]IssueContent // keyed by JQL
	searchErr   map[string]error
	searchCalls []string
	issueByKey  map[string]*IssueContent
	issueErr    error
}

func (f *fakeAPI) Projects(ctx context.Context) ([]Project, error) {
	return f.projects, f.projectsErr
}

func (f *fakeAPI) Users(ctx context.Context, max int) ([]User, error) {
	return f.users, nil
}

func (f *fakeAPI) ProjectUsers(ctx context.Context, projectKey string, max int) ([]User, error) {
	return f.users, nil
}

func (f *fakeAPI) UserByAccountID(ctx context.Context, accountID string) (*User, error) {
	for i := range f.users {
		if f.users[i].AccountID == accountID {
			return &f.users[i], nil
		}
	}
	return nil, fmt.Errorf("no such user %s", accountID)
}

func (f *fakeAPI) SearchIssues(ctx context.Context, jql string, max int, withComments bool) ([]IssueContent, error) {
	f.searchCalls = append(f.searchCalls, jql)
	if err := f.searchErr[jql]; err != nil {
		return nil, err
	}
	issues := f.issues[jql]
	if len(issues) > max {
		issues = issues[:max]
	}
	return issues, nil
}

func (f *fakeAPI) BrowseURL(issueKey string) string {
	return "https://acme.atlassian.net/browse/" + issueKey
}

func (f *fakeAPI) IssueByKey(ctx context.Context, key string, withComments bool) (*IssueContent, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	issue, ok := f.issueByKey[key]
	if !ok {
		return nil, fmt.Errorf("issue %s not found", key)
	}
	return issue, nil
}

type fakeConnector struct {
	api IssueAPI
	err error
}

func (f *fakeConnector) Connect(ctx context.Context) (IssueAPI, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.api, nil
}

type fakeIntegrations struct {
	integ *Integration
	err   error
}

func (f *fakeIntegrations) First(ctx context.Context) (*Integration, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.integ, nil
}

type fakeEmbedder struct {
	batchErr  error
	failTexts map[string]bool
	queries   []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.failTexts[text] {
			continue
		}
		out[i] = []float32{float32(i + 1), 0.5}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	f.queries = append(f.queries, text)
	return []float32{0.1, 0.2}, nil
}

type fakeVectors struct {
	upserts   []*IssueVector
	existing  map[string]bool // issue IDs that count as updates
	upsertErr map[string]error
	results   []VectorSearchResult
	searched  *vectorSearchParams
	deleted   []string
	deleteErr error
}

func (f *fakeVectors) Upsert(ctx context.Context, v *IssueVector) (bool, error) {
	if err := f.upsertErr[v.IssueKey]; err != nil {
		return false, err
	}
	f.upserts = append(f.upserts, v)
	return !f.existing[v.IssueID], nil
}

func (f *fakeVectors) SearchSimilar(ctx context.Context, embedding []float32, opts ...VectorSearchOption) ([]VectorSearchResult, error) {
	params := vectorSearchParams{topK: 10}
	for _, opt := range opts {
		opt(&params)
	}
	f.searched = &params
	return f.results, nil
}

func (f *fakeVectors) DeleteByIssueID(ctx context.Context, issueID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, issueID)
	return nil
}

func engIssue(key, issueType, status string, assignee *User) IssueContent {
	issue := IssueContent{
		IssueID:    "id-" + key,
		IssueKey:   key,
		ProjectKey: projectKeyOf(key),
		Summary:    "work on " + key,
		IssueType:  issueType,
		Status:     status,
		Assignee:   assignee,
	}
	issue.Context = BuildIssueContext(issue)
	return issue
}

func newTestService(t *testing.T, api IssueAPI, integrations IntegrationSource, emb Embedder, vecs VectorPersister) *Service {
	t.Helper()
	svc, err := NewService(&fakeConnector{api: api}, integrations, emb, vecs, testutil.DiscardLogger())
	require.NoError(t, err)
	return svc
}

const engJQL = `project = "ENG" AND statusCategory != Done ORDER BY updated DESC`

func TestService_Sync_EmbedsProjects(t *testing.T) {
	alice := &User{AccountID: "acc-1", DisplayName: "Alice Chen"}
	api := &fakeAPI{issues: map[string][]IssueContent{
		engJQL: {
			engIssue("ENG-1", "Bug", "Open", alice),
			engIssue("ENG-2", "Task", "To Do", nil),
		},
	}}
	vecs := &fakeVectors{existing: map[string]bool{"id-ENG-2": true}}
	svc := newTestService(t, api, nil, &fakeEmbedder{}, vecs)

	result, err := svc.Sync(context.Background(), SyncRequest{ProjectKeys: []string{"ENG"}})
	require.NoError(t, err)

	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, []string{"ENG"}, result.ProjectsSynced)
	assert.Equal(t, 2, result.IssuesSynced)
	assert.Equal(t, 2, result.EmbeddingsGenerated)
	assert.Equal(t, 1, result.IssuesCreated)
	assert.Equal(t, 1, result.IssuesUpdated)
	assert.Empty(t, result.Errors)
	assert.GreaterOrEqual(t, result.DurationSeconds, 0.0)

	require.Len(t, vecs.upserts, 2)
	first := vecs.upserts[0]
	assert.Equal(t, "id-ENG-1", first.IssueID)
	assert.Equal(t, "ENG-1", first.IssueKey)
	assert.Equal(t, "ENG", first.ProjectKey)
	assert.Equal(t, "acc-1", first.AssigneeAccountID)
	assert.Contains(t, first.Context, "SUMMARY: work on ENG-1")
	assert.Equal(t, []float32{1, 0.5}, first.Embedding)
	assert.Empty(t, vecs.upserts[1].AssigneeAccountID)
}

func TestService_Sync_DryRunSkipsEmbedding(t *testing.T) {
	api := &fakeAPI{issues: map[string][]IssueContent{
		engJQL: {engIssue("ENG-1", "Bug", "Open", nil)},
	}}
	vecs := &fakeVectors{}
	svc := newTestService(t, api, nil, &fakeEmbedder{}, vecs)

	off := false
	result, err := svc.Sync(context.Background(), SyncRequest{
		ProjectKeys:        []string{"ENG"},
		GenerateEmbeddings: &off,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.IssuesSynced)
	assert.Zero(t, result.EmbeddingsGenerated)
	assert.Empty(t, vecs.upserts)
}

func TestService_Sync_IncludeClosed(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api, nil, &fakeEmbedder{}, &fakeVectors{})

	on := true
	_, err := svc.Sync(context.Background(), SyncRequest{
		ProjectKeys:   []string{"ENG"},
		IncludeClosed: &on,
	})
	require.NoError(t, err)

	require.Len(t, api.searchCalls, 1)
	assert.Equal(t, `project = "ENG" ORDER BY updated DESC`, api.searchCalls[0])
}

func TestService_Sync_ProjectKeyFallbacks(t *testing.T) {
	t.Run("integration project list", func(t *testing.T) {
		api := &fakeAPI{}
		integ := &fakeIntegrations{integ: &Integration{ProjectKeys: "ENG, OPS,"}}
		svc := newTestService(t, api, integ, &fakeEmbedder{}, &fakeVectors{})

		result, err := svc.Sync(context.Background(), SyncRequest{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"ENG", "OPS"}, result.ProjectsSynced)
	})

	t.Run("all visible projects", func(t *testing.T) {
		api := &fakeAPI{projects: []Project{{Key: "A"}, {Key: "B"}}}
		integ := &fakeIntegrations{err: ErrNotConfigured}
		svc := newTestService(t, api, integ, &fakeEmbedder{}, &fakeVectors{})

		result, err := svc.Sync(context.Background(), SyncRequest{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"A", "B"}, result.ProjectsSynced)
	})

	t.Run("no projects anywhere", func(t *testing.T) {
		svc := newTestService(t, &fakeAPI{}, nil, &fakeEmbedder{}, &fakeVectors{})

		_, err := svc.Sync(context.Background(), SyncRequest{})
		assert.ErrorContains(t, err, "no projects")
	})
}

func TestService_Sync_PartialFailures(t *testing.T) {
	opsJQL := `project = "OPS" AND statusCategory != Done ORDER BY updated DESC`
	bad := engIssue("ENG-2", "Task", "Open", nil)
	api := &fakeAPI{
		issues: map[string][]IssueContent{
			engJQL: {
				engIssue("ENG-1", "Bug", "Open", nil),
				bad,
				engIssue("ENG-3", "Task", "Open", nil),
			},
		},
		searchErr: map[string]error{opsJQL: errors.New("boom")},
	}
	emb := &fakeEmbedder{failTexts: map[string]bool{bad.Context: true}}
	vecs := &fakeVectors{upsertErr: map[string]error{"ENG-3": errors.New("db down")}}
	svc := newTestService(t, api, nil, emb, vecs)

	result, err := svc.Sync(context.Background(), SyncRequest{ProjectKeys: []string{"ENG", "OPS"}})
	require.NoError(t, err)

	assert.Equal(t, "completed_with_errors", result.Status)
	assert.Equal(t, []string{"ENG"}, result.ProjectsSynced)
	assert.Equal(t, 3, result.IssuesSynced)
	assert.Equal(t, 1, result.EmbeddingsGenerated)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "embedding issue ENG-2 failed")
	assert.Contains(t, result.Errors[1], "storing issue ENG-3")
	assert.Contains(t, result.Errors[2], "project OPS")
}

func TestService_Sync_NotConfigured(t *testing.T) {
	svc, err := NewService(&fakeConnector{err: ErrNotConfigured}, nil, &fakeEmbedder{}, &fakeVectors{}, testutil.DiscardLogger())
	require.NoError(t, err)

	_, err = svc.Sync(context.Background(), SyncRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestService_Workload(t *testing.T) {
	alice := &User{AccountID: "acc-1", DisplayName: "Alice Chen", EmailAddress: "alice@acme.io"}
	jql := `assignee = "acc-1" AND statusCategory != Done`
	api := &fakeAPI{issues: map[string][]IssueContent{
		jql: {
			{IssueType: "Bug", Status: "In Progress", Priority: "High", Assignee: alice},
			{IssueType: "Task", Status: "To Do", Priority: "Low", Assignee: alice},
		},
	}}
	svc := newTestService(t, api, nil, &fakeEmbedder{}, &fakeVectors{})

	w, err := svc.Workload(context.Background(), "acc-1")
	require.NoError(t, err)

	assert.Equal(t, "Alice Chen", w.DisplayName)
	assert.Equal(t, 2, w.TotalActiveIssues)
	assert.Equal(t, 1, w.InProgressIssues)
	// 1 high * 3 + 1 low * 1 + 1 bug * 1.5 + 1 in progress * 0.5
	assert.Equal(t, 6.0, w.WorkloadScore)
}

func TestService_Workloads_SortsAndSkipsFailures(t *testing.T) {
	api := &fakeAPI{
		issues: map[string][]IssueContent{
			`assignee = "busy" AND statusCategory != Done`: {
				{IssueType: "Bug", Status: "In Progress", Priority: "High"},
				{IssueType: "Bug", Status: "Open", Priority: "High"},
			},
			`assignee = "idle" AND statusCategory != Done`: {},
		},
		searchErr: map[string]error{
			`assignee = "broken" AND statusCategory != Done`: errors.New("boom"),
		},
	}
	svc := newTestService(t, api, nil, &fakeEmbedder{}, &fakeVectors{})

	workloads, err := svc.Workloads(context.Background(), []string{"busy", "broken", "idle"})
	require.NoError(t, err)

	require.Len(t, workloads, 2)
	assert.Equal(t, "idle", workloads[0].AccountID)
	assert.Equal(t, "busy", workloads[1].AccountID)
	assert.Less(t, workloads[0].WorkloadScore, workloads[1].WorkloadScore)
}

func TestService_SearchSimilar(t *testing.T) {
	emb := &fakeEmbedder{}
	vecs := &fakeVectors{results: []VectorSearchResult{
		{IssueVector: IssueVector{IssueKey: "ENG-1"}, Similarity: 0.9},
	}}
	svc := newTestService(t, &fakeAPI{}, nil, emb, vecs)

	results, err := svc.SearchSimilar(context.Background(), "login bug", 5, "ENG", "acc-1")
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, []string{"login bug"}, emb.queries)
	require.NotNil(t, vecs.searched)
	assert.Equal(t, 5, vecs.searched.topK)
	assert.Equal(t, "ENG", vecs.searched.projectKey)
	assert.Equal(t, "acc-1", vecs.searched.assigneeAccountID)
}

func TestService_ProcessWebhookEvent(t *testing.T) {
	issue := engIssue("ENG-7", "Bug", "Open", &User{AccountID: "acc-1"})

	newSvc := func(vecs *fakeVectors) *Service {
		api := &fakeAPI{issueByKey: map[string]*IssueContent{"ENG-7": &issue}}
		return newTestService(t, api, nil, &fakeEmbedder{}, vecs)
	}

	t.Run("issue created", func(t *testing.T) {
		vecs := &fakeVectors{}
		res := newSvc(vecs).ProcessWebhookEvent(context.Background(), WebhookEvent{
			Event: "jira:issue_created",
			Issue: &WebhookIssue{ID: "id-ENG-7", Key: "ENG-7"},
		})

		assert.Equal(t, "processed", res.Status)
		assert.Equal(t, "created", res.Action)
		assert.Equal(t, "ENG-7", res.IssueKey)
		require.Len(t, vecs.upserts, 1)
		assert.Equal(t, "id-ENG-7", vecs.upserts[0].IssueID)
	})

	t.Run("issue updated", func(t *testing.T) {
		res := newSvc(&fakeVectors{}).ProcessWebhookEvent(context.Background(), WebhookEvent{
			Event: "jira:issue_updated",
			Issue: &WebhookIssue{ID: "id-ENG-7", Key: "ENG-7"},
		})
		assert.Equal(t, "processed", res.Status)
		assert.Equal(t, "updated", res.Action)
	})

	t.Run("issue deleted", func(t *testing.T) {
		vecs := &fakeVectors{}
		res := newSvc(vecs).ProcessWebhookEvent(context.Background(), WebhookEvent{
			Event: "jira:issue_deleted",
			Issue: &WebhookIssue{ID: "id-ENG-7", Key: "ENG-7"},
		})

		assert.Equal(t, "processed", res.Status)
		assert.Equal(t, "deleted", res.Action)
		assert.Equal(t, []string{"id-ENG-7"}, vecs.deleted)
	})

	t.Run("delete without stored vector", func(t *testing.T) {
		vecs := &fakeVectors{deleteErr: ErrVectorNotFound}
		res := newSvc(vecs).ProcessWebhookEvent(context.Background(), WebhookEvent{
			Event: "jira:issue_deleted",
			Issue: &WebhookIssue{ID: "id-GONE"},
		})

		assert.Equal(t, "ignored", res.Status)
		assert.Equal(t, "no stored vector", res.Reason)
	})

	t.Run("comment events resync the issue", func(t *testing.T) {
		vecs := &fakeVectors{}
		res := newSvc(vecs).ProcessWebhookEvent(context.Background(), WebhookEvent{
			Event: "comment_created",
			Issue: &WebhookIssue{ID: "id-ENG-7", Key: "ENG-7"},
		})

		assert.Equal(t, "processed", res.Status)
		assert.Equal(t, "resynced", res.Action)
		assert.Len(t, vecs.upserts, 1)
	})

	t.Run("sprint events acknowledged", func(t *testing.T) {
		res := newSvc(&fakeVectors{}).ProcessWebhookEvent(context.Background(), WebhookEvent{Event: "sprint_started"})
		assert.Equal(t, "acknowledged", res.Status)
	})

	t.Run("unknown events ignored", func(t *testing.T) {
		res := newSvc(&fakeVectors{}).ProcessWebhookEvent(context.Background(), WebhookEvent{Event: "worklog_updated"})
		assert.Equal(t, "ignored", res.Status)
	})

	t.Run("missing issue payload", func(t *testing.T) {
		res := newSvc(&fakeVectors{}).ProcessWebhookEvent(context.Background(), WebhookEvent{Event: "jira:issue_created"})
		assert.Equal(t, "ignored", res.Status)
		assert.Equal(t, "no issue in payload", res.Reason)
	})

	t.Run("fetch failure reported", func(t *testing.T) {
		api := &fakeAPI{issueErr: errors.New("boom")}
		svc := newTestService(t, api, nil, &fakeEmbedder{}, &fakeVectors{})
		res := svc.ProcessWebhookEvent(context.Background(), WebhookEvent{
			Event: "jira:issue_updated",
			Issue: &WebhookIssue{ID: "id-ENG-7", Key: "ENG-7"},
		})

		assert.Equal(t, "error", res.Status)
		assert.Contains(t, res.Error, "boom")
	})
}

func TestService_DirectoryLookups(t *testing.T) {
	api := &fakeAPI{
		projects: []Project{{Key: "ENG", Name: "Engineering"}},
		users:    []User{{AccountID: "acc-1", DisplayName: "Alice Chen"}},
	}
	svc := newTestService(t, api, nil, &fakeEmbedder{}, &fakeVectors{})
	ctx := context.Background()

	projects, err := svc.Projects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	users, err := svc.Users(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	assignable, err := svc.ProjectUsers(ctx, "ENG", 10)
	require.NoError(t, err)
	assert.Len(t, assignable, 1)

	user, err := svc.UserByAccountID(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice Chen", user.DisplayName)

	links, err := svc.BrowseURLs(ctx, []string{"ENG-1", "ENG-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://acme.atlassian.net/browse/ENG-1",
		"https://acme.atlassian.net/browse/ENG-2",
	}, links)
}

func TestClientProvider_Connect(t *testing.T) {
	creds := BasicCredentials{URL: "https://acme.atlassian.net/", Email: "dev@acme.io", APIToken: "tok"}

	t.Run("basic fallback without oauth", func(t *testing.T) {
		p := NewClientProvider(nil, creds, nil, testutil.DiscardLogger())

		api, err := p.Connect(context.Background())
		require.NoError(t, err)
		client, ok := api.(*Client)
		require.True(t, ok)
		assert.Equal(t, "https://acme.atlassian.net", client.apiBase)
		assert.Empty(t, client.bearer)
	})

	t.Run("not configured", func(t *testing.T) {
		p := NewClientProvider(nil, BasicCredentials{}, nil, testutil.DiscardLogger())

		_, err := p.Connect(context.Background())
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("oauth token preferred", func(t *testing.T) {
		tokens := &fakeTokens{latest: &OAuthToken{
			AccessToken: "at-1",
			CloudID:     "cloud-1",
			SiteURL:     "https://acme.atlassian.net",
			ExpiresAt:   time.Now().Add(time.Hour),
		}}
		oauth := newTestOAuth(t, tokens)
		p := NewClientProvider(oauth, creds, nil, testutil.DiscardLogger())

		api, err := p.Connect(context.Background())
		require.NoError(t, err)
		client, ok := api.(*Client)
		require.True(t, ok)
		assert.Equal(t, "https://api.atlassian.com/ex/jira/cloud-1", client.apiBase)
		assert.Equal(t, "at-1", client.bearer)
	})

	t.Run("oauth token without cloud id", func(t *testing.T) {
		tokens := &fakeTokens{latest: &OAuthToken{
			AccessToken: "at-1",
			ExpiresAt:   time.Now().Add(time.Hour),
		}}
		oauth := newTestOAuth(t, tokens)
		p := NewClientProvider(oauth, creds, nil, testutil.DiscardLogger())

		_, err := p.Connect(context.Background())
		assert.ErrorContains(t, err, "cloud id")
	})

	t.Run("no token falls back to basic", func(t *testing.T) {
		oauth := newTestOAuth(t, &fakeTokens{})
		p := NewClientProvider(oauth, creds, nil, testutil.DiscardLogger())

		api, err := p.Connect(context.Background())
		require.NoError(t, err)
		client, ok := api.(*Client)
		require.True(t, ok)
		assert.Empty(t, client.bearer)
	})
}
