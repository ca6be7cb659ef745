package api

// In-memory fakes for every store and service the handlers consume,
// plus the request plumbing shared by the handler tests. Each test
// builds a full server around these fakes so requests run through the
// real routes and middleware stack.

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/resourceiq/resourceiq/internal/auth"
	"github.com/resourceiq/resourceiq/internal/embedding"
	"github.com/resourceiq/resourceiq/internal/github"
	"github.com/resourceiq/resourceiq/internal/item"
	"github.com/resourceiq/resourceiq/internal/jira"
	"github.com/resourceiq/resourceiq/internal/profile"
	"github.com/resourceiq/resourceiq/internal/score"
	"github.com/resourceiq/resourceiq/internal/user"
)

// decodeData unmarshals a success response body into dst.
func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decoding response body %q: %v", w.Body.String(), err)
	}
}

// decodeErrorEnvelope unmarshals an error response and returns its
// code/message detail.
func decodeErrorEnvelope(t *testing.T, w *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", w.Body.String(), err)
	}
	return body.Error
}

// hashCache amortizes bcrypt across tests; the fixture passwords never
// change, so each plaintext is hashed once per process.
var hashCache sync.Map

func hashForTest(t *testing.T, pw string) string {
	t.Helper()
	if h, ok := hashCache.Load(pw); ok {
		return h.(string)
	}
	h, err := auth.HashPassword(pw)
	require.NoError(t, err)
	hashCache.Store(pw, h)
	return h
}

// fakeUserStore implements UserStore with a map, mirroring the
// PostgreSQL store's sentinel errors.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
	err   error // forced on every call when set
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*user.User)}
}

func (f *fakeUserStore) add(u *user.User) *user.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	f.users[u.ID] = u
	return u
}

// findEmail scans by email. Callers hold f.mu.
func (f *fakeUserStore) findEmail(email string) *user.User {
	for _, u := range f.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (f *fakeUserStore) Create(_ context.Context, p user.CreateParams) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.findEmail(p.Email) != nil {
		return nil, user.ErrEmailTaken
	}
	now := time.Now()
	u := &user.User{
		ID:             uuid.New(),
		Email:          p.Email,
		HashedPassword: p.HashedPassword,
		IsActive:       p.IsActive,
		IsSuperuser:    p.IsSuperuser,
		FullName:       p.FullName,
		Role:           p.Role,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) List(_ context.Context, limit, offset int) ([]*user.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, 0, f.err
	}
	all := make([]*user.User, 0, len(f.users))
	for _, u := range f.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
	total := len(all)
	if offset >= total {
		return []*user.User{}, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (f *fakeUserStore) Update(_ context.Context, id uuid.UUID, p user.UpdateParams) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	if p.Email != nil {
		if other := f.findEmail(*p.Email); other != nil && other.ID != id {
			return nil, user.ErrEmailTaken
		}
		u.Email = *p.Email
	}
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.HashedPassword != nil {
		u.HashedPassword = *p.HashedPassword
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if p.IsSuperuser != nil {
		u.IsSuperuser = *p.IsSuperuser
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	u.UpdatedAt = time.Now()
	return u, nil
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, id uuid.UUID, hashedPassword string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.HashedPassword = hashedPassword
	u.UpdatedAt = time.Now()
	return nil
}

func (f *fakeUserStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUserStore) Authenticate(_ context.Context, email, password string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u := f.findEmail(email)
	if u == nil || !auth.VerifyPassword(password, u.HashedPassword) {
		return nil, user.ErrInvalidCredentials
	}
	return u, nil
}

// fakeItemStore implements ItemStore with a map.
type fakeItemStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*item.Item
	err   error
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{items: make(map[uuid.UUID]*item.Item)}
}

func (f *fakeItemStore) add(it *item.Item) *item.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	now := time.Now()
	it.CreatedAt, it.UpdatedAt = now, now
	f.items[it.ID] = it
	return it
}

func (f *fakeItemStore) Create(_ context.Context, p item.CreateParams) (*item.Item, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.add(&item.Item{
		Title:       p.Title,
		Description: p.Description,
		OwnerID:     p.OwnerID,
	}), nil
}

func (f *fakeItemStore) GetByID(_ context.Context, id uuid.UUID) (*item.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	it, ok := f.items[id]
	if !ok {
		return nil, item.ErrNotFound
	}
	return it, nil
}

// sorted returns all items ordered by title. Callers hold f.mu.
func (f *fakeItemStore) sorted() []*item.Item {
	all := make([]*item.Item, 0, len(f.items))
	for _, it := range f.items {
		all = append(all, it)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Title < all[j].Title })
	return all
}

func page(all []*item.Item, limit, offset int) []*item.Item {
	if offset >= len(all) {
		return []*item.Item{}
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all
}

func (f *fakeItemStore) ListAll(_ context.Context, limit, offset int) ([]*item.Item, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, 0, f.err
	}
	all := f.sorted()
	return page(all, limit, offset), len(all), nil
}

func (f *fakeItemStore) ListByOwner(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]*item.Item, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, 0, f.err
	}
	owned := []*item.Item{}
	for _, it := range f.sorted() {
		if it.OwnerID == ownerID {
			owned = append(owned, it)
		}
	}
	return page(owned, limit, offset), len(owned), nil
}

func (f *fakeItemStore) Update(_ context.Context, id uuid.UUID, p item.UpdateParams) (*item.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	it, ok := f.items[id]
	if !ok {
		return nil, item.ErrNotFound
	}
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Description != nil {
		it.Description = *p.Description
	}
	it.UpdatedAt = time.Now()
	return it, nil
}

func (f *fakeItemStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.items[id]; !ok {
		return item.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

// fakeProfileStore implements ProfileStore with a map keyed by user ID.
// Connect mirrors the real store: the profile is created when missing,
// and an identity held by a different profile conflicts.
type fakeProfileStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*profile.Profile
	nextID   int64
	err      error

	workloads []profile.Workload
	lastSort  string
	lastLimit int
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: make(map[uuid.UUID]*profile.Profile)}
}

// create builds a profile. Callers hold f.mu.
func (f *fakeProfileStore) create(userID uuid.UUID, skills, domains []string) *profile.Profile {
	f.nextID++
	if skills == nil {
		skills = []string{}
	}
	if domains == nil {
		domains = []string{}
	}
	now := time.Now()
	p := &profile.Profile{
		ID:        f.nextID,
		UserID:    userID,
		Skills:    skills,
		Domains:   domains,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.profiles[userID] = p
	return p
}

func (f *fakeProfileStore) Create(_ context.Context, userID uuid.UUID, skills, domains []string) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.profiles[userID]; ok {
		return nil, profile.ErrExists
	}
	return f.create(userID, skills, domains), nil
}

func (f *fakeProfileStore) GetByUserID(_ context.Context, userID uuid.UUID) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfileStore) EnsureForUser(_ context.Context, userID uuid.UUID) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return f.create(userID, nil, nil), nil
}

func (f *fakeProfileStore) GetByJiraAccountID(_ context.Context, accountID string) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.profiles {
		if p.JiraAccountID == accountID && accountID != "" {
			return p, nil
		}
	}
	return nil, profile.ErrNotFound
}

func (f *fakeProfileStore) GetByGithubLogin(_ context.Context, login string) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.profiles {
		if p.GithubLogin == login && login != "" {
			return p, nil
		}
	}
	return nil, profile.ErrNotFound
}

func (f *fakeProfileStore) List(_ context.Context, hasJira, hasGithub *bool, limit int) ([]*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.lastLimit = limit
	out := []*profile.Profile{}
	for _, p := range f.profiles {
		if hasJira != nil && p.HasJira != *hasJira {
			continue
		}
		if hasGithub != nil && p.HasGithub != *hasGithub {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeProfileStore) ConnectJira(_ context.Context, userID uuid.UUID, identity profile.JiraIdentity) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.profiles {
		if p.JiraAccountID == identity.AccountID && p.UserID != userID {
			return nil, profile.ErrAlreadyConnected
		}
	}
	p, ok := f.profiles[userID]
	if !ok {
		p = f.create(userID, nil, nil)
	}
	now := time.Now()
	p.JiraAccountID = identity.AccountID
	p.JiraDisplayName = identity.DisplayName
	p.JiraEmail = identity.Email
	p.JiraAvatarURL = identity.AvatarURL
	p.JiraConnectedAt = &now
	p.HasJira = true
	p.UpdatedAt = now
	return p, nil
}

func (f *fakeProfileStore) ConnectGithub(_ context.Context, userID uuid.UUID, identity profile.GithubIdentity) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.profiles {
		if p.GithubLogin == identity.Login && p.UserID != userID {
			return nil, profile.ErrAlreadyConnected
		}
	}
	p, ok := f.profiles[userID]
	if !ok {
		p = f.create(userID, nil, nil)
	}
	now := time.Now()
	p.GithubID = identity.ID
	p.GithubLogin = identity.Login
	p.GithubDisplayName = identity.DisplayName
	p.GithubEmail = identity.Email
	p.GithubAvatarURL = identity.AvatarURL
	p.GithubConnectedAt = &now
	p.HasGithub = true
	p.UpdatedAt = now
	return p, nil
}

func (f *fakeProfileStore) DisconnectJira(_ context.Context, userID uuid.UUID) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	p.JiraAccountID = ""
	p.JiraDisplayName = ""
	p.JiraEmail = ""
	p.JiraAvatarURL = ""
	p.JiraConnectedAt = nil
	p.HasJira = false
	p.UpdatedAt = time.Now()
	return p, nil
}

func (f *fakeProfileStore) DisconnectGithub(_ context.Context, userID uuid.UUID) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	p.GithubID = 0
	p.GithubLogin = ""
	p.GithubDisplayName = ""
	p.GithubEmail = ""
	p.GithubAvatarURL = ""
	p.GithubConnectedAt = nil
	p.HasGithub = false
	p.UpdatedAt = time.Now()
	return p, nil
}

func (f *fakeProfileStore) UpdateSkills(_ context.Context, userID uuid.UUID, skills, domains []string) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	if skills != nil {
		p.Skills = skills
	}
	if domains != nil {
		p.Domains = domains
	}
	p.UpdatedAt = time.Now()
	return p, nil
}

func (f *fakeProfileStore) Workloads(_ context.Context, sortBy string) ([]profile.Workload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.lastSort = sortBy
	return f.workloads, nil
}

// fakeMatcher implements AccountMatcher.
type fakeMatcher struct {
	matches       []profile.Match
	err           error
	lastThreshold float64
}

func (f *fakeMatcher) MatchJiraGithub(_ context.Context, threshold float64) ([]profile.Match, error) {
	f.lastThreshold = threshold
	return f.matches, f.err
}

// fakeGithubService implements GithubService with canned data and
// recorded call arguments.
type fakeGithubService struct {
	members     []github.Member
	prs         []github.PRContent
	syncResult  *github.SyncResult
	syncResults []*github.SyncResult
	results     []embedding.SearchResult
	err         error

	lastLogin  string
	lastMaxPRs int
	lastQuery  string
	lastN      int
	lastAuthor string
}

func (f *fakeGithubService) Developers(context.Context) ([]github.Member, error) {
	return f.members, f.err
}

func (f *fakeGithubService) AuthorPRs(_ context.Context, login string, maxPRs int) ([]github.PRContent, error) {
	f.lastLogin, f.lastMaxPRs = login, maxPRs
	return f.prs, f.err
}

func (f *fakeGithubService) SyncAuthor(_ context.Context, login string, maxPRs int) (*github.SyncResult, error) {
	f.lastLogin, f.lastMaxPRs = login, maxPRs
	return f.syncResult, f.err
}

func (f *fakeGithubService) SyncAll(_ context.Context, maxPRsPerAuthor int) ([]*github.SyncResult, error) {
	f.lastMaxPRs = maxPRsPerAuthor
	return f.syncResults, f.err
}

func (f *fakeGithubService) SearchSimilar(_ context.Context, query string, n int, authorLogin string) ([]embedding.SearchResult, error) {
	f.lastQuery, f.lastN, f.lastAuthor = query, n, authorLogin
	return f.results, f.err
}

// fakeInstallationRecorder implements InstallationRecorder.
type fakeInstallationRecorder struct {
	err       error
	installID int64
	orgName   string
	calls     int
}

func (f *fakeInstallationRecorder) UpsertInstallation(_ context.Context, installID int64, orgName string) error {
	if f.err != nil {
		return f.err
	}
	f.installID, f.orgName = installID, orgName
	f.calls++
	return nil
}

// fakeJiraService implements JiraService.
type fakeJiraService struct {
	projects   []jira.Project
	users      []jira.User
	user       *jira.User
	syncResult *jira.SyncResult
	workload   *jira.Workload
	workloads  []jira.Workload
	results    []jira.VectorSearchResult
	issue      *jira.IssueContent
	webhook    *jira.WebhookResult
	err        error

	lastMax        int
	lastProjectKey string
	lastAccountID  string
	lastAccountIDs []string
	lastSyncReq    jira.SyncRequest
	lastQuery      string
	lastTopK       int
	lastAssignee   string
	lastIssueKey   string
	lastEvent      jira.WebhookEvent
}

func (f *fakeJiraService) Projects(context.Context) ([]jira.Project, error) {
	return f.projects, f.err
}

func (f *fakeJiraService) Users(_ context.Context, max int) ([]jira.User, error) {
	f.lastMax = max
	return f.users, f.err
}

func (f *fakeJiraService) ProjectUsers(_ context.Context, projectKey string, max int) ([]jira.User, error) {
	f.lastProjectKey, f.lastMax = projectKey, max
	return f.users, f.err
}

func (f *fakeJiraService) UserByAccountID(_ context.Context, accountID string) (*jira.User, error) {
	f.lastAccountID = accountID
	return f.user, f.err
}

func (f *fakeJiraService) Sync(_ context.Context, req jira.SyncRequest) (*jira.SyncResult, error) {
	f.lastSyncReq = req
	return f.syncResult, f.err
}

func (f *fakeJiraService) Workload(_ context.Context, accountID string) (*jira.Workload, error) {
	f.lastAccountID = accountID
	return f.workload, f.err
}

func (f *fakeJiraService) Workloads(_ context.Context, accountIDs []string) ([]jira.Workload, error) {
	f.lastAccountIDs = accountIDs
	return f.workloads, f.err
}

func (f *fakeJiraService) SearchSimilar(_ context.Context, query string, topK int, projectKey, assigneeAccountID string) ([]jira.VectorSearchResult, error) {
	f.lastQuery, f.lastTopK = query, topK
	f.lastProjectKey, f.lastAssignee = projectKey, assigneeAccountID
	return f.results, f.err
}

func (f *fakeJiraService) IssueContext(_ context.Context, issueKey string) (*jira.IssueContent, error) {
	f.lastIssueKey = issueKey
	return f.issue, f.err
}

func (f *fakeJiraService) ProcessWebhookEvent(_ context.Context, ev jira.WebhookEvent) *jira.WebhookResult {
	f.lastEvent = ev
	if f.webhook != nil {
		return f.webhook
	}
	return &jira.WebhookResult{Status: "success", Event: ev.Event}
}

// fakeOAuthFlow implements OAuthFlow.
type fakeOAuthFlow struct {
	authURL string
	state   string
	token   *jira.OAuthToken
	authErr error
	cbErr   error

	lastCode  string
	lastState string
}

func (f *fakeOAuthFlow) AuthorizationURL() (string, string, error) {
	return f.authURL, f.state, f.authErr
}

func (f *fakeOAuthFlow) HandleCallback(_ context.Context, code, state string) (*jira.OAuthToken, error) {
	f.lastCode, f.lastState = code, state
	if f.cbErr != nil {
		return nil, f.cbErr
	}
	return f.token, nil
}

// fakeVectorReader implements IssueVectorReader.
type fakeVectorReader struct {
	vectors []*jira.IssueVector
	err     error

	lastProject  string
	lastAssignee string
	lastLimit    int
}

func (f *fakeVectorReader) List(_ context.Context, projectKey, assigneeAccountID string, limit int) ([]*jira.IssueVector, error) {
	f.lastProject, f.lastAssignee, f.lastLimit = projectKey, assigneeAccountID, limit
	return f.vectors, f.err
}

func (f *fakeVectorReader) GetByKey(_ context.Context, issueKey string) (*jira.IssueVector, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, v := range f.vectors {
		if v.IssueKey == issueKey {
			return v, nil
		}
	}
	return nil, jira.ErrVectorNotFound
}

// fakeRanker implements BestFitRanker.
type fakeRanker struct {
	ranked    []score.ScoreProfile
	err       error
	lastInput score.BestFitInput
}

func (f *fakeRanker) BestFits(_ context.Context, input score.BestFitInput) ([]score.ScoreProfile, error) {
	f.lastInput = input
	return f.ranked, f.err
}

// Fixture credentials for the seeded accounts.
const (
	adminPassword  = "admin-password-1!"
	memberPassword = "member-password-1!"

	githubTestSecret = "gh-webhook-secret"
	jiraTestSecret   = "jira-webhook-secret"
)

// testEnv is a full server wired to fakes, with one superuser and one
// regular user seeded.
type testEnv struct {
	users    *fakeUserStore
	items    *fakeItemStore
	profiles *fakeProfileStore
	matcher  *fakeMatcher
	github   *fakeGithubService
	installs *fakeInstallationRecorder
	jira     *fakeJiraService
	oauth    *fakeOAuthFlow
	vectors  *fakeVectorReader
	ranker   *fakeRanker
	tokens   *auth.TokenManager

	admin  *user.User
	member *user.User

	handler http.Handler
}

// newTestEnv builds the environment. Options mutate the ServerConfig
// before construction, for tests covering optional wiring.
func newTestEnv(t *testing.T, opts ...func(*ServerConfig)) *testEnv {
	t.Helper()

	env := &testEnv{
		users:    newFakeUserStore(),
		items:    newFakeItemStore(),
		profiles: newFakeProfileStore(),
		matcher:  &fakeMatcher{},
		github:   &fakeGithubService{},
		installs: &fakeInstallationRecorder{},
		jira:     &fakeJiraService{},
		oauth:    &fakeOAuthFlow{authURL: "https://auth.atlassian.com/authorize?client_id=x", state: "state-abc"},
		vectors:  &fakeVectorReader{},
		ranker:   &fakeRanker{},
		tokens:   auth.NewTokenManager([]byte("test-secret-at-least-32-characters!!"), time.Hour),
	}

	env.admin = env.users.add(&user.User{
		Email:          "admin@example.com",
		HashedPassword: hashForTest(t, adminPassword),
		IsActive:       true,
		IsSuperuser:    true,
		FullName:       "Site Admin",
		Role:           auth.RoleAdmin,
	})
	env.member = env.users.add(&user.User{
		Email:          "dev@example.com",
		HashedPassword: hashForTest(t, memberPassword),
		IsActive:       true,
		FullName:       "Dana Developer",
		Role:           auth.RoleUser,
	})

	cfg := ServerConfig{
		Logger:              discardLogger(),
		TokenManager:        env.tokens,
		Users:               env.users,
		Items:               env.items,
		Profiles:            env.profiles,
		Github:              env.github,
		Installations:       env.installs,
		Jira:                env.jira,
		JiraVectors:         env.vectors,
		Ranker:              env.ranker,
		JiraOAuth:           env.oauth,
		Matcher:             env.matcher,
		GithubWebhookSecret: githubTestSecret,
		JiraWebhookSecret:   jiraTestSecret,
		IsDev:               true,
		RateBurst:           100000, // tests must never trip the limiter
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	env.handler = srv.Handler()
	return env
}

// token issues a signed access token for the user.
func (e *testEnv) token(t *testing.T, u *user.User) string {
	t.Helper()
	tok, err := e.tokens.Create(u.ID, u.Role)
	require.NoError(t, err)
	return tok
}

// do sends one JSON request through the full middleware stack and
// routes. A nil user leaves the request unauthenticated.
func (e *testEnv) do(t *testing.T, method, path string, body any, as *user.User) *httptest.ResponseRecorder {
	t.Helper()

	var rd *bytes.Buffer
	if body != nil {
		rd = &bytes.Buffer{}
		require.NoError(t, json.NewEncoder(rd).Encode(body))
	} else {
		rd = bytes.NewBuffer(nil)
	}

	r := httptest.NewRequest(method, path, rd)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		r.Header.Set("Authorization", "Bearer "+e.token(t, as))
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

// doForm posts a URL-encoded form, as the login route expects.
func (e *testEnv) doForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

// doRaw sends a caller-built request; webhook tests construct their own
// bodies and signature headers.
func (e *testEnv) doRaw(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

// newRequest builds a bare request for tests that set their own headers.
func newRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}
