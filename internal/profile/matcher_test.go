package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourceiq/resourceiq/internal/github"
	"github.com/resourceiq/resourceiq/internal/jira"
	"github.com/resourceiq/resourceiq/internal/testutil"
)

type fakeGithubDirectory struct {
	members []github.Member
	err     error
}

func (f *fakeGithubDirectory) DevelopersDetailed(context.Context) ([]github.Member, error) {
	return f.members, f.err
}

type fakeJiraDirectory struct {
	users []jira.User
	err   error
	max   int
}

func (f *fakeJiraDirectory) Users(_ context.Context, max int) ([]jira.User, error) {
	f.max = max
	return f.users, f.err
}

func newTestMatcher(t *testing.T, gh *fakeGithubDirectory, jr *fakeJiraDirectory) *Matcher {
	t.Helper()

	m, err := NewMatcher(gh, jr, testutil.DiscardLogger())
	require.NoError(t, err)
	return m
}

func TestBestJiraMatch(t *testing.T) {
	t.Parallel()

	liddell := jira.User{AccountID: "acc-1", DisplayName: "Alice Liddell"}

	tests := []struct {
		name      string
		member    github.Member
		users     []jira.User
		wantID    string
		wantScore float64
		wantOK    bool
	}{
		{
			name:   "email match wins outright",
			member: github.Member{Login: "alicedev", Email: "Alice@Acme.dev"},
			users: []jira.User{
				{AccountID: "acc-2", EmailAddress: "other@acme.dev"},
				{AccountID: "acc-1", EmailAddress: " alice@acme.dev ", DisplayName: "Somebody Else"},
			},
			wantID:    "acc-1",
			wantScore: 100,
			wantOK:    true,
		},
		{
			name:      "name and login similarity stack",
			member:    github.Member{Login: "alice", Name: "Alice Liddell"},
			users:     []jira.User{{AccountID: "acc-1", DisplayName: "Liddell Alice"}},
			wantID:    "acc-1",
			wantScore: 100,
			wantOK:    true,
		},
		{
			name:      "login alone carries half",
			member:    github.Member{Login: "alice"},
			users:     []jira.User{liddell},
			wantID:    "acc-1",
			wantScore: 50,
			wantOK:    true,
		},
		{
			name:      "short login is damped",
			member:    github.Member{Login: "al"},
			users:     []jira.User{liddell},
			wantID:    "acc-1",
			wantScore: 20,
			wantOK:    true,
		},
		{
			name:   "no signal yields no match",
			member: github.Member{},
			users:  []jira.User{liddell},
			wantOK: false,
		},
		{
			name:   "picks the better candidate",
			member: github.Member{Login: "bob", Name: "Bob Kowalski"},
			users: []jira.User{
				{AccountID: "acc-3", DisplayName: "Bobby Tables"},
				{AccountID: "acc-4", DisplayName: "Bob Kowalski"},
			},
			wantID:    "acc-4",
			wantScore: 100,
			wantOK:    true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, score, ok := bestJiraMatch(tc.member, tc.users)
			assert.Equal(t, tc.wantOK, ok)
			if !tc.wantOK {
				return
			}
			assert.Equal(t, tc.wantID, got.AccountID)
			assert.InDelta(t, tc.wantScore, score, 0.001)
		})
	}
}

func TestMatcher_MatchJiraGithub(t *testing.T) {
	t.Parallel()

	gh := &fakeGithubDirectory{members: []github.Member{
		{Login: "alicedev", ID: 1, Email: "alice@acme.dev"},
		{Login: "bob", ID: 2, Name: "Bob Kowalski"},
		{Login: "zz", ID: 3},
	}}
	jr := &fakeJiraDirectory{users: []jira.User{
		{AccountID: "acc-alice", DisplayName: "Alice Liddell", EmailAddress: "alice@acme.dev"},
		{AccountID: "acc-bob", DisplayName: "Bob Kowalski"},
	}}
	m := newTestMatcher(t, gh, jr)

	matches, err := m.MatchJiraGithub(context.Background(), DefaultMatchThreshold)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, matcherMaxJiraUsers, jr.max)

	assert.Equal(t, "alicedev", matches[0].GithubAccount.Login)
	assert.Equal(t, "acc-alice", matches[0].JiraAccount.AccountID)
	assert.InDelta(t, 100, matches[0].MatchScore, 0.001)

	assert.Equal(t, "bob", matches[1].GithubAccount.Login)
	assert.Equal(t, "acc-bob", matches[1].JiraAccount.AccountID)
	assert.InDelta(t, 100, matches[1].MatchScore, 0.001)
}

func TestMatcher_KeepsScoresAtThreshold(t *testing.T) {
	t.Parallel()

	gh := &fakeGithubDirectory{members: []github.Member{{Login: "alice", ID: 1}}}
	jr := &fakeJiraDirectory{users: []jira.User{{AccountID: "acc-1", DisplayName: "Alice Liddell"}}}
	m := newTestMatcher(t, gh, jr)

	// Login similarity alone scores exactly 50.
	matches, err := m.MatchJiraGithub(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 50, matches[0].MatchScore, 0.001)

	matches, err = m.MatchJiraGithub(context.Background(), 51)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatcher_ThresholdValidation(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(t, &fakeGithubDirectory{}, &fakeJiraDirectory{})

	for _, threshold := range []float64{-0.1, 100.1} {
		_, err := m.MatchJiraGithub(context.Background(), threshold)
		assert.ErrorContains(t, err, "between 0 and 100")
	}
}

func TestMatcher_DirectoryErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	m := newTestMatcher(t, &fakeGithubDirectory{err: boom}, &fakeJiraDirectory{})
	_, err := m.MatchJiraGithub(context.Background(), DefaultMatchThreshold)
	assert.ErrorIs(t, err, boom)

	m = newTestMatcher(t, &fakeGithubDirectory{}, &fakeJiraDirectory{err: boom})
	_, err = m.MatchJiraGithub(context.Background(), DefaultMatchThreshold)
	assert.ErrorIs(t, err, boom)
}
