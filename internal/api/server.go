package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/resourceiq/resourceiq/internal/auth"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger *slog.Logger

	TokenManager *auth.TokenManager // Required
	Users        UserStore          // Required
	Items        ItemStore          // Required
	Profiles     ProfileStore       // Required

	Github        GithubService        // Required
	Installations InstallationRecorder // Required
	Jira          JiraService          // Required
	JiraVectors   IssueVectorReader    // Required
	Ranker        BestFitRanker        // Required

	JiraOAuth OAuthFlow      // Optional: nil disables the OAuth routes
	Matcher   AccountMatcher // Optional: nil disables account matching

	Pool *pgxpool.Pool // Optional: nil degrades /ready to a liveness probe

	GithubWebhookSecret string
	JiraWebhookSecret   string

	CORSOrigins []string // Allowed origins for CORS
	IsDev       bool     // Disables HSTS for plain-HTTP development
	TrustProxy  bool     // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst   int      // Rate limiter burst size per IP (0 = default 60)
	Tracing     bool     // Wrap the API in OpenTelemetry HTTP spans
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.TokenManager == nil {
		return nil, errors.New("token manager is required")
	}
	if cfg.Users == nil {
		return nil, errors.New("user store is required")
	}
	if cfg.Items == nil {
		return nil, errors.New("item store is required")
	}
	if cfg.Profiles == nil {
		return nil, errors.New("profile store is required")
	}
	if cfg.Github == nil || cfg.Installations == nil {
		return nil, errors.New("github service and installation store are required")
	}
	if cfg.Jira == nil || cfg.JiraVectors == nil {
		return nil, errors.New("jira service and vector store are required")
	}
	if cfg.Ranker == nil {
		return nil, errors.New("score service is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	authn := &authenticator{tokens: cfg.TokenManager, users: cfg.Users, logger: logger}
	login := &authHandler{users: cfg.Users, tokens: cfg.TokenManager, logger: logger}
	users := &userHandler{users: cfg.Users, logger: logger}
	items := &itemHandler{items: cfg.Items, logger: logger}
	profiles := &profileHandler{profiles: cfg.Profiles, matcher: cfg.Matcher, logger: logger}
	vectors := &vectorHandler{service: cfg.Github, logger: logger}
	gh := &githubHandler{
		service:       cfg.Github,
		installations: cfg.Installations,
		webhookSecret: cfg.GithubWebhookSecret,
		logger:        logger,
	}
	jr := &jiraHandler{
		service:       cfg.Jira,
		oauth:         cfg.JiraOAuth,
		vectors:       cfg.JiraVectors,
		profiles:      cfg.Profiles,
		webhookSecret: cfg.JiraWebhookSecret,
		logger:        logger,
	}
	scores := &scoreHandler{ranker: cfg.Ranker, logger: logger}

	mux := http.NewServeMux()

	// Login
	mux.HandleFunc("POST /api/v1/login/access-token", login.accessToken)
	mux.HandleFunc("POST /api/v1/login/test-token", authn.require(login.testToken))

	// Users
	mux.HandleFunc("GET /api/v1/users/{$}", authn.requireAdmin(users.list))
	mux.HandleFunc("POST /api/v1/users/{$}", authn.requireAdmin(users.create))
	mux.HandleFunc("POST /api/v1/users/signup", users.signup)
	mux.HandleFunc("GET /api/v1/users/me", authn.require(users.me))
	mux.HandleFunc("PATCH /api/v1/users/me", authn.require(users.updateMe))
	mux.HandleFunc("PATCH /api/v1/users/me/password", authn.require(users.updateMyPassword))
	mux.HandleFunc("DELETE /api/v1/users/me", authn.require(users.deleteMe))
	mux.HandleFunc("GET /api/v1/users/{id}", authn.require(users.get))
	mux.HandleFunc("PATCH /api/v1/users/{id}", authn.requireAdmin(users.update))
	mux.HandleFunc("DELETE /api/v1/users/{id}", authn.requireAdmin(users.delete))

	// Items
	mux.HandleFunc("GET /api/v1/items/{$}", authn.require(items.list))
	mux.HandleFunc("POST /api/v1/items/{$}", authn.require(items.create))
	mux.HandleFunc("GET /api/v1/items/{id}", authn.require(items.get))
	mux.HandleFunc("PUT /api/v1/items/{id}", authn.require(items.update))
	mux.HandleFunc("DELETE /api/v1/items/{id}", authn.require(items.delete))

	// Resource profiles. Only the "me" routes act on behalf of a user;
	// the directory lookups are open like the sync endpoints below.
	mux.HandleFunc("GET /api/v1/profiles/me", authn.require(profiles.me))
	mux.HandleFunc("POST /api/v1/profiles/{$}", profiles.create)
	mux.HandleFunc("GET /api/v1/profiles/{$}", profiles.list)
	mux.HandleFunc("GET /api/v1/profiles/workloads", profiles.workloads)
	mux.HandleFunc("GET /api/v1/profiles/by-jira/{account_id}", profiles.byJira)
	mux.HandleFunc("GET /api/v1/profiles/by-github/{login}", profiles.byGithub)
	mux.HandleFunc("POST /api/v1/profiles/me/connect/jira", authn.require(profiles.connectJira))
	mux.HandleFunc("POST /api/v1/profiles/me/connect/github", authn.require(profiles.connectGithub))
	mux.HandleFunc("DELETE /api/v1/profiles/me/disconnect/jira", authn.require(profiles.disconnectJira))
	mux.HandleFunc("DELETE /api/v1/profiles/me/disconnect/github", authn.require(profiles.disconnectGithub))
	mux.HandleFunc("PUT /api/v1/profiles/me/skills", authn.require(profiles.updateSkills))
	mux.HandleFunc("GET /api/v1/profiles/match-jira-github", profiles.matchAccounts)
	mux.HandleFunc("GET /api/v1/profiles/{user_id}", profiles.get)

	// Pull request vectors
	mux.HandleFunc("POST /api/v1/vectors/sync/author", vectors.syncAuthor)
	mux.HandleFunc("POST /api/v1/vectors/sync/all", vectors.syncAll)
	mux.HandleFunc("POST /api/v1/vectors/search", vectors.search)

	// GitHub
	mux.HandleFunc("GET /api/v1/github/developers", gh.developers)
	mux.HandleFunc("GET /api/v1/github/developers/{login}/prs", gh.authorPRs)
	mux.HandleFunc("POST /api/v1/github/webhook", gh.webhook)

	// Jira
	mux.HandleFunc("GET /api/v1/jira/auth/connect", jr.authConnect)
	mux.HandleFunc("GET /api/v1/jira/auth/callback", jr.authCallback)
	mux.HandleFunc("GET /api/v1/jira/projects", jr.projects)
	mux.HandleFunc("GET /api/v1/jira/users", jr.users)
	mux.HandleFunc("GET /api/v1/jira/projects/{key}/users", jr.projectUsers)
	mux.HandleFunc("GET /api/v1/jira/users/{account_id}", jr.userByAccountID)
	mux.HandleFunc("POST /api/v1/jira/sync", jr.sync)
	mux.HandleFunc("GET /api/v1/jira/vectors", jr.listVectors)
	mux.HandleFunc("GET /api/v1/jira/vectors/{issue_key}", jr.getVector)
	mux.HandleFunc("GET /api/v1/jira/workload/{account_id}", jr.workload)
	mux.HandleFunc("GET /api/v1/jira/workloads", jr.workloads)
	mux.HandleFunc("POST /api/v1/jira/search/similar", jr.searchSimilar)
	mux.HandleFunc("GET /api/v1/jira/issues/{issue_key}/context", jr.issueContext)
	mux.HandleFunc("POST /api/v1/jira/webhook", jr.webhook)
	mux.HandleFunc("GET /api/v1/jira/webhook/test", jr.webhookTest)

	// Scoring
	mux.HandleFunc("POST /api/v1/score/best-fits", scores.bestFits)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → Tracing → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be before RateLimit so preflight OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	if cfg.Tracing {
		handler = otelhttp.NewHandler(handler, "api")
	}
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Wrap with security headers
	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Use a top-level mux to separate health probes from middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
