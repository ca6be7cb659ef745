package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resourceiq/resourceiq/db"
	"github.com/resourceiq/resourceiq/internal/api"
	"github.com/resourceiq/resourceiq/internal/auth"
	"github.com/resourceiq/resourceiq/internal/config"
	"github.com/resourceiq/resourceiq/internal/embedding"
	"github.com/resourceiq/resourceiq/internal/embedding/jina"
	"github.com/resourceiq/resourceiq/internal/embedding/ollama"
	"github.com/resourceiq/resourceiq/internal/github"
	"github.com/resourceiq/resourceiq/internal/item"
	"github.com/resourceiq/resourceiq/internal/jira"
	"github.com/resourceiq/resourceiq/internal/log"
	"github.com/resourceiq/resourceiq/internal/observability"
	"github.com/resourceiq/resourceiq/internal/profile"
	"github.com/resourceiq/resourceiq/internal/score"
	"github.com/resourceiq/resourceiq/internal/user"
)

// Setup creates and initializes the application: tracing, database
// pool with migrations, stores, integration services, and the HTTP
// API. Call Close on the returned App to release everything.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.New(log.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Telemetry.Endpoint,
			Environment: cfg.Telemetry.Environment,
			ServiceName: cfg.Telemetry.ServiceName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.tracerShutdown = shutdown
	}

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	users, err := user.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}
	a.Users = users

	items, err := item.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}

	profiles, err := profile.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}

	embedder, err := provideEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}

	ghService, ghStore, prVectors, err := provideGithub(cfg, pool, embedder, logger)
	if err != nil {
		return nil, err
	}

	jiraService, oauth, issueVectors, err := provideJira(cfg, pool, embedder, logger)
	if err != nil {
		return nil, err
	}

	matcher, err := profile.NewMatcher(ghService, jiraService, logger)
	if err != nil {
		return nil, err
	}

	ranker, err := score.NewService(profiles, embedder, prVectors, issueVectors, jiraService, logger)
	if err != nil {
		return nil, err
	}

	tokens := auth.NewTokenManager(
		[]byte(cfg.SecretKey),
		time.Duration(cfg.AccessTokenExpireMinutes)*time.Minute,
	)

	srvCfg := api.ServerConfig{
		Logger:       logger,
		TokenManager: tokens,
		Users:        users,
		Items:        items,
		Profiles:     profiles,

		Github:        ghService,
		Installations: ghStore,
		Jira:          jiraService,
		JiraVectors:   issueVectors,
		Ranker:        ranker,
		Matcher:       matcher,

		Pool: pool,

		GithubWebhookSecret: cfg.GitHub.WebhookSecret,
		JiraWebhookSecret:   cfg.Jira.WebhookSecret,

		CORSOrigins: cfg.CORSOrigins,
		IsDev:       cfg.Telemetry.Environment != "production",
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
		Tracing:     cfg.Telemetry.Enabled,
	}
	// A typed nil in the interface field would defeat the handler's
	// nil check, so only assign when the flow actually exists.
	if oauth != nil {
		srvCfg.JiraOAuth = oauth
	}

	srv, err := api.NewServer(srvCfg)
	if err != nil {
		return nil, fmt.Errorf("creating api server: %w", err)
	}
	a.Handler = srv.Handler()

	logger.Info("application initialized",
		"github_configured", cfg.GitHubEnabled(),
		"jira_oauth", oauth != nil,
		"embedding_api", cfg.Embedding.UseAPI,
		"tracing", cfg.Telemetry.Enabled,
	)
	return a, nil
}

// providePool runs migrations and opens the PostgreSQL connection
// pool, verifying connectivity before returning it.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideEmbedder selects the embedding backend: the hosted Jina API
// when use_api is set, a local Ollama model otherwise. The returned
// service normalizes every vector to the configured dimension.
func provideEmbedder(cfg *config.Config, logger *slog.Logger) (*embedding.Service, error) {
	var client embedding.Embedder

	if cfg.Embedding.UseAPI {
		c, err := jina.NewClient(cfg.Embedding.APIKey,
			jina.WithBaseURL(cfg.Embedding.APIURL),
			jina.WithModel(cfg.Embedding.Model))
		if err != nil {
			return nil, fmt.Errorf("creating jina client: %w", err)
		}
		client = c
		logger.Info("embedding via hosted api", "model", cfg.Embedding.Model)
	} else {
		client = ollama.NewClient(cfg.Embedding.OllamaHost, cfg.Embedding.LocalModel)
		logger.Info("embedding via local ollama",
			"model", cfg.Embedding.LocalModel, "host", cfg.Embedding.OllamaHost)
	}

	return embedding.NewService(client, cfg.Embedding.Dimension, logger)
}

// provideGithub wires the installation store, the per-installation
// dialer, the pull request vector store, and the sync service.
func provideGithub(cfg *config.Config, pool *pgxpool.Pool, embedder *embedding.Service, logger *slog.Logger) (*github.Service, *github.Store, *embedding.Store, error) {
	store, err := github.NewStore(pool)
	if err != nil {
		return nil, nil, nil, err
	}

	vectors, err := embedding.NewStore(pool, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	service, err := github.NewService(store, provideGithubDialer(cfg, logger), embedder, vectors, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return service, store, vectors, nil
}

// provideGithubDialer builds App-installation clients on demand.
// Missing App credentials surface as ErrNotConfigured on first use
// rather than failing startup; the server runs fine without GitHub.
func provideGithubDialer(cfg *config.Config, logger *slog.Logger) github.Dialer {
	appID := cfg.GitHub.AppID
	key := []byte(cfg.GitHub.PrivateKey)

	return func(installationID int64) (github.API, error) {
		if appID == 0 || len(key) == 0 {
			return nil, github.ErrNotConfigured
		}
		return github.NewClient(appID, key, installationID, logger)
	}
}

// provideJira wires token and integration stores, the optional 3LO
// flow, the client provider with its basic-auth fallback, the issue
// vector store, and the service. The returned *jira.OAuth is nil when
// the Atlassian client settings are incomplete.
func provideJira(cfg *config.Config, pool *pgxpool.Pool, embedder *embedding.Service, logger *slog.Logger) (*jira.Service, *jira.OAuth, *jira.VectorStore, error) {
	tokens, err := jira.NewTokenStore(pool)
	if err != nil {
		return nil, nil, nil, err
	}

	integrations, err := jira.NewIntegrationStore(pool)
	if err != nil {
		return nil, nil, nil, err
	}

	var oauth *jira.OAuth
	if cfg.JiraOAuthEnabled() {
		oauth, err = jira.NewOAuth(jira.OAuthSettings{
			ClientID:     cfg.Atlassian.ClientID,
			ClientSecret: cfg.Atlassian.ClientSecret,
			AuthURL:      cfg.Atlassian.AuthURL,
			TokenURL:     cfg.Atlassian.TokenURL,
			RedirectURI:  cfg.Atlassian.RedirectURI,
			Scopes:       cfg.Atlassian.Scopes,
			Audience:     cfg.Atlassian.Audience,
			StateSecret:  []byte(cfg.SecretKey),
		}, tokens, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("configuring atlassian oauth: %w", err)
		}
	} else {
		logger.Info("atlassian oauth not configured, jira auth routes disabled")
	}

	provider := jira.NewClientProvider(oauth, jira.BasicCredentials{
		URL:      cfg.Jira.URL,
		Email:    cfg.Jira.Email,
		APIToken: cfg.Jira.APIToken,
	}, nil, logger)

	vectors, err := jira.NewVectorStore(pool, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	service, err := jira.NewService(provider, integrations, embedder, vectors, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return service, oauth, vectors, nil
}
