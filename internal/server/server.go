package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/dataworks-ops/automator/config"
	core "github.com/dataworks-ops/automator/internal/agent/core"
	"github.com/dataworks-ops/automator/internal/capability"
	"github.com/dataworks-ops/automator/internal/conversation"
	"github.com/dataworks-ops/automator/internal/sandbox"
	"github.com/dataworks-ops/automator/internal/store"
	"github.com/dataworks-ops/automator/provider/openai"
	"github.com/dataworks-ops/automator/tools/embedding"
	"github.com/dataworks-ops/automator/tools/file"
	"github.com/dataworks-ops/automator/tools/filesearch"
	"github.com/dataworks-ops/automator/tools/httpfetch"
	"github.com/dataworks-ops/automator/tools/scrape"
	"github.com/dataworks-ops/automator/tools/shell"
	"github.com/dataworks-ops/automator/tools/sqlquery"
)

// Server bundles the HTTP handlers with the orchestrator and its stores.
type Server struct {
	cfg      *appconfig.Config
	orch     *core.Orchestrator
	guard    *sandbox.Guard
	sessions conversation.Store
	archive  *store.Store
}

// New wires the full dependency graph from configuration: sandbox guard,
// capability registry, decision provider, conversation store and the
// optional Postgres archive.
func New(ctx context.Context, cfg *appconfig.Config) (*Server, error) {
	guard, err := sandbox.NewGuard(sandbox.Policy{
		WorkspaceRoot: cfg.Workspace.Root,
		MaxCommandLen: cfg.Workspace.MaxCommandLen,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}

	provider, err := openai.NewClient(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	fetcher, err := scrape.NewFetcher(cfg.Capabilities.ScrapeRenderer)
	if err != nil {
		return nil, err
	}
	descs := []capability.Descriptor{
		shell.Descriptor(guard, cfg.Agent.ExecTimeout),
		sqlquery.Descriptor(guard),
		httpfetch.Descriptor(guard, cfg.Capabilities.FetchMaxBytes),
		scrape.Descriptor(fetcher, cfg.Capabilities.ScrapeMaxChars),
		filesearch.Descriptor(guard, cfg.Capabilities.SearchMaxHits),
		embedding.Descriptor(provider),
	}
	descs = append(descs, file.Descriptors(guard)...)
	registry, err := capability.NewRegistry(descs...)
	if err != nil {
		return nil, fmt.Errorf("capability registry: %w", err)
	}

	var sessions conversation.Store
	if cfg.Storage.Redis.Host != "" {
		port := cfg.Storage.Redis.Port
		if port == "" {
			port = "6379"
		}
		addr := cfg.Storage.Redis.Host + ":" + port
		rs, err := conversation.NewRedisStore(ctx, addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.TTL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		sessions = rs
	} else {
		sessions = conversation.NewMemoryStore()
	}

	var archive *store.Store
	var coreArchive core.Archive
	if dsn := cfg.Storage.Postgres.DSN(); dsn != "" {
		archive, err = store.NewWithDSN(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		coreArchive = archive
	}

	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	orch, err := core.NewOrchestrator(cfg, orchLogger, registry, guard, provider, coreArchive)
	if err != nil {
		return nil, err
	}

	return &Server{cfg: cfg, orch: orch, guard: guard, sessions: sessions, archive: archive}, nil
}

// Run starts the HTTP listener and, when schedules are configured, the
// recurring-task scheduler. Blocks until the listener stops.
func (s *Server) Run() error {
	e := s.Echo()

	if len(s.cfg.Schedules) > 0 {
		sched := NewScheduler(s.orch, s.sessions, s.cfg.Schedules)
		sched.Start()
		defer sched.Stop()
	}

	return e.Start(s.cfg.Server.Address)
}

// Echo builds the router with middleware and all routes registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/run", s.handleRun)
	e.GET("/run", s.handleRun)
	e.GET("/read", s.handleRead)

	mgmt := e.Group("")
	if s.cfg.Server.JWTSecret != "" {
		mgmt.Use(AuthMiddleware([]byte(s.cfg.Server.JWTSecret)))
	}
	mgmt.POST("/clear", s.handleClear)
	mgmt.GET("/chat_history", s.handleChatHistory)
	mgmt.GET("/runs", s.handleListRuns)
	mgmt.GET("/runs/:id", s.handleGetRun)

	return e
}

// Close releases the archive connection when one was opened.
func (s *Server) Close() error {
	if s.archive != nil {
		return s.archive.Close()
	}
	return nil
}

func sessionID(c echo.Context, fallback string) string {
	if id := c.QueryParam("session"); id != "" {
		return id
	}
	return fallback
}
