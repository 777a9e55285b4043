package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/errander/config"
	"github.com/mohammad-safakhou/errander/internal/artifact"
	"github.com/mohammad-safakhou/errander/internal/browser"
	"github.com/mohammad-safakhou/errander/internal/capability"
	"github.com/mohammad-safakhou/errander/internal/executor"
	"github.com/mohammad-safakhou/errander/internal/feeds"
	"github.com/mohammad-safakhou/errander/internal/jobs"
	"github.com/mohammad-safakhou/errander/internal/mail"
	"github.com/mohammad-safakhou/errander/internal/planner"
	"github.com/mohammad-safakhou/errander/internal/store"
	"github.com/mohammad-safakhou/errander/news/newsapi"
	"github.com/mohammad-safakhou/errander/provider/openai"
)

// Run wires the service from config and serves HTTP until the listener stops.
func Run(cfg *config.Config, addr string) error {
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
			_ = c.JSON(code, map[string]interface{}{"ok": false, "error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	deps, err := Build(cfg)
	if err != nil {
		return err
	}
	e.Static("/static", deps.Artifacts.Dir)

	ph := &PlanHandler{Planner: deps.Planner}
	ph.Register(e)
	rh := &RunsHandler{Exec: deps.Exec, Repo: deps.Repo}
	rh.Register(e)
	sh := &SweepHandler{Sweeper: deps.Sweeper}
	sh.Register(e)

	if addr == "" {
		addr = cfg.General.Listen
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// Deps is the assembled dependency graph.
type Deps struct {
	Planner   *planner.Planner
	Exec      *executor.Executor
	Repo      executor.RunRepository
	Jobs      *jobs.Store
	Sweeper   *jobs.Sweeper
	Artifacts *artifact.Store
	Caps      *capability.Set
}

// Build constructs the capability set and core components from config.
// Unconfigured capabilities stay nil and surface as step faults when a
// plan needs them; they never silently no-op.
func Build(cfg *config.Config) (*Deps, error) {
	artifacts, err := artifact.NewStore(filepath.Join(cfg.General.DataDir, "artifacts"), "/static")
	if err != nil {
		return nil, err
	}
	jobStore, err := jobs.Open(filepath.Join(cfg.General.DataDir, "jobs"))
	if err != nil {
		return nil, err
	}

	caps := &capability.Set{
		Browser: browser.New(),
		Feeds:   feeds.New(),
	}
	if cfg.Mail.SMTP.Configured() {
		caps.Mail = mail.NewSMTPSender(cfg.Mail.SMTP)
	}
	if cfg.Mail.POP3.Configured() {
		caps.Mailbox = mail.NewPOP3Reader(cfg.Mail.POP3)
	}
	var oracle planner.Oracle
	if cfg.Providers.OpenAI.APIKey != "" {
		client := openai.New(cfg.Providers.OpenAI)
		caps.Images = client
		oracle = client
	}
	if cfg.News.APIKey != "" {
		caps.Digest = newsapi.New(cfg.News)
	}

	var repo executor.RunRepository = executor.NewMemoryRepository()
	if cfg.Storage.Postgres.Configured() {
		dsn, err := cfg.Storage.Postgres.DSN()
		if err != nil {
			return nil, err
		}
		st, err := store.NewWithDSN(context.Background(), dsn)
		if err != nil {
			return nil, err
		}
		repo = st
	}

	var locker *redis.Client
	if cfg.Storage.Redis.Configured() {
		locker = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := locker.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
	}

	exec := executor.New(repo, executor.Handlers(executor.Deps{
		Caps:      caps,
		Jobs:      jobStore,
		Artifacts: artifacts,
	}))

	return &Deps{
		Planner:   planner.New(cfg.General.OwnAddress, oracle),
		Exec:      exec,
		Repo:      repo,
		Jobs:      jobStore,
		Sweeper:   jobs.NewSweeper(jobStore, caps, artifacts, locker),
		Artifacts: artifacts,
		Caps:      caps,
	}, nil
}
