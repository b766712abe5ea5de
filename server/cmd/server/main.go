package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/highstakes/highstakes/server/internal/alerts"
	"github.com/highstakes/highstakes/server/internal/api"
	"github.com/highstakes/highstakes/server/internal/auth"
	"github.com/highstakes/highstakes/server/internal/config"
	"github.com/highstakes/highstakes/server/internal/leaderboard"
	"github.com/highstakes/highstakes/server/internal/metrics"
	"github.com/highstakes/highstakes/server/internal/probe"
	"github.com/highstakes/highstakes/server/internal/session"
	"github.com/highstakes/highstakes/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to config file; built-in defaults are used when empty",
		EnvVars: []string{"HIGHSTAKES_CONFIG"},
	}

	app := &cli.App{
		Name:   "highstakes-server",
		Usage:  "session tokens and per-offer top stake leaderboards over HTTP",
		Flags:  []cli.Flag{configFlag},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server (default)",
				Flags:  []cli.Flag{configFlag},
				Action: serve,
			},
			{
				Name:   "check-config",
				Usage:  "load and validate the config file, then exit",
				Flags:  []cli.Flag{configFlag},
				Action: checkConfig,
			},
			{
				Name:  "status",
				Usage: "scrape a running server's /metrics and print a summary",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "base URL of the server",
						Value: "http://localhost:8001",
					},
					&cli.StringFlag{
						Name:    "api-key",
						Usage:   "admin API key, when the server runs in apikey mode",
						EnvVars: []string{"HIGHSTAKES_API_KEY"},
					},
					&cli.StringFlag{
						Name:  "header",
						Usage: "header carrying the admin API key",
						Value: "x-api-key",
					},
				},
				Action: status,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("highstakes-server failed", "err", err)
		os.Exit(1)
	}
}

// loadConfig reads the file named by --config, or returns the defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func checkConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "config ok: http_port=%d capacity=%d session_ttl=%s rules=%d webhooks=%d\n",
		cfg.Server.HTTPPort,
		cfg.Server.Leaderboard.Capacity,
		cfg.Server.Session.TTL,
		len(cfg.Server.Alerts.Rules),
		len(cfg.Server.Alerts.Webhooks),
	)
	return nil
}

func serve(c *cli.Context) error {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	configPath := c.String("config")
	slog.Info("highstakes-server starting", "config", configPath)

	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s := cfg.Server
	level.Set(s.SlogLevel())

	slog.Info("config loaded",
		"http_port", s.HTTPPort,
		"auth_mode", s.Auth.Mode,
		"session_ttl", s.Session.TTL,
		"leaderboard_capacity", s.Leaderboard.Capacity,
		"stakes_per_second", s.RateLimit.StakesPerSecond,
	)

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Session registry with background idle eviction when a TTL is set.
	sessions := session.New(s.Session.TokenLength, s.Session.TTL)
	go sessions.Run(ctx)

	boards := leaderboard.New(s.Leaderboard.Capacity)

	// Websocket hub pushes each subscribed offer's board every interval.
	hub := ws.New(boards, s.Stream.Interval, s.Stream.AllowedOrigins...)
	go hub.Run(ctx)

	m := metrics.New(metrics.Sources{
		Offers:        boards.Count,
		Sessions:      sessions.Count,
		StreamClients: hub.Count,
	})

	alertEngine := alerts.New(s.Alerts, m)

	var limiter *rate.Limiter
	if s.RateLimit.StakesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.RateLimit.StakesPerSecond), s.RateLimit.EffectiveBurst())
	}

	handler := api.New(sessions, boards, api.Options{
		Stream:    hub,
		Alerts:    alertEngine,
		Metrics:   m,
		Limiter:   limiter,
		AdminAuth: auth.APIKey(s.Auth.Mode, s.Auth.EffectiveHeader(), s.Auth.Key()),
	})

	// Alert rules and log level reload live; everything else needs a restart.
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(next *config.Config) {
				alertEngine.SetConfig(next.Server.Alerts)
				level.Set(next.Server.SlogLevel())
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", s.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("highstakes-server shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	alertEngine.Wait()
	return nil
}

func status(c *cli.Context) error {
	r, err := probe.New(c.String("addr"), c.String("header"), c.String("api-key")).Scrape(c.Context)
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "sessions:         %.0f held, %.0f created\n", r.Sessions, r.SessionsCreated)
	fmt.Fprintf(w, "offers:           %.0f\n", r.Offers)
	fmt.Fprintf(w, "stakes submitted: %.0f\n", r.StakesSubmitted)
	for _, reason := range []string{metrics.ReasonBadRequest, metrics.ReasonUnknownSession, metrics.ReasonRateLimited} {
		fmt.Fprintf(w, "rejected %-16s %.0f\n", reason+":", r.Rejected[reason])
	}
	fmt.Fprintf(w, "stream clients:   %.0f\n", r.StreamClients)
	fmt.Fprintf(w, "alerts fired:     %.0f\n", r.AlertsFired)
	return nil
}
