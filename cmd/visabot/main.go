package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/aigrvch/visabot/internal/asc"
	"github.com/aigrvch/visabot/internal/availability"
	"github.com/aigrvch/visabot/internal/booking"
	"github.com/aigrvch/visabot/internal/config"
	"github.com/aigrvch/visabot/internal/egress"
	"github.com/aigrvch/visabot/internal/notify"
	"github.com/aigrvch/visabot/internal/observability/metrics"
	"github.com/aigrvch/visabot/internal/poller"
	"github.com/aigrvch/visabot/internal/portal"
	"github.com/aigrvch/visabot/internal/session"
	"github.com/aigrvch/visabot/internal/status"
	"github.com/aigrvch/visabot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.NewPollMetrics(reg)
	srv := &http.Server{
		Addr:         cfg.StatusAddr,
		Handler:      status.NewRouter(reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("status server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status server error", "error", err)
		}
	}()

	window, err := parseWindow(cfg)
	if err != nil {
		logger.Error("invalid date window", "error", err)
		os.Exit(1)
	}

	creds := session.Credentials{Email: cfg.Email, Password: cfg.Password}
	primaryClient := portal.NewClient(cfg.Country,
		portal.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		portal.WithLogger(logger))
	primary := session.NewManager(primaryClient, creds, cfg.ScheduleID, logger)
	primary.OnAuth(m.ObserveAuth)

	if err := primary.Init(ctx); err != nil {
		logger.Error("session bootstrap failed", "error", err)
		os.Exit(1)
	}

	facilityID, err := poller.ResolveFacility(cfg.FacilityID, primary.Facilities())
	if err != nil {
		logger.Error("cannot resolve consular facility", "error", err)
		os.Exit(1)
	}

	needASC := cfg.ASCEnabled || len(primary.ASCFacilities()) > 0
	ascFacilityID := ""
	if needASC {
		ascFacilityID, err = poller.ResolveFacility(cfg.ASCFacilityID, primary.ASCFacilities())
		if err != nil {
			logger.Error("cannot resolve companion facility", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("facilities resolved",
		"facility", facilityID,
		"asc", ascFacilityID,
		"schedule", primary.ScheduleID())

	var companion availability.CompanionFinder
	var refresher poller.CacheRefresher
	if needASC {
		coord := asc.NewCoordinator(
			poller.NewCompanionFeed(primary, ascFacilityID),
			asc.NewCache(newRedisClient(cfg), facilityID, ascFacilityID, logger),
			window, facilityID, logger)
		companion = coord
		refresher = coord
	}

	var paths []egress.Path
	for _, proxy := range cfg.Proxies {
		hc, err := egress.ProxyHTTPClient(proxy, cfg.RequestTimeout)
		if err != nil {
			logger.Error("bad proxy url", "proxy", proxy, "error", err)
			os.Exit(1)
		}
		client := portal.NewClient(cfg.Country,
			portal.WithHTTPClient(hc),
			portal.WithLogger(logger))
		mgr := session.NewManager(client, creds, cfg.ScheduleID, logger)
		mgr.OnAuth(m.ObserveAuth)
		paths = append(paths, egress.Path{Name: proxy, Session: mgr})
	}
	router := egress.NewRouter(primary, paths, cfg.EgressCooldown, logger)
	router.OnProbe(m.ObserveProbe)

	searcher := poller.NewProbeSearcher(router, window, facilityID, companion)
	executor := booking.NewExecutor(primary, facilityID, ascFacilityID, logger)

	var sender notify.EmailSender = notify.NewStubEmailSender(logger)
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		sender = sg
	}

	loop := poller.New(primary, searcher, executor, window, cfg.PollInterval, cfg.MaxErrorDelay, poller.Options{
		Refresher: refresher,
		Sender:    sender,
		NotifyTo:  cfg.NotifyEmail,
		Metrics:   m,
		Logger:    logger,
	})

	runErr := loop.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server forced to shutdown", "error", err)
	}

	switch {
	case errors.Is(runErr, poller.ErrBelowMinimum):
		logger.Info("appointment is at the window minimum, done")
	case errors.Is(runErr, context.Canceled):
		logger.Info("interrupted, shutting down")
	case runErr != nil:
		logger.Error("poll loop failed", "error", runErr)
		os.Exit(1)
	}
}

func parseWindow(cfg *config.Config) (availability.Window, error) {
	var w availability.Window
	var err error
	if cfg.MinDate != "" {
		if w.Min, err = time.Parse(portal.DateLayout, cfg.MinDate); err != nil {
			return w, err
		}
	}
	if cfg.MaxDate != "" {
		if w.Max, err = time.Parse(portal.DateLayout, cfg.MaxDate); err != nil {
			return w, err
		}
	}
	return w, nil
}

func newRedisClient(cfg *config.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}
