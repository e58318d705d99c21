package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"freetrack/internal/config"
	appLog "freetrack/internal/log"
	"freetrack/internal/track"
	"freetrack/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	appLog.Info("freetrack starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"refresh", conf.RefreshCron,
		"tracking_start_hour", conf.TrackingStartHour,
		"tracking_end_hour", conf.TrackingEndHour,
		"include_weekends", conf.IncludeWeekends,
		"lookahead_days", conf.LookaheadDays,
		"calendar_count", len(conf.Calendars),
		"once", flags.once,
	)

	tracker := track.New(conf, nil)
	presenter := track.LogPresenter{}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		presenter.Present(tracker.Refresh(ctx, time.Now()))
		return
	}

	// Initial cycle so the web UI has data before the first cron tick.
	presenter.Present(tracker.Refresh(ctx, time.Now()))

	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		presenter.Present(tracker.Refresh(ctx, time.Now()))
	}); err != nil {
		appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	go func() {
		if err := web.StartServer(ctx, conf, tracker); err != nil {
			appLog.Error("HTTP server failed", err, "listen", conf.Listen)
			cancel()
		}
	}()

	<-ctx.Done()
	appLog.Info("freetrack exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/freetrack/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh cycle, print the result and exit")

	flag.Parse()

	return cfg
}
