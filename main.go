package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lab1702/tank2d-server/auth"
	"github.com/lab1702/tank2d-server/config"
	"github.com/lab1702/tank2d-server/server"
)

func buildLogger(cfg config.Server) *zap.SugaredLogger {
	level := cfg.LogLevel
	if env := os.Getenv("T2D_LOG_LEVEL"); env != "" {
		level = env
	}
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn", "warning":
		lvl = zapcore.WarnLevel
	case "error", "err":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	if !cfg.LogJSON && os.Getenv("T2D_LOG_JSON") == "" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	logger, err := zc.Build()
	if err != nil {
		panic(err)
	}
	if appID := os.Getenv("T2D_LOG_APP_ID"); appID != "" {
		logger = logger.With(zap.String("app", appID))
	}
	return logger.Sugar()
}

// metricValue reads one gathered counter/gauge by name, for the periodic
// runtime log line.
func metricValue(name string) float64 {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return 0
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				return m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func main() {
	// First non-flag argument is the config path; --no-bot-fire is accepted
	// anywhere on the command line.
	configPath := "config/server.yaml"
	cliNoBotFire := false
	pathGiven := false
	for _, a := range os.Args[1:] {
		switch {
		case a == "--no-bot-fire":
			cliNoBotFire = true
		case a != "" && !strings.HasPrefix(a, "-") && !pathGiven:
			configPath = a
			pathGiven = true
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		// Logger is not configured yet; stderr is all we have.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if os.Getenv("T2D_NO_BOT_FIRE") != "" || cliNoBotFire {
		cfg.DisableBotFire = true
	}

	log := buildLogger(cfg)
	defer log.Sync()

	log.Infow("t2d server starting",
		"tick_rate", cfg.TickRate,
		"listen_port", cfg.ListenPort,
		"auth_mode", cfg.AuthMode,
		"bot_fire_disabled", cfg.DisableBotFire)

	auth.SetActive(auth.NewProvider(cfg.AuthMode, cfg.AuthStubPrefix))

	srv := server.New(cfg, log)
	if err := srv.Start(); err != nil {
		log.Errorw("startup failed", "err", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	statsTicker := time.NewTicker(60 * time.Second)
	defer statsTicker.Stop()
	for {
		select {
		case sig := <-sigChan:
			log.Infow("signal received, shutting down", "signal", sig.String())
			srv.Shutdown()
			log.Infow("shutdown complete",
				"snapshot_full_bytes", metricValue("t2d_snapshot_full_bytes"),
				"snapshot_delta_bytes", metricValue("t2d_snapshot_delta_bytes"),
				"snapshot_full_count", metricValue("t2d_snapshot_full_count"),
				"snapshot_delta_count", metricValue("t2d_snapshot_delta_count"))
			return
		case <-statsTicker.C:
			log.Infow("runtime",
				"queue_depth", metricValue("t2d_queue_depth"),
				"active_matches", metricValue("t2d_active_matches"),
				"bots_in_match", metricValue("t2d_bots_in_match"),
				"projectiles_active", metricValue("t2d_projectiles_active"),
				"connected_players", metricValue("t2d_connected_players"))
		}
	}
}
