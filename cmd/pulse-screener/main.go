package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pulsescan/pulse/internal/alerts"
	"github.com/pulsescan/pulse/internal/bus"
	"github.com/pulsescan/pulse/internal/config"
	"github.com/pulsescan/pulse/internal/launchpad"
	"github.com/pulsescan/pulse/internal/marketdata"
	"github.com/pulsescan/pulse/internal/observability"
	"github.com/pulsescan/pulse/internal/quality"
	"github.com/pulsescan/pulse/internal/screener"
	"github.com/pulsescan/pulse/internal/social"
)

// Upstream calls slower than this warn through the quality monitor.
const slowCallThresholdMs = 5000

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use stub providers (no external calls)")
	flag.Parse()

	// 2. Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("PULSE Launch Screener - Starting")
	log.Info().Msg("FILTER -> ENRICH -> SCORE -> RANK")
	log.Info().Msg("=============================================")

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Bool("stub_mode", *stubMode).
		Int("refresh_sec", cfg.Screener.RefreshIntervalSec).
		Int("candidate_limit", cfg.Screener.CandidateLimit).
		Int("min_buys_1m", cfg.Screener.MinBuysPerMinute).
		Float64("min_volume_1h_sol", cfg.Screener.MinVolume1hSOL).
		Float64("min_composite", cfg.Screener.MinCompositeScore).
		Float64("max_risk", cfg.Screener.MaxRiskScore).
		Msg("Configuration loaded")

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}

	// 4. Data providers.
	var market marketdata.Provider
	var launch launchpad.Client
	var pump *launchpad.PumpFunClient
	var bitquery *marketdata.BitqueryClient

	if *stubMode {
		mints := launchpad.SampleMints()
		market = marketdata.NewSeededStubProvider(mints)
		launch = launchpad.NewSeededStubClient(mints)
		log.Info().Msg("Providers: STUB mode")
	} else {
		pumpCfg := launchpad.DefaultPumpFunConfig()
		if cfg.Launchpad.BaseURL != "" {
			pumpCfg.BaseURL = cfg.Launchpad.BaseURL
		}
		pumpCfg.Timeout = time.Duration(cfg.Screener.RequestTimeoutSec) * time.Second
		pump = launchpad.NewPumpFunClient(pumpCfg)
		launch = pump

		// The deployer wallet comes off launchpad metadata; supply checks
		// need it to price the creator's bag.
		resolver := func(ctx context.Context, mint string) (string, error) {
			meta, metaErr := pump.Meta(ctx, mint)
			if metaErr != nil {
				return "", metaErr
			}
			return meta.Creator, nil
		}

		bitquery = marketdata.NewBitqueryClient(marketdata.BitqueryConfig{
			Endpoint:     cfg.Bitquery.Endpoint,
			APIKey:       cfg.Bitquery.APIKey,
			Timeout:      time.Duration(cfg.Screener.RequestTimeoutSec) * time.Second,
			RateLimitRPS: cfg.Bitquery.RateLimitRPS,
		}, resolver)
		market = bitquery

		log.Info().
			Str("launchpad", pumpCfg.BaseURL).
			Str("bitquery", cfg.Bitquery.Endpoint).
			Msg("Providers: LIVE")
	}

	// 5. Social signals.
	var socialSrc social.Provider
	if *stubMode {
		socialSrc = social.NewStubProvider()
	} else if cfg.Social.Enabled {
		timeout := time.Duration(cfg.Screener.RequestTimeoutSec) * time.Second
		var trends social.TrendSource
		var posts social.PostSource
		if cfg.Social.TrendsURL != "" {
			trends = social.NewTrendsClient(cfg.Social.TrendsURL, timeout)
		}
		if cfg.Social.PostsURL != "" {
			posts = social.NewPostsClient(cfg.Social.PostsURL, timeout)
		}
		socialSrc = social.NewService(trends, posts)
		log.Info().
			Bool("trends", trends != nil).
			Bool("posts", posts != nil).
			Msg("Social signals: enabled")
	}

	// 6. Listing stream.
	var stream *launchpad.ListingStream
	if !*stubMode && cfg.Launchpad.StreamEnabled {
		streamCfg := launchpad.DefaultStreamConfig()
		if cfg.Launchpad.StreamURL != "" {
			streamCfg.URL = cfg.Launchpad.StreamURL
		}
		streamCfg.APIKey = cfg.Bitquery.APIKey
		stream = launchpad.NewListingStream(streamCfg)
		log.Info().Str("url", streamCfg.URL).Msg("Listing stream: enabled")
	}

	// 7. Event bus.
	var producer bus.Producer
	if cfg.Bus.Enabled {
		if *stubMode {
			producer = bus.NewStubProducer()
			log.Info().Msg("Bus: STUB producer")
		} else {
			kafka, kafkaErr := bus.NewProducer(cfg.Bus.Brokers,
				bus.WithInstanceID(cfg.General.InstanceID),
				bus.WithSchemaVersion(cfg.Bus.SchemaVersion))
			if kafkaErr != nil {
				log.Fatal().Err(kafkaErr).Msg("Kafka producer creation failed")
			}
			producer = kafka
		}
	}

	// 8. Alert channels.
	var alertMgr *alerts.Manager
	if cfg.Alerts.Enabled {
		var senders []alerts.Sender
		if *stubMode {
			senders = append(senders, alerts.NewStubSender("stub"))
		} else {
			if cfg.Alerts.DiscordWebhook != "" {
				ds, dsErr := alerts.NewDiscordSender(cfg.Alerts.DiscordWebhook)
				if dsErr != nil {
					log.Error().Err(dsErr).Msg("Discord sender rejected, continuing without it")
				} else {
					senders = append(senders, ds)
				}
			}
			if cfg.Alerts.TelegramBotToken != "" {
				ts, tsErr := alerts.NewTelegramSender(cfg.Alerts.TelegramBotToken, cfg.Alerts.TelegramChatID)
				if tsErr != nil {
					log.Error().Err(tsErr).Msg("Telegram sender rejected, continuing without it")
				} else {
					senders = append(senders, ts)
				}
			}
		}
		if len(senders) > 0 {
			ttl := time.Duration(cfg.Alerts.DedupeTTLSec) * time.Second
			alertMgr = alerts.NewManager(ttl, senders...)
			log.Info().Strs("channels", alertMgr.SenderNames()).Msg("Alerts: enabled")
		} else {
			log.Warn().Msg("Alerts enabled but no channel configured")
		}
	}

	// 9. Observability.
	monitor := quality.NewMonitor(slowCallThresholdMs, 0)
	registry := observability.PulseMetrics()
	exporter := observability.NewPrometheusExporter(registry)

	health := observability.NewHealthMonitor(15 * time.Second)
	health.Register("providers", observability.ProviderCheck(monitor))

	// 10. Screener service.
	svcCfg := screener.ServiceConfig{
		InstanceID:        cfg.General.InstanceID,
		SchemaVersion:     cfg.Bus.SchemaVersion,
		RefreshInterval:   time.Duration(cfg.Screener.RefreshIntervalSec) * time.Second,
		CandidateLimit:    cfg.Screener.CandidateLimit,
		UseSampleFallback: cfg.Screener.UseSampleFallback,
		Pipeline: screener.PipelineConfig{
			MinBuysPerMinute:      cfg.Screener.MinBuysPerMinute,
			MinVolume1hSOL:        cfg.Screener.MinVolume1hSOL,
			MaxConcurrentRequests: cfg.Screener.MaxConcurrentRequests,
			RequestTimeout:        time.Duration(cfg.Screener.RequestTimeoutSec) * time.Second,
			CycleDeadline:         time.Duration(cfg.Screener.CycleDeadlineSec) * time.Second,
			MetaCacheTTL:          time.Duration(cfg.Cache.TTLSec) * time.Second,
			MetaCacheSize:         cfg.Cache.MaxSize,
			DisableMetaCache:      !cfg.Cache.Enabled,
		},
		Criteria: screener.Criteria{
			MinComposite: cfg.Screener.MinCompositeScore,
			MaxRisk:      cfg.Screener.MaxRiskScore,
			MinVolumeSOL: cfg.Screener.MinResultVolumeSOL,
		},
	}

	svc := screener.NewService(svcCfg, screener.Deps{
		Market:   market,
		Launch:   launch,
		Social:   socialSrc,
		Stream:   stream,
		Producer: producer,
		Alerts:   alertMgr,
		Quality:  monitor,
		Metrics:  registry,
	})

	staleCycleAge := 3 * time.Duration(cfg.Screener.RefreshIntervalSec) * time.Second
	health.Register("cycles", observability.CycleCheck(svc.LastCycleTime, svc.Paused, staleCycleAge))

	// 11. Setup context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 12. Start services.
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		health.Start(ctx)
	}()

	// Forward quality and health alerts to the log.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-monitor.Alerts():
				log.Warn().
					Str("level", a.Level).
					Str("provider", a.Provider).
					Str("op", a.Op).
					Msg("[QUALITY] " + a.Message)
			case a := <-health.Alerts():
				log.Warn().
					Str("level", a.Level).
					Str("component", a.Component).
					Msg("[HEALTH] " + a.Message)
			}
		}
	}()

	// Heartbeat publisher.
	if producer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			heartbeatLoop(ctx, producer, svc, health, cfg)
		}()
	}

	// 13. HTTP server: health + stats + results + metrics + control plane.
	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := http.NewServeMux()

		// ── Health ──
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			system := health.Check(r.Context())
			w.Header().Set("Content-Type", "application/json")
			if system.Status == observability.StatusUnhealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			json.NewEncoder(w).Encode(system)
		})

		// ── Stats ──
		mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
			combined := map[string]any{
				"screener": svc.Stats(),
				"quality":  monitor.Snapshot(),
			}
			if stream != nil {
				combined["stream"] = stream.Stats()
			}
			if alertMgr != nil {
				combined["alerts"] = alertMgr.Stats()
			}
			if pump != nil {
				combined["launchpad"] = pump.Stats()
			}
			if bitquery != nil {
				combined["bitquery"] = bitquery.Stats()
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(combined)
		})

		// ── Results ──
		mux.HandleFunc("/tokens", func(w http.ResponseWriter, _ *http.Request) {
			res, ok := svc.Latest()
			w.Header().Set("Content-Type", "application/json")
			if !ok {
				json.NewEncoder(w).Encode([]screener.Record{})
				return
			}
			json.NewEncoder(w).Encode(res.Qualified)
		})
		mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
			res, ok := svc.Latest()
			if !ok {
				http.Error(w, `{"error":"no cycle completed yet"}`, http.StatusNotFound)
				return
			}
			if r.URL.Query().Get("filtered") == "1" {
				// The ranked set stays intact; the filtered view narrows
				// Records to the qualifying subset.
				res.Records = res.Qualified
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(res)
		})

		// ── Audit ──
		mux.HandleFunc("/audit", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if cycleID := r.URL.Query().Get("cycle"); cycleID != "" {
				json.NewEncoder(w).Encode(svc.Trail().Query(cycleID))
				return
			}
			json.NewEncoder(w).Encode(svc.Trail().Entries())
		})

		// ── Metrics ──
		mux.Handle("/metrics", exporter)

		// ── Control Plane ──
		mux.HandleFunc("/control/pause", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			svc.Pause()
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status":"paused"}`)
		})

		mux.HandleFunc("/control/resume", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			svc.Resume()
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status":"running"}`)
		})

		mux.HandleFunc("/control/trigger", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if !svc.TriggerNow() {
				w.WriteHeader(http.StatusConflict)
				fmt.Fprintf(w, `{"status":"trigger_already_pending"}`)
				return
			}
			fmt.Fprintf(w, `{"status":"triggered"}`)
		})

		mux.HandleFunc("/control/status", func(w http.ResponseWriter, _ *http.Request) {
			stats := svc.Stats()
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"instance_id": stats.InstanceID,
				"paused":      stats.Paused,
				"cycles_run":  stats.CyclesRun,
				"last_cycle":  stats.LastCycleAt,
				"uptime_sec":  stats.UptimeSec,
			})
		})

		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		log.Info().Str("addr", addr).Msg("HTTP server started (health + stats + control)")

		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			server.Shutdown(shutdownCtx)
		}()

		if srvErr := server.ListenAndServe(); srvErr != nil && srvErr != http.ErrServerClosed {
			log.Error().Err(srvErr).Msg("HTTP server error")
		}
	}()

	// Periodic cumulative stats logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := svc.Stats()
				logEvt := log.Info().
					Int64("cycles", stats.CyclesRun).
					Int64("candidates", stats.Pipeline.CandidatesSeen).
					Int64("screened", stats.Pipeline.Screened).
					Int64("degraded_ops", stats.Pipeline.DegradedOps).
					Int64("alerts_sent", stats.AlertsSent).
					Float64("cache_hit_rate", stats.Pipeline.MetaCache.HitRate).
					Bool("paused", stats.Paused)
				if stream != nil {
					ss := stream.Stats()
					logEvt = logEvt.Bool("stream_connected", ss.Connected).
						Int64("stream_mints", ss.MintsDetected)
				}
				logEvt.Msg("[STATS]")
			}
		}
	}()

	log.Info().Msg("PULSE Launch Screener - Running")

	// 14. Block until shutdown.
	<-ctx.Done()

	// 15. Graceful shutdown.
	log.Info().Msg("Shutting down...")
	health.Stop()

	if producer != nil {
		producer.Flush(10 * time.Second)
		producer.Close()
	}

	wg.Wait()

	stats := svc.Stats()
	log.Info().
		Int64("cycles_run", stats.CyclesRun).
		Int64("tokens_screened", stats.Pipeline.Screened).
		Int64("alerts_sent", stats.AlertsSent).
		Int64("events_published", stats.EventsPublished).
		Msg("PULSE Launch Screener - Final Statistics")

	log.Info().Msg("PULSE Launch Screener - Shutdown complete")
}

// heartbeatLoop publishes liveness onto the bus every 30 seconds.
func heartbeatLoop(ctx context.Context, producer bus.Producer, svc *screener.Service, health *observability.HealthMonitor, cfg *config.Config) {
	start := time.Now()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := svc.Stats()
			system := health.Check(ctx)

			hb := bus.Heartbeat{
				BaseEvent: bus.NewBaseEvent(cfg.General.InstanceID, cfg.Bus.SchemaVersion),
				Component: "pulse-screener",
				Status:    string(system.Status),
				UptimeSec: time.Since(start).Seconds(),
				Metrics: map[string]float64{
					"cycles_run":       float64(stats.CyclesRun),
					"tokens_screened":  float64(stats.Pipeline.Screened),
					"alerts_sent":      float64(stats.AlertsSent),
					"events_published": float64(stats.EventsPublished),
				},
			}
			producer.ProduceJSON(ctx, bus.TopicHeartbeats, cfg.General.InstanceID, hb)
		}
	}
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "pulse-screener").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "pulse-screener").
			Str("instance", general.InstanceID).Logger()
	}
}
