package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pulsescan/pulse/internal/config"
	"github.com/pulsescan/pulse/internal/launchpad"
	"github.com/pulsescan/pulse/internal/marketdata"
	"github.com/pulsescan/pulse/internal/screener"
	"github.com/pulsescan/pulse/internal/social"
)

// pulse-scan runs one screening cycle and prints the ranking. Results go to
// stdout, logs to stderr.
func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use stub providers (no external calls)")
	mintsFlag := flag.String("mints", "", "Comma-separated mints to screen (skips discovery)")
	jsonOut := flag.Bool("json", false, "Print the full cycle result as JSON")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall scan deadline")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		cfg = config.Default()
	}
	setupLogging(cfg.General)
	if err != nil {
		log.Warn().Str("path", *configPath).Err(err).Msg("config not loaded, using defaults")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuration validation failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Providers.
	var market marketdata.Provider
	var launch launchpad.Client
	var socialSrc social.Provider

	if *stubMode {
		mints := launchpad.SampleMints()
		market = marketdata.NewSeededStubProvider(mints)
		launch = launchpad.NewSeededStubClient(mints)
		socialSrc = social.NewStubProvider()
	} else {
		pumpCfg := launchpad.DefaultPumpFunConfig()
		if cfg.Launchpad.BaseURL != "" {
			pumpCfg.BaseURL = cfg.Launchpad.BaseURL
		}
		pumpCfg.Timeout = time.Duration(cfg.Screener.RequestTimeoutSec) * time.Second
		pump := launchpad.NewPumpFunClient(pumpCfg)
		launch = pump

		resolver := func(ctx context.Context, mint string) (string, error) {
			meta, metaErr := pump.Meta(ctx, mint)
			if metaErr != nil {
				return "", metaErr
			}
			return meta.Creator, nil
		}
		market = marketdata.NewBitqueryClient(marketdata.BitqueryConfig{
			Endpoint:     cfg.Bitquery.Endpoint,
			APIKey:       cfg.Bitquery.APIKey,
			Timeout:      time.Duration(cfg.Screener.RequestTimeoutSec) * time.Second,
			RateLimitRPS: cfg.Bitquery.RateLimitRPS,
		}, resolver)

		if cfg.Social.Enabled {
			reqTimeout := time.Duration(cfg.Screener.RequestTimeoutSec) * time.Second
			var trends social.TrendSource
			var posts social.PostSource
			if cfg.Social.TrendsURL != "" {
				trends = social.NewTrendsClient(cfg.Social.TrendsURL, reqTimeout)
			}
			if cfg.Social.PostsURL != "" {
				posts = social.NewPostsClient(cfg.Social.PostsURL, reqTimeout)
			}
			socialSrc = social.NewService(trends, posts)
		}
	}

	// Candidates.
	var raw []string
	source := "flag"
	if *mintsFlag != "" {
		for _, mint := range strings.Split(*mintsFlag, ",") {
			if mint = strings.TrimSpace(mint); mint != "" {
				raw = append(raw, mint)
			}
		}
	} else {
		raw, err = launch.Candidates(ctx, cfg.Screener.CandidateLimit)
		if err != nil {
			log.Warn().Err(err).Msg("candidate discovery failed")
		}
		source = "launchpad"
		if len(raw) == 0 {
			raw = launchpad.SampleMints()
			source = "fallback"
		}
	}

	sanitizer := screener.NewSanitizer()
	clean := sanitizer.Sanitize(raw)
	if len(clean) == 0 {
		log.Fatal().Int("candidates", len(raw)).Msg("no valid candidates to screen")
	}

	pipeline := screener.NewPipeline(screener.PipelineConfig{
		MinBuysPerMinute:      cfg.Screener.MinBuysPerMinute,
		MinVolume1hSOL:        cfg.Screener.MinVolume1hSOL,
		MaxConcurrentRequests: cfg.Screener.MaxConcurrentRequests,
		RequestTimeout:        time.Duration(cfg.Screener.RequestTimeoutSec) * time.Second,
		CycleDeadline:         time.Duration(cfg.Screener.CycleDeadlineSec) * time.Second,
		MetaCacheTTL:          time.Duration(cfg.Cache.TTLSec) * time.Second,
		MetaCacheSize:         cfg.Cache.MaxSize,
		DisableMetaCache:      !cfg.Cache.Enabled,
	}, market, launch, socialSrc)

	start := time.Now()
	records, err := pipeline.Run(ctx, clean)
	if err != nil {
		log.Fatal().Err(err).Msg("scan aborted")
	}
	elapsed := time.Since(start)

	criteria := screener.Criteria{
		MinComposite: cfg.Screener.MinCompositeScore,
		MaxRisk:      cfg.Screener.MaxRiskScore,
		MinVolumeSOL: cfg.Screener.MinResultVolumeSOL,
	}
	qualified := criteria.Apply(records)
	summary := screener.Summarize(records)

	if *jsonOut {
		res := screener.CycleResult{
			CycleID:    uuid.New().String(),
			Source:     source,
			StartedAt:  start,
			ElapsedMs:  elapsed.Milliseconds(),
			Candidates: len(raw),
			Records:    records,
			Qualified:  qualified,
			Summary:    summary,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil {
			log.Fatal().Err(encErr).Msg("encode result")
		}
		return
	}

	printRanking(records, qualified, criteria, summary, source, len(raw), elapsed)
}

func printRanking(records, qualified []screener.Record, criteria screener.Criteria, summary screener.Summary, source string, candidates int, elapsed time.Duration) {
	fmt.Printf("\n%d candidates (%s), %d screened, %d qualified in %dms\n\n",
		candidates, source, len(records), len(qualified), elapsed.Milliseconds())

	if len(records) == 0 {
		fmt.Println("No tokens passed the momentum gate.")
		return
	}

	fmt.Printf("%4s  %-10s  %9s  %5s  %8s  %10s  %-9s  %s\n",
		"RANK", "SYMBOL", "COMPOSITE", "RISK", "BUYS/1M", "VOL1H SOL", "RESILIENT", "MINT")

	degraded := 0
	for i, rec := range records {
		marker := " "
		if criteria.Qualifies(rec) {
			marker = "*"
		}
		resilient := "no"
		if rec.Dip.Resilient {
			resilient = "yes"
		}
		symbol := rec.Meta.Symbol
		if symbol == "" {
			symbol = "?"
		}
		if len(symbol) > 10 {
			symbol = symbol[:10]
		}
		degraded += len(rec.Degraded)

		fmt.Printf("%3d%s  %-10s  %9.2f  %5.2f  %8d  %10.0f  %-9s  %s\n",
			i+1, marker, symbol,
			rec.Score.Composite, rec.Score.Risk,
			rec.Stats.Buys1m, rec.Stats.Volume1hSOL,
			resilient, rec.Mint)
	}

	fmt.Printf("\n* qualifies (composite >= %.1f, risk <= %.2f)\n", criteria.MinComposite, criteria.MaxRisk)
	fmt.Printf("avg composite %.2f, max %.2f, total 1h volume %.0f SOL\n",
		summary.AvgComposite, summary.MaxComposite, summary.TotalVolume)
	if degraded > 0 {
		fmt.Printf("%d enrichment lookups degraded to zero values\n", degraded)
	}
}

func setupLogging(general config.GeneralConfig) {
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("service", "pulse-scan").Logger()
}
