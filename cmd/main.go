package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pricewatch/api"
	"pricewatch/cache"
	"pricewatch/config"
	"pricewatch/extract"
	"pricewatch/fetch"
	"pricewatch/llm"
	"pricewatch/normalize"
	"pricewatch/pipeline"
	"pricewatch/search"
	"pricewatch/whitelist"
)

func main() {
	// =========
	// Config
	// =========
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// =========
	// Logging
	// =========
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	// =========
	// Cache tiers
	// =========
	var fast cache.Store
	if cfg.Cache.RedisURL != "" {
		redisStore, err := cache.NewRedis(context.Background(), cfg.Cache.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory fast tier", zap.Error(err))
		} else {
			fast = redisStore
		}
	}
	if fast == nil {
		fast = cache.NewMemory(cfg.Cache.SweepInterval)
	}

	durable, err := cache.NewBolt(cfg.Cache.BoltPath, cfg.Cache.SweepInterval)
	if err != nil {
		log.Fatalf("Failed to open cache db: %v", err)
	}
	defer durable.Close()

	tiered := cache.NewTiered(fast, durable, logger)

	// =========
	// Model
	// =========
	var generator llm.Generator
	openAI, err := llm.NewOpenAI(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.BaseURL,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		logger,
	)
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			logger.Warn("no model api key configured, running with static channel lists and rule extraction only")
		} else {
			log.Fatalf("Failed to create model client: %v", err)
		}
	} else {
		generator = openAI
	}

	// =========
	// Whitelist
	// =========
	fallback, err := whitelist.LoadFallback(cfg.Whitelist.ChannelsFile)
	if err != nil {
		logger.Warn("fallback channels file", zap.Error(err))
	}
	prober := whitelist.NewProber(
		cfg.Fetch.UserAgent,
		cfg.Whitelist.ProbeTimeout,
		cfg.Whitelist.ProbeParallelism,
		logger,
	)
	stats := whitelist.NewDomainStats()
	wlGenerator := whitelist.NewGenerator(
		generator,
		tiered,
		prober,
		fallback,
		stats,
		cfg.Whitelist.MaxChannels,
		cfg.Cache.WhitelistTTL,
		logger,
	)

	// =========
	// Search
	// =========
	var engine search.Engine
	switch {
	case cfg.Search.SerpAPIKey != "":
		engine = search.NewSerpAPI(cfg.Search.SerpAPIKey, cfg.Search.Timeout)
	case cfg.Search.BingAPIKey != "":
		engine = search.NewBing(cfg.Search.BingAPIKey, cfg.Fetch.UserAgent, cfg.Search.Timeout)
	default:
		logger.Warn("no search api key configured, queries will return no results")
	}
	domainSearch := search.NewDomainSearch(
		engine,
		cfg.Search.Concurrency,
		cfg.Search.MaxPagesPerDomain,
		logger,
	)

	// =========
	// Fetcher
	// =========
	httpClient := &http.Client{Timeout: cfg.Fetch.RequestTimeout}
	var browser *fetch.Browser
	if cfg.Fetch.UseBrowser {
		browser = fetch.NewBrowser(cfg.Fetch.UserAgent, cfg.Fetch.RequestTimeout, logger)
	}
	limiter := fetch.NewLimiter(
		cfg.Fetch.GlobalConcurrency,
		cfg.Fetch.PerDomainConcurrency,
		cfg.Fetch.PerDomainRPS,
	)
	robots := fetch.NewRobots(httpClient, cfg.Fetch.UserAgent, logger)
	fetcher := fetch.NewFetcher(
		httpClient,
		browser,
		limiter,
		robots,
		tiered,
		cfg.Fetch.UserAgent,
		cfg.Fetch.RequestTimeout,
		cfg.Cache.PageTTL,
		logger,
	)

	// =========
	// Extraction
	// =========
	rules := []extract.Extractor{
		extract.NewStructured(),
		extract.NewAmazon(),
		extract.NewSiteRules(extract.DefaultSiteRules()),
		extract.NewMeta(),
		extract.NewHeuristic(),
	}
	var fallbackExtractor extract.Extractor
	if generator != nil {
		fallbackExtractor = extract.NewModelFallback(generator, logger)
	}
	chain := extract.NewChain(rules, fallbackExtractor, logger)

	// =========
	// Normalizer
	// =========
	converter := normalize.NewConverter(cfg.Normalize.TargetCurrency, cfg.Normalize.ConversionRates)
	normalizer := normalize.New(
		converter,
		cfg.Dedup.SimilarityThreshold,
		cfg.Dedup.PriceTolerance,
		logger,
	)

	// =========
	// Pipeline
	// =========
	orchestrator := pipeline.NewOrchestrator(
		wlGenerator,
		domainSearch,
		fetcher,
		chain,
		normalizer,
		stats,
		cfg.Pipeline.QueryTimeout,
		cfg.Pipeline.DefaultMaxResults,
		cfg.Fetch.GlobalConcurrency,
		logger,
	)

	// =========
	// HTTP API
	// =========
	server := api.NewServer(orchestrator, tiered, cfg.Server.Environment, logger)

	logger.Info("starting server",
		zap.String("port", cfg.Server.Port),
		zap.Duration("query_timeout", cfg.Pipeline.QueryTimeout),
		zap.Bool("model_enabled", generator != nil),
		zap.Bool("search_enabled", engine != nil),
		zap.Bool("browser_enabled", browser != nil),
		zap.Time("started_at", time.Now()),
	)
	if err := server.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
