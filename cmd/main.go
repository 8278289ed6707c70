package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/kyj44123-afk/cpla.ai-sub001/internal/types"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/assembler"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/classifier"
	cfgPkg "github.com/kyj44123-afk/cpla.ai-sub001/pkg/config"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/events"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/lawapi"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/llm"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/logger"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/processor"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/retrieval"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/search"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/secrets"
	"github.com/kyj44123-afk/cpla.ai-sub001/pkg/store"
	"github.com/kyj44123-afk/cpla.ai-sub001/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

type flags struct {
	configPath string
	serve      bool
	seal       string
	initKey    bool
	ollamaURL  string
	dbURL      string
	logLevel   string
	streaming  bool
}

type app struct {
	config     *cfgPkg.Config
	log        *logrus.Logger
	secrets    *secrets.Store
	pipeline   *retrieval.Pipeline
	chat       *llm.ChatEngine
	dispatcher *events.Dispatcher
	registry   *prometheus.Registry
	store      *store.VectorStore
}

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	f := parseFlags()

	config, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		color.Red("Failed to load config: %v", err)
		os.Exit(1)
	}
	applyFlags(config, f)

	log := logger.New(logger.LoggerConfig{Level: config.Log.Level, Format: config.Log.Format})

	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.WithField("field", e.Field).Error(e.Message)
		}
		os.Exit(1)
	}

	secretStore := secrets.NewWithConfig(secrets.SecretsConfig{
		KeyPath:      config.Secrets.KeyPath,
		SettingsPath: config.Secrets.SettingsPath,
		Logger:       log,
	})

	switch {
	case f.initKey:
		if err := runInitKey(secretStore, config.Secrets.KeyPath); err != nil {
			log.Fatal(err)
		}
		return
	case f.seal != "":
		if err := runSeal(secretStore, f.seal); err != nil {
			log.Fatal(err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, config, log, secretStore)
	if err != nil {
		log.Fatal(err)
	}

	if err := a.run(ctx, f.serve); err != nil {
		log.Fatal(err)
	}
}

// run drives the server or the interactive chat and releases the app's
// resources before returning, so callers may exit on the error.
func (a *app) run(ctx context.Context, serve bool) error {
	defer a.Close()

	if serve {
		return a.serve(ctx)
	}
	return a.runChat(ctx)
}

func parseFlags() flags {
	var f flags

	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.BoolVar(&f.serve, "serve", false, "Run the HTTP and websocket server instead of the interactive chat")
	flag.StringVar(&f.seal, "seal", "", "Encrypt a secret into the settings file (name=value)")
	flag.BoolVar(&f.initKey, "init-key", false, "Generate the secrets key file if it does not exist")
	flag.StringVar(&f.ollamaURL, "ollama-url", "", "Ollama server URL")
	flag.StringVar(&f.dbURL, "db-url", "", "PostgreSQL connection string")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&f.streaming, "stream", true, "Enable streaming responses")
	flag.Parse()

	return f
}

// applyFlags lets explicitly set flags override the config file.
func applyFlags(config *cfgPkg.Config, f flags) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "ollama-url":
			config.LLM.BaseURL = f.ollamaURL
			config.Embedding.BaseURL = f.ollamaURL
		case "db-url":
			config.Database.URL = f.dbURL
		case "log-level":
			config.Log.Level = f.logLevel
		case "stream":
			config.UI.Streaming = f.streaming
		}
	})
}

func runInitKey(secretStore *secrets.Store, path string) error {
	created, err := secretStore.InitKey()
	if err != nil {
		return err
	}
	if created {
		color.Green("✓ Key written to %s", path)
	} else {
		color.Yellow("Key already exists at %s, left unchanged", path)
	}
	return nil
}

func runSeal(secretStore *secrets.Store, arg string) error {
	name, value, ok := strings.Cut(arg, "=")
	if !ok || name == "" || value == "" {
		return fmt.Errorf("-seal expects name=value")
	}
	if err := secretStore.Put(name, value); err != nil {
		return fmt.Errorf("failed to seal %q: %w", name, err)
	}
	color.Green("✓ Sealed %s", name)
	return nil
}

func newApp(ctx context.Context, config *cfgPkg.Config, log *logrus.Logger, secretStore *secrets.Store) (*app, error) {
	a := &app{
		config:   config,
		log:      log,
		secrets:  secretStore,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	chat, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       config.LLM.Model,
		MaxTokens:   config.LLM.MaxTokens,
		BaseURL:     config.LLM.BaseURL,
		Temperature: config.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}
	a.chat = chat

	keywordSets, err := classifier.LoadKeywordSets(config.Classifier.KeywordsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load keyword sets: %w", err)
	}

	legal, err := lawapi.NewWithConfig(lawapi.ClientConfig{
		BaseURL:        config.LawAPI.BaseURL,
		SearchPath:     config.LawAPI.SearchPath,
		FetchPath:      config.LawAPI.FetchPath,
		CredentialName: config.LawAPI.CredentialName,
		Credentials:    secretStore,
		CallTimeout:    config.LawAPI.CallTimeout,
		Workers:        config.LawAPI.Workers,
		RateLimit:      config.LawAPI.RateLimit,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize legal database client: %w", err)
	}

	semantic, err := a.semanticSearch(ctx)
	if err != nil {
		// The internal source is optional; retrieval continues with the
		// external one.
		log.WithError(err).Warn("Internal document search disabled")
	}

	a.dispatcher = events.NewWithConfig(events.DispatcherConfig{
		Logger:     log,
		Registerer: a.registry,
	})

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ExcerptRunes: config.Retrieval.ExcerptRunes,
	})

	pipelineConfig := retrieval.PipelineConfig{
		TopK:              config.Retrieval.TopK,
		ResultCap:         config.Retrieval.ResultCap,
		Budget:            config.Retrieval.Budget,
		MaxSearchKeywords: config.Retrieval.MaxSearchKeywords,
		SourceTypes:       config.LawAPI.SourceTypes,
		Classifier:        classifier.New(keywordSets),
		Legal:             legal,
		Processor:         &proc,
		Assembler:         assembler.NewWithConfig(assembler.AssemblerConfig{}),
		Events:            a.dispatcher,
		Logger:            log,
	}
	if semantic != nil {
		pipelineConfig.Semantic = semantic
	}

	a.pipeline, err = retrieval.NewWithConfig(pipelineConfig)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize retrieval pipeline: %w", err)
	}

	return a, nil
}

func (a *app) semanticSearch(ctx context.Context) (types.SemanticSearcher, error) {
	config := a.config
	if config.Database.URL == "" {
		return nil, fmt.Errorf("database url not configured")
	}

	var apiKey string
	if config.Embedding.Provider == "openai" {
		key, err := a.secrets.Get(config.Embedding.APIKeyName)
		if err != nil {
			return nil, fmt.Errorf("embedding api key: %w", err)
		}
		apiKey = key
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:   config.Embedding.Provider,
		Model:      config.Embedding.Model,
		BaseURL:    config.Embedding.BaseURL,
		Dimensions: config.Embedding.Dimensions,
		APIKey:     apiKey,
	})
	if err != nil {
		return nil, err
	}

	vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString:    config.Database.URL,
		ChunkTable:    config.Database.ChunkTable,
		DocumentTable: config.Database.DocumentTable,
		VectorDim:     config.Database.VectorDim,
		SearchLimit:   config.Retrieval.TopK,
		MetaCacheTTL:  config.Database.MetaCacheTTL,
		AutoMigrate:   config.Database.AutoMigrate,
	})
	if err != nil {
		return nil, err
	}
	a.store = vs

	searcher, err := search.NewWithConfig(search.SearcherConfig{
		Embedder: embedder,
		Index:    vs,
		TopK:     config.Retrieval.TopK,
		Logger:   a.log,
	})
	if err != nil {
		return nil, err
	}
	return searcher, nil
}

func (a *app) serve(ctx context.Context) error {
	srv, err := server.NewWSServer(server.Config{
		Retriever: a.pipeline,
		Generator: a.chat,
		Streaming: a.config.UI.Streaming,
		Gatherer:  a.registry,
		Logger:    a.log,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	return srv.ListenAndServe(ctx, ":"+a.config.Server.Port)
}

func (a *app) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
