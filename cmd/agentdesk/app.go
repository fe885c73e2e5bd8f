package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/haasonsaas/agentdesk/internal/agent"
	"github.com/haasonsaas/agentdesk/internal/agent/providers"
	"github.com/haasonsaas/agentdesk/internal/audit"
	"github.com/haasonsaas/agentdesk/internal/blobstore"
	"github.com/haasonsaas/agentdesk/internal/config"
	"github.com/haasonsaas/agentdesk/internal/credentials"
	"github.com/haasonsaas/agentdesk/internal/imagegen"
	"github.com/haasonsaas/agentdesk/internal/memory/embeddings"
	"github.com/haasonsaas/agentdesk/internal/observability"
	"github.com/haasonsaas/agentdesk/internal/storage"
	"github.com/haasonsaas/agentdesk/internal/tools"
	"github.com/haasonsaas/agentdesk/internal/tts"
)

// loadConfig reads the configuration. A missing file at the implicit
// default path yields the built-in defaults.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	path := opts.resolvedConfigPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == defaultConfigPath && opts.configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) *slog.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    out,
		AddSource: cfg.Logging.AddSource,
	})
}

// app holds the long-lived components of one process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	blobs  blobstore.Store
	store  *storage.Store

	// Set by withPipeline.
	audit           *audit.Logger
	metrics         *observability.Metrics
	tracer          *observability.Tracer
	shutdownTracing func(context.Context) error
	processor       *agent.Processor
}

// openApp connects storage and the blob store.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	blobs, err := openBlobStore(ctx, cfg.Blob)
	if err != nil {
		return nil, err
	}
	codec, err := credentials.FromConfig(cfg.Security.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("credential codec: %w", err)
	}
	if _, plaintext := codec.(credentials.Plaintext); plaintext {
		logger.Warn("security.credential_key is empty; provider keys are stored unencrypted")
	}
	store, err := storage.Open(ctx, storage.Config{
		Driver:         cfg.Database.Driver,
		DSN:            cfg.Database.DSN,
		MaxConnections: cfg.Database.MaxConnections,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}, codec, blobs)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	return &app{cfg: cfg, logger: logger, blobs: blobs, store: store}, nil
}

func openBlobStore(ctx context.Context, cfg config.BlobConfig) (blobstore.Store, error) {
	switch cfg.Backend {
	case "s3":
		store, err := blobstore.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("open s3 blob store: %w", err)
		}
		return store, nil
	default:
		store, err := blobstore.NewLocalStore(cfg.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("open local blob store: %w", err)
		}
		return store, nil
	}
}

// pipelineOptions carry process-level collaborators that tests replace.
type pipelineOptions struct {
	metrics    *observability.Metrics
	httpClient *http.Client
}

// withPipeline builds the audit stream, provider adapters, optional media
// collaborators and the message processor.
func (a *app) withPipeline(opts pipelineOptions) error {
	cfg := a.cfg
	auditLogger, err := audit.NewLogger(cfg.Audit, a.store, a.logger)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	a.audit = auditLogger

	a.metrics = opts.metrics
	if a.metrics == nil {
		a.metrics = observability.NewMetrics()
	}
	a.tracer, a.shutdownTracing = observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	httpClient := opts.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	registry := providers.NewRegistry(providers.Options{
		BaseURLs:          cfg.Providers.BaseURLs,
		OpenRouterAppName: cfg.Providers.OpenRouter.AppName,
		OpenRouterSiteURL: cfg.Providers.OpenRouter.SiteURL,
		HTTPClient:        httpClient,
		MaxAttempts:       cfg.Providers.MaxAttempts,
		Logger:            a.logger,
	})

	deps := agent.Deps{
		Config:    a.store,
		Memory:    a.store,
		Workspace: a.store,
		Audit:     auditLogger,
		Providers: registry,
		Embedder:  embeddings.NewOpenAIEmbedder(httpClient),
		Tools:     tools.NewDefaultRegistry(),
		Metrics:   a.metrics,
		Tracer:    a.tracer,
		Logger:    a.logger,
	}
	// Assign only non-nil collaborators so disabled ones stay nil interfaces.
	switch synth, err := tts.New(cfg.TTS, a.blobs, a.store, httpClient); {
	case err == nil:
		deps.Speech = synth
	case !errors.Is(err, tts.ErrDisabled):
		return fmt.Errorf("tts: %w", err)
	}
	switch gen, err := imagegen.New(cfg.Images, a.blobs, a.store, httpClient); {
	case err == nil:
		deps.Images = gen
	case !errors.Is(err, imagegen.ErrDisabled):
		return fmt.Errorf("images: %w", err)
	}

	processor, err := agent.NewProcessor(deps, agent.Options{
		RecentContextMessages: cfg.Pipeline.RecentContextMessages,
		SemanticContextLimit:  cfg.Pipeline.SemanticContextLimit,
		MaxDelegationDepth:    cfg.Pipeline.MaxDelegationDepth,
		ProviderTimeout:       cfg.Pipeline.ProviderTimeout,
		OptionalTimeout:       cfg.Pipeline.OptionalTimeout,
	})
	if err != nil {
		return err
	}
	a.processor = processor
	return nil
}

// Close flushes the audit stream and tracer, then closes storage.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
