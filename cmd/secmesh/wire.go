package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/secmesh"
	"github.com/hupe1980/secmesh/config"
	"github.com/hupe1980/secmesh/internal/telemetry"
	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/model"
	anthropicmodel "github.com/hupe1980/secmesh/model/anthropic"
	openaimodel "github.com/hupe1980/secmesh/model/openai"
	"github.com/hupe1980/secmesh/store"
	"github.com/hupe1980/secmesh/store/cache"
	"github.com/hupe1980/secmesh/store/neo4j"
	"github.com/hupe1980/secmesh/tool"
)

// runtime owns everything a command builds from the configuration.
type runtime struct {
	mesh    *secmesh.SecMesh
	closers []func(context.Context) error
}

func (r *runtime) Close(ctx context.Context) error {
	r.mesh.Shutdown()

	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			for i := len(rt.closers) - 1; i >= 0; i-- {
				_ = rt.closers[i](ctx)
			}
		}
	}()

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{Exporter: cfg.Telemetry.Exporter})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, shutdown)

	llm, err := newModel(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	s, err := newStore(ctx, rt, cfg, logger)
	if err != nil {
		return nil, err
	}

	var policy *tool.Policy
	if cfg.Tool.Policy != "" {
		if policy, err = tool.NewPolicy(cfg.Tool.Policy); err != nil {
			return nil, err
		}
	}

	rt.mesh, err = secmesh.New(llm, func(o *secmesh.Options) {
		o.Store = s
		o.Policy = policy
		o.MaxSteps = cfg.Agent.MaxSteps
		o.PipelineMaxSteps = cfg.Agent.PipelineMaxSteps
		o.MaxConcurrentRuns = cfg.Agent.MaxConcurrent
		o.UserID = cfg.Agent.UserID
		o.EnrichLimit = cfg.Enrich.Limit
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}

	return rt, nil
}

func newModel(cfg config.LLMConfig, logger logging.Logger) (model.Model, error) {
	var llm model.Model

	switch cfg.Provider {
	case "openai":
		llm = openaimodel.NewModel(func(o *openaimodel.Options) {
			o.Model = cfg.Model
			o.Temperature = cfg.Temperature
			o.BaseURL = cfg.BaseURL
			o.APIKey = cfg.APIKey
		})
	case "anthropic":
		llm = anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			o.Model = anthropic.Model(cfg.Model)
			o.Temperature = cfg.Temperature
			o.BaseURL = cfg.BaseURL
			o.APIKey = cfg.APIKey
		})
	case "mock":
		return model.NewMockModel("mock", "mock"), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}

	if cfg.Breaker.Enabled {
		llm = model.NewCircuitBreaker(llm, cfg.Breaker.BreakerConfig, logger)
	}

	return llm, nil
}

// newStore connects the graph store, wrapped in the query cache when Redis
// is configured. Without a URI the agents run storeless.
func newStore(ctx context.Context, rt *runtime, cfg *config.Config, logger logging.Logger) (store.Store, error) {
	if cfg.Neo4j.URI == "" {
		logger.Warn("store.disabled", "reason", "neo4j.uri not set")
		return nil, nil
	}

	graph, err := neo4j.New(ctx, func(o *neo4j.Options) {
		o.URI = cfg.Neo4j.URI
		o.Username = cfg.Neo4j.User
		o.Password = cfg.Neo4j.Password
		o.Database = cfg.Neo4j.Database
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, graph.Close)

	if cfg.Cache.RedisAddr == "" {
		return graph, nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.Cache.RedisAddr)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })

	return cache.New(graph, client, func(o *cache.Options) {
		o.TTL = cfg.Cache.TTL
		o.Logger = logger
	}), nil
}
