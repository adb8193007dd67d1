package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/spigell/hh-interviewer/internal/ai"
	"github.com/spigell/hh-interviewer/internal/ai/gemini"
	"github.com/spigell/hh-interviewer/internal/interview"
	"github.com/spigell/hh-interviewer/internal/logger"
	"github.com/spigell/hh-interviewer/internal/prompts"
	"github.com/spigell/hh-interviewer/internal/results"
	"github.com/spigell/hh-interviewer/internal/secrets"
	"github.com/spigell/hh-interviewer/internal/session"
	"github.com/spigell/hh-interviewer/internal/usage"
)

const mongoConnectTimeout = 10 * time.Second

// deps builds the runtime components from config. The mongo client is
// connected on first use and shared by every mongo backed component.
type deps struct {
	config *Config
	logger *zap.Logger
	client *mongo.Client
}

func newDeps(config *Config, logger *zap.Logger) *deps {
	return &deps{config: config, logger: logger}
}

func (d *deps) close(ctx context.Context) {
	if d.client == nil {
		return
	}
	if err := d.client.Disconnect(ctx); err != nil {
		d.logger.Warn("disconnecting from mongo", zap.Error(err))
	}
}

func (d *deps) database(ctx context.Context) (*mongo.Database, error) {
	cfg := d.config.Mongo
	if cfg == nil {
		return nil, fmt.Errorf("mongo section is required")
	}

	if d.client == nil {
		uri, err := secrets.Load(secrets.Source{
			Name:  "mongo uri",
			Value: cfg.URI,
			File:  cfg.URIFile,
			Env:   "MONGO_URI",
		})
		if err != nil {
			return nil, err
		}

		connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
		defer cancel()

		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			client.Disconnect(ctx)
			return nil, fmt.Errorf("ping mongo: %w", err)
		}

		d.logger.Info("connected to mongo", zap.String("database", cfg.Database))
		d.client = client
	}

	return d.client.Database(cfg.Database), nil
}

func (d *deps) collection(ctx context.Context, name string) (*mongo.Collection, error) {
	db, err := d.database(ctx)
	if err != nil {
		return nil, err
	}
	return db.Collection(name), nil
}

func (d *deps) sessionStore(ctx context.Context) (session.Store, error) {
	cfg := d.config.Session
	if cfg == nil {
		cfg = &SessionConfig{}
	}

	switch kind := strings.ToLower(strings.TrimSpace(cfg.Store)); kind {
	case "", "memory":
		d.logger.Warn("using in-memory session store, sessions are lost on exit")
		return session.NewMemoryStore(), nil
	case "file":
		store, err := session.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		removed, err := store.Purge(ctx)
		if err != nil {
			return nil, fmt.Errorf("purge expired sessions: %w", err)
		}
		d.logger.Info("using file session store", zap.String("dir", cfg.Dir), zap.Int("purged", removed))
		return store, nil
	case "mongo":
		coll, err := d.collection(ctx, d.config.Mongo.SessionsCollection)
		if err != nil {
			return nil, err
		}
		store := session.NewMongoStore(coll)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported session store: %s", kind)
	}
}

// templateSource is a provider that can also enumerate its templates.
type templateSource interface {
	prompts.Provider
	List(ctx context.Context) ([]prompts.Template, error)
}

func (d *deps) promptProvider(ctx context.Context) (templateSource, error) {
	cfg := d.config.Prompts
	if cfg == nil {
		cfg = &PromptsConfig{}
	}

	switch source := strings.ToLower(strings.TrimSpace(cfg.Source)); source {
	case "", "embedded":
		return prompts.NewDefaultProvider()
	case "file":
		templates, err := prompts.LoadFile(cfg.File)
		if err != nil {
			return nil, err
		}
		return prompts.NewStaticProvider(templates), nil
	case "mongo":
		return d.mongoPrompts(ctx)
	default:
		return nil, fmt.Errorf("unsupported prompts source: %s", source)
	}
}

func (d *deps) mongoPrompts(ctx context.Context) (*prompts.MongoProvider, error) {
	coll, err := d.collection(ctx, d.config.Mongo.PromptsCollection)
	if err != nil {
		return nil, err
	}
	return prompts.NewMongoProvider(coll), nil
}

func (d *deps) chatModel(ctx context.Context) (ai.ChatModel, error) {
	cfg := d.config.AI
	if cfg == nil || cfg.Gemini == nil {
		return nil, fmt.Errorf("ai.gemini configuration is required")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	genLogger := logger.WithModel(d.logger, "gemini", cfg.Gemini.Model, cfg.Gemini.MaxRetries)

	return gemini.NewGenerator(ctx, apiKey, gemini.Options{
		Model:        cfg.Gemini.Model,
		MaxRetries:   cfg.Gemini.MaxRetries,
		MaxLogLength: cfg.Gemini.MaxLogLength,
		Temperature:  cfg.Gemini.Temperature,
	}, genLogger)
}

func (d *deps) usageRecorder(ctx context.Context) (usage.Recorder, error) {
	cfg := d.config.Usage
	if cfg == nil {
		cfg = &UsageConfig{}
	}

	switch kind := strings.ToLower(strings.TrimSpace(cfg.Recorder)); kind {
	case "none":
		return nil, nil
	case "", "memory":
		return usage.NewMemoryRecorder(), nil
	case "mongo":
		coll, err := d.collection(ctx, d.config.Mongo.ScheduledInterviewsCollection)
		if err != nil {
			return nil, err
		}
		return usage.NewMongoRecorder(coll), nil
	default:
		return nil, fmt.Errorf("unsupported usage recorder: %s", kind)
	}
}

func (d *deps) resultsSink(ctx context.Context) (results.Sink, error) {
	cfg := d.config.Results
	if cfg == nil {
		cfg = &ResultsConfig{}
	}

	switch kind := strings.ToLower(strings.TrimSpace(cfg.Sink)); kind {
	case "", "none":
		return nil, nil
	case "file":
		return results.NewFileSink(cfg.Dir), nil
	case "mongo":
		db, err := d.database(ctx)
		if err != nil {
			return nil, err
		}
		return results.NewMongoSink(
			db.Collection(d.config.Mongo.ResultsCollection),
			db.Collection(d.config.Mongo.ScheduledInterviewsCollection),
		), nil
	default:
		return nil, fmt.Errorf("unsupported results sink: %s", kind)
	}
}

// service wires the interview service. The returned recorder is the
// configured usage recorder, possibly nil.
func (d *deps) service(ctx context.Context) (*interview.Service, usage.Recorder, error) {
	provider, err := d.promptProvider(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("prompts: %w", err)
	}
	model, err := d.chatModel(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("ai: %w", err)
	}
	store, err := d.sessionStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("session store: %w", err)
	}
	recorder, err := d.usageRecorder(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("usage: %w", err)
	}
	sink, err := d.resultsSink(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("results: %w", err)
	}

	opts := interview.Options{}
	if d.config.Session != nil {
		opts.TTL = d.config.Session.TTL
	}
	if d.config.AI != nil && d.config.AI.Gemini != nil {
		opts.MaxLogLength = d.config.AI.Gemini.MaxLogLength
	}

	engine, err := interview.NewEngine(interview.Deps{
		Prompts: provider,
		Model:   model,
		Store:   store,
		Usage:   recorder,
		Logger:  d.logger,
	}, opts)
	if err != nil {
		return nil, nil, err
	}

	return interview.NewService(engine, sink, d.logger), recorder, nil
}
