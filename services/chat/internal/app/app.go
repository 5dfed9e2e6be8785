package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"scripturechat/pkg/ai"
	"scripturechat/pkg/bible"
	"scripturechat/pkg/domain"
	"scripturechat/pkg/feed"
	"scripturechat/pkg/storage"
	"scripturechat/pkg/store"
)

const (
	defaultLookupTimeout     = 10 * time.Second
	defaultGenerationTimeout = 60 * time.Second
	defaultArchiveURLExpiry  = 15 * time.Minute
	defaultGenerationModel   = "gemini-2.0-flash"
	persistTimeout           = 10 * time.Second
)

// VerseSearcher returns one hit per verse matching a query.
type VerseSearcher interface {
	Search(ctx context.Context, query string) ([]domain.VerseHit, error)
}

// HistoryRecorder receives the raw text of every submitted query.
type HistoryRecorder interface {
	RecordQuery(ctx context.Context, entry domain.HistoryEntry) error
}

// HistoryRecorderFunc adapts a function to HistoryRecorder.
type HistoryRecorderFunc func(ctx context.Context, entry domain.HistoryEntry) error

func (f HistoryRecorderFunc) RecordQuery(ctx context.Context, entry domain.HistoryEntry) error {
	return f(ctx, entry)
}

// Config holds runtime configuration for the core application. Components
// left nil are built from the connection settings.
type Config struct {
	Store       store.Store
	DatabaseURL string

	Sessions      store.CurrentSessionStore
	Feed          feed.Broker
	RedisAddr     string
	RedisPassword string

	Lookup        bible.Lookuper
	Searcher      VerseSearcher
	BibleAPIURL   string
	Translation   string
	VerseCacheTTL time.Duration

	Generator          ai.Generator
	GenerationProvider string
	GenerationBaseURL  string
	GenerationAPIKey   string
	GenerationModel    string

	History HistoryRecorder
	Archive storage.TranscriptArchive

	Commentators     []string
	CommentatorSplit string

	LookupTimeout     time.Duration
	GenerationTimeout time.Duration
	ArchiveURLExpiry  time.Duration
}

// App is the core application service wiring together storage and the
// message-routing pipeline.
type App struct {
	store      store.Store
	sessions   store.CurrentSessionStore
	feed       feed.Broker
	lookup     bible.Lookuper
	searcher   VerseSearcher
	history    HistoryRecorder
	archive    storage.TranscriptArchive
	roster     Roster
	splitter   Splitter
	commentary commentaryGenerator
	fallback   fallbackGenerator

	lookupTimeout    time.Duration
	archiveURLExpiry time.Duration
	now              func() time.Time
	closers          []io.Closer
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			slog.Warn("no database configured, transcripts are kept in memory")
			dataStore = store.NewMemoryStore()
		} else {
			var err error
			dataStore, err = store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init postgres store: %w", err)
			}
		}
	}

	var closers []io.Closer
	sessions := cfg.Sessions
	if sessions == nil {
		switch {
		case cfg.RedisAddr != "":
			redisSessions := store.NewRedisCurrentSessionStore(cfg.RedisAddr, cfg.RedisPassword)
			sessions = redisSessions
			closers = append(closers, redisSessions)
		default:
			if mem, ok := dataStore.(*store.MemoryStore); ok {
				sessions = mem
			} else {
				sessions = store.NewMemoryStore()
			}
		}
	}

	broker := cfg.Feed
	if broker == nil {
		if cfg.RedisAddr != "" {
			broker = feed.NewRedisBroker(cfg.RedisAddr, cfg.RedisPassword, "")
		} else {
			broker = feed.NewMemoryBroker()
		}
	}

	closers = append(closers, broker)
	lookup, searcher := cfg.Lookup, cfg.Searcher
	if lookup == nil || searcher == nil {
		client := bible.NewClient(cfg.BibleAPIURL, cfg.Translation)
		if searcher == nil {
			searcher = client
		}
		if lookup == nil {
			lookup = client
			if cfg.RedisAddr != "" {
				cached, err := bible.NewCachedLookup(client, bible.CacheConfig{
					Addr:         cfg.RedisAddr,
					Password:     cfg.RedisPassword,
					Prefix:       "scripturechat:verse:" + client.Translation(),
					TTL:          cfg.VerseCacheTTL,
					FetchTimeout: cfg.LookupTimeout,
				})
				if err != nil {
					return nil, fmt.Errorf("init verse cache: %w", err)
				}
				lookup = cached
				closers = append(closers, cached)
			}
		}
	}

	generator := cfg.Generator
	if generator == nil {
		var err error
		generator, err = newGenerator(cfg)
		if err != nil {
			return nil, err
		}
	}

	history := cfg.History
	if history == nil {
		history = HistoryRecorderFunc(dataStore.AppendHistory)
	}

	commentators := cfg.Commentators
	if len(commentators) == 0 {
		commentators = DefaultCommentators
	}
	roster := NewRoster(commentators)

	lookupTimeout := cfg.LookupTimeout
	if lookupTimeout <= 0 {
		lookupTimeout = defaultLookupTimeout
	}
	generationTimeout := cfg.GenerationTimeout
	if generationTimeout <= 0 {
		generationTimeout = defaultGenerationTimeout
	}
	archiveURLExpiry := cfg.ArchiveURLExpiry
	if archiveURLExpiry <= 0 {
		archiveURLExpiry = defaultArchiveURLExpiry
	}

	return &App{
		store:            dataStore,
		sessions:         sessions,
		feed:             broker,
		lookup:           lookup,
		searcher:         searcher,
		history:          history,
		archive:          cfg.Archive,
		roster:           roster,
		splitter:         NewSplitter(cfg.CommentatorSplit, roster),
		commentary:       commentaryGenerator{gen: generator, timeout: generationTimeout},
		fallback:         fallbackGenerator{gen: generator, timeout: generationTimeout},
		lookupTimeout:    lookupTimeout,
		archiveURLExpiry: archiveURLExpiry,
		now:              func() time.Time { return time.Now().UTC() },
		closers:          closers,
	}, nil
}

func newGenerator(cfg Config) (ai.Generator, error) {
	model := strings.TrimSpace(cfg.GenerationModel)
	if model == "" {
		model = defaultGenerationModel
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.GenerationProvider))
	switch provider {
	case "", "gemini":
		var opts []ai.GeminiOption
		if cfg.GenerationBaseURL != "" {
			opts = append(opts, ai.WithGeminiBaseURL(cfg.GenerationBaseURL))
		}
		client, err := ai.NewGeminiClient(cfg.GenerationAPIKey, opts...)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiGenerator(client, model), nil
	case "genai":
		return ai.NewGenAIGenerator(context.Background(), cfg.GenerationAPIKey, model, cfg.GenerationBaseURL)
	case "ollama":
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.GenerationBaseURL), model), nil
	case "openai-compat", "openai":
		if strings.TrimSpace(cfg.GenerationBaseURL) == "" {
			return nil, errors.New("generation base URL required for openai-compat")
		}
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, model), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
}

// Roster returns the configured commentator allow-list.
func (a *App) Roster() Roster {
	return a.roster
}

// Close releases the Redis clients the app opened and the feed broker.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) publish(ctx context.Context, event feed.Event) {
	if err := a.feed.Publish(ctx, event); err != nil {
		slog.Warn("feed publish failed", "session_id", event.SessionID, "type", event.Type, "err", err)
	}
}
