// Package daemon composes the search bot's components into a running
// process.
package daemon

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/qiaoborui/telegram-search-bot/internal/bus"
	"github.com/qiaoborui/telegram-search-bot/internal/config"
	"github.com/qiaoborui/telegram-search-bot/internal/format"
	"github.com/qiaoborui/telegram-search-bot/internal/ingest"
	"github.com/qiaoborui/telegram-search-bot/internal/lock"
	"github.com/qiaoborui/telegram-search-bot/internal/logging"
	"github.com/qiaoborui/telegram-search-bot/internal/nlquery"
	"github.com/qiaoborui/telegram-search-bot/internal/paths"
	"github.com/qiaoborui/telegram-search-bot/internal/search"
	"github.com/qiaoborui/telegram-search-bot/internal/session"
	"github.com/qiaoborui/telegram-search-bot/internal/status"
	"github.com/qiaoborui/telegram-search-bot/internal/store"
	"github.com/qiaoborui/telegram-search-bot/internal/token"
)

// Params holds the resolved runtime settings passed to the fx module.
type Params struct {
	DataDir    string // empty = ~/.searchbot
	ConfigPath string // empty = <DataDir>/config.toml
}

func (p Params) dataDir() string {
	if p.DataDir != "" {
		return p.DataDir
	}
	return paths.BaseDir()
}

func (p Params) configPath() string {
	if p.ConfigPath != "" {
		return p.ConfigPath
	}
	return filepath.Join(p.dataDir(), "config.toml")
}

// CacheHealth reports whether the session cache runs on its configured
// Redis backend or fell back to process memory.
type CacheHealth struct {
	Degraded bool
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSessionCache,
			provideCodec,
			provideExecutor,
			provideFormatter,
			provideNormalizer,
			provideIngestEngine,
			provideSession,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.configPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(filepath.Join(p.dataDir(), "logs", "searchbotd.log"))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	dir := p.dataDir()
	logger.Info("acquiring data dir lock", zap.String("dir", dir))
	l, err := lock.Acquire(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(p Params, cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(p.dataDir(), "archive.db")
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSessionCache(cfg *config.Config, logger *zap.Logger) (token.SessionCache, *CacheHealth) {
	if cfg.RedisAddr == "" {
		logger.Info("redis not configured, using in-memory session cache")
		return token.NewMemoryCache(), &CacheHealth{}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, falling back to in-memory session cache",
			zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return token.NewMemoryCache(), &CacheHealth{Degraded: true}
	}

	logger.Info("redis session cache connected", zap.String("addr", cfg.RedisAddr))
	return token.NewRedisCache(client, 30*time.Minute), &CacheHealth{}
}

func provideCodec(cache token.SessionCache) *token.Codec {
	return token.NewCodec(cache)
}

func provideExecutor(db *store.DB, logger *zap.Logger) *search.Executor {
	return search.NewExecutor(db, logger)
}

func provideFormatter(cfg *config.Config) *format.Formatter {
	return format.New(cfg.Location())
}

// storeNames resolves sender names for the normalizer prompt.
type storeNames struct {
	db *store.DB
}

func (s storeNames) UserFullname(id int64) (string, bool) {
	u, err := s.db.GetUser(id)
	if err != nil || u == nil || u.Fullname == "" {
		return "", false
	}
	return u.Fullname, true
}

func provideNormalizer(cfg *config.Config, db *store.DB, logger *zap.Logger) *nlquery.Normalizer {
	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		logger.Info("no LLM API key in environment, natural-language search disabled")
		return nil
	}

	n, err := nlquery.New(nlquery.Config{
		APIKey:  apiKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLMTimeout(),
	}, cfg.Location(), storeNames{db}, logger)
	if err != nil {
		logger.Warn("normalizer setup failed, natural-language search disabled", zap.Error(err))
		return nil
	}
	return n
}

func provideIngestEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, b, logger)
}

func provideSession(exec *search.Executor, codec *token.Codec, f *format.Formatter, norm *nlquery.Normalizer, cfg *config.Config, logger *zap.Logger) *session.Session {
	// A typed nil must not leak into the interface or the configured-check
	// inside Session breaks.
	var n session.Normalizer
	if norm != nil {
		n = norm
	}
	return session.New(exec, codec, f, n, cfg.PageSize, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, engine *ingest.Engine, machine *status.Machine, health *CacheHealth, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(context.Background())

			if health.Degraded {
				_ = machine.Transition(status.Degraded)
			} else {
				_ = machine.Transition(status.Ready)
			}
			logger.Info("daemon started", zap.String("state", string(machine.Current())))
			return nil
		},
		OnStop: func(_ context.Context) error {
			_ = machine.Transition(status.Stopping)
			engine.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
