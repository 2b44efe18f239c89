package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	oa "github.com/panyam/lmsauth"
	"github.com/panyam/lmsauth/config"
	"github.com/panyam/lmsauth/sessionstore"
	"github.com/panyam/lmsauth/stores/fs"
	"github.com/panyam/lmsauth/stores/gae"
	gormstore "github.com/panyam/lmsauth/stores/gorm"
	"github.com/panyam/lmsauth/stores/pg"
)

// closer releases whatever a backend opened.
type closer func()

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (oa.Store, closer, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pool, err := pg.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx, pool, cfg.Postgres, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg.NewStore(pool), pool.Close, nil

	case config.StoreGorm:
		db, err := gorm.Open(postgres.Open(cfg.Postgres.ConnectionString), &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open gorm: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		sqlDB.SetMaxOpenConns(int(cfg.Postgres.MaxOpenConns))
		sqlDB.SetMaxIdleConns(int(cfg.Postgres.MaxIdleConns))
		sqlDB.SetConnMaxLifetime(cfg.Postgres.MaxConnLifetime)
		if err := gormstore.AutoMigrate(db); err != nil {
			sqlDB.Close()
			return nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
		return gormstore.NewStore(db), func() { sqlDB.Close() }, nil

	case config.StoreDatastore:
		client, err := datastore.NewClient(ctx, cfg.DatastoreProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("datastore client: %w", err)
		}
		return gae.NewStore(client, cfg.DatastoreNamespace), func() { client.Close() }, nil

	case config.StoreFS:
		return fs.NewStore(cfg.FSStoragePath), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func newSessionManager(ctx context.Context, cfg config.Config) (*scs.SessionManager, closer, error) {
	sm := scs.New()
	sm.Lifetime = cfg.SessionLifetime
	sm.Cookie.Name = "session_id"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = cfg.CookieSecure
	sm.Cookie.Domain = cfg.CookieDomain
	sm.Cookie.Persist = true

	if cfg.SessionBackend != config.SessionRedis {
		sm.Store = memstore.New()
		return sm, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := sessionstore.NewRedisStore(client)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	sm.Store = store
	return sm, func() { client.Close() }, nil
}
