package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	_ "github.com/lib/pq"

	"bizpulse/internal/config"
	"bizpulse/internal/constants"
	"bizpulse/internal/logger"
	"bizpulse/pkg/health"
	"bizpulse/pkg/migrations"
)

// Stores are the connections shared by both binaries. Redis and PostgreSQL
// are required; History stays nil when MongoDB is not configured or not
// reachable.
type Stores struct {
	Redis       *redis.Client
	Postgres    *sql.DB
	MongoClient *mongo.Client
	History     *mongo.Database
}

// OpenStores connects every store. On error, connections opened so far are
// closed again.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*Stores, error) {
	s := &Stores{}
	var err error

	if s.Redis, err = openRedis(ctx, cfg.Redis); err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	log.InfowCtx(ctx, "Redis connected", "addr", s.Redis.Options().Addr)

	if s.Postgres, err = openPostgres(ctx, cfg.Postgres); err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if cfg.RunMigrations {
		if err := migrations.MigratePostgres(s.Postgres); err != nil {
			s.Close(ctx)
			return nil, err
		}
		log.InfowCtx(ctx, "PostgreSQL migrations applied")
	}
	log.InfowCtx(ctx, "PostgreSQL connected", "database", cfg.Postgres.DBName)

	if cfg.MongoDB.URI == "" {
		log.InfowCtx(ctx, "MongoDB not configured, alert history disabled")
		return s, nil
	}
	if err := s.openHistory(ctx, cfg.MongoDB); err != nil {
		log.WarnwCtx(ctx, "MongoDB connection failed, continuing without alert history", "error", err)
		return s, nil
	}
	log.InfowCtx(ctx, "MongoDB connected", "database", s.History.Name())
	return s, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func openPostgres(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("database.postgres.host is required")
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *Stores) openHistory(ctx context.Context, cfg config.MongoDBConfig) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return err
	}

	name := cfg.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	db := client.Database(name)
	if err := migrations.EnsureAlertHistoryIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return err
	}
	s.MongoClient, s.History = client, db
	return nil
}

// HealthRegistry checks every open store; MongoDB only degrades health.
func (s *Stores) HealthRegistry() *health.CheckerRegistry {
	r := health.NewCheckerRegistry()
	r.Register(health.Redis(s.Redis))
	r.Register(health.Postgres(s.Postgres))
	if s.MongoClient != nil {
		r.RegisterOptional(health.Mongo(s.MongoClient))
	}
	return r
}

func (s *Stores) Close(ctx context.Context) []error {
	var errs []error
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if s.Postgres != nil {
		if err := s.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if s.MongoClient != nil {
		if err := s.MongoClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect: %w", err))
		}
	}
	return errs
}
