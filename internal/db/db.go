package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/healthspend/apiserver/config"
	"github.com/healthspend/apiserver/internal/docstore"
	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultDBDriver     = "postgres"
	defaultPingTimeout  = 5 * time.Second
	defaultConnMaxIdle  = 2 * time.Minute
	defaultConnMaxLife  = 30 * time.Minute
	defaultMaxIdleConns = 5
	defaultMaxOpenConns = 25
	defaultMongoPool    = 25
)

// Collection names shared by both services.
const (
	UsersCollection       = "users"
	PredictionsCollection = "predictions"
	ExpensesCollection    = "expenses"
)

// OpenDocStore connects the document store selected by cfg.DocStore.Driver
// and ensures the indexes both services rely on.
func OpenDocStore(ctx context.Context, cfg config.Config) (docstore.Database, error) {
	var (
		store docstore.Database
		err   error
	)
	switch cfg.DocStore.Driver {
	case config.DriverMongo, "":
		store, err = openMongo(ctx, cfg.DocStore)
	case config.DriverPostgres:
		var conn *sql.DB
		conn, err = OpenPostgres(ctx, cfg.Database)
		if err == nil {
			store = docstore.NewPostgres(conn)
		}
	case config.DriverMemory:
		store = docstore.NewMemory()
	default:
		return nil, fmt.Errorf("unknown document store driver %q", cfg.DocStore.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := ensureIndexes(ctx, store); err != nil {
		_ = store.Close(context.Background())
		return nil, err
	}
	return store, nil
}

func ensureIndexes(ctx context.Context, store docstore.Database) error {
	indexes := []struct {
		collection string
		index      docstore.Index
	}{
		{UsersCollection, docstore.Index{Keys: []string{"email"}, Unique: true}},
		{UsersCollection, docstore.Index{Keys: []string{"id"}, Unique: true}},
		{PredictionsCollection, docstore.Index{Keys: []string{"user_id", "created_at"}}},
		{ExpensesCollection, docstore.Index{Keys: []string{"user_id", "date"}}},
	}
	for _, item := range indexes {
		if err := store.EnsureIndex(ctx, item.collection, item.index); err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}

func openMongo(ctx context.Context, cfg config.DocStoreConfig) (*docstore.MongoDatabase, error) {
	if strings.TrimSpace(cfg.MongoURL) == "" {
		return nil, errors.New("MONGO_URL environment variable is not set")
	}

	opts := options.Client().
		ApplyURI(cfg.MongoURL).
		SetMaxPoolSize(defaultMongoPool).
		SetMaxConnIdleTime(defaultConnMaxIdle)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return docstore.NewMongo(client, cfg.DBName), nil
}

// OpenPostgres opens and pings a pooled Postgres connection.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(defaultDBDriver, PostgresURL(cfg))
	if err != nil {
		return nil, err
	}

	db.SetConnMaxIdleTime(defaultConnMaxIdle)
	db.SetConnMaxLifetime(defaultConnMaxLife)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetMaxOpenConns(defaultMaxOpenConns)

	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// PostgresURL returns cfg.URL when set, otherwise a URL built from the
// individual connection settings.
func PostgresURL(cfg config.DatabaseConfig) string {
	if strings.TrimSpace(cfg.URL) != "" {
		return cfg.URL
	}

	sslmode := "disable"
	if cfg.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		User:   url.UserPassword(cfg.User, cfg.Password),
		Path:   cfg.DBName,
	}

	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}
