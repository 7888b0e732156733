package store

import (
	"context"
	"fmt"
	"os"
)

const (
	DriverPebble    = "pebble"
	DriverPostgres  = "postgres"
	DriverMongo     = "mongo"
	DriverFirestore = "firestore"
)

type Options struct {
	Driver               string
	PebbleDir            string
	DatabaseURL          string
	MigrationsDir        string
	MongoURL             string
	MongoDatabase        string
	FirestoreProjectID   string
	FirestoreCredentials string
}

// Connect opens the backend named by opts.Driver. The Postgres backend
// applies pending migrations first.
func Connect(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverPebble, "":
		if err := os.MkdirAll(opts.PebbleDir, 0o755); err != nil {
			return nil, fmt.Errorf("create pebble dir: %w", err)
		}
		return OpenPebble(opts.PebbleDir)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DatabaseURL, opts.MigrationsDir)
	case DriverMongo:
		return OpenMongo(ctx, opts.MongoURL, opts.MongoDatabase)
	case DriverFirestore:
		return OpenFirestore(ctx, opts.FirestoreProjectID, opts.FirestoreCredentials)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
