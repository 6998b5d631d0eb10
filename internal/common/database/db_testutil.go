package database

import (
	"context"
	"os"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/dispatch/internal/common/util"
)

// TestConnectionEnvVar names the variable holding the connection string of the postgres used by
// tests, e.g. "host=localhost port=5432 user=postgres password=psw sslmode=disable".
const TestConnectionEnvVar = "DISPATCH_TEST_POSTGRES"

// TestConnectionString returns the test connection string, or empty when tests should not touch postgres.
func TestConnectionString() string {
	return os.Getenv(TestConnectionEnvVar)
}

// WithTestDb creates a dedicated database for the duration of action and drops it afterwards.
func WithTestDb(action func(db *pgxpool.Pool) error) error {
	ctx := context.Background()
	connectionString := TestConnectionString()
	if connectionString == "" {
		return errors.Errorf("%s is not set", TestConnectionEnvVar)
	}

	dbName := "test_" + util.NewULID()
	db, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		return errors.WithStack(err)
	}
	defer db.Close(ctx)

	_, err = db.Exec(ctx, "CREATE DATABASE "+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	testDbPool, err := pgxpool.Connect(ctx, connectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	defer func() {
		testDbPool.Close()
		// disconnect all db user before cleanup
		_, err = db.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = '`+dbName+`';`)
		if err != nil {
			log.WithError(err).Warn("Failed to disconnect users")
		}

		_, err = db.Exec(ctx, "DROP DATABASE "+dbName)
		if err != nil {
			log.WithError(err).Warn("Failed to drop database")
		}
	}()

	return action(testDbPool)
}
