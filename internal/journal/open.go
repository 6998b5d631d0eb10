package journal

import (
	"context"
	"os"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/go-redis/redis"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	commonconfig "github.com/G-Research/dispatch/internal/common/config"
	"github.com/G-Research/dispatch/internal/common/database"
	"github.com/G-Research/dispatch/internal/common/dispatcherrors"
	"github.com/G-Research/dispatch/internal/common/pulsarutils"
)

const (
	BackendTable    = "table"
	BackendSqlite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type TableConfig struct {
	// Journal replayed at startup.
	InputPath string
	// Journal new events are written to. Defaults to InputPath, which is then appended to.
	OutputPath string
	// Append to OutputPath rather than truncating it.
	Append bool
}

type SqliteConfig struct {
	Path string
}

type PostgresConfig struct {
	commonconfig.PostgresConfig `mapstructure:",squash"`
	TableName                   string
}

type PulsarConfig struct {
	Enabled                   bool
	commonconfig.PulsarConfig `mapstructure:",squash"`
}

type Config struct {
	Backend string `validate:"oneof=table sqlite redis postgres"`
	// Discard what the database backends hold for the queue instead of replaying it.
	Reset    bool
	Table    TableConfig
	Sqlite   SqliteConfig
	Redis    commonconfig.RedisConfig
	Postgres PostgresConfig
	Pulsar   PulsarConfig
}

// Journal is an opened journal. Reader is nil when there is nothing to replay.
type Journal struct {
	Reader  Reader
	Writer  Writer
	closers []func() error
}

// Close closes the writer and then the resources backing it.
func (j *Journal) Close() error {
	var result *multierror.Error
	if j.Reader != nil {
		if err := j.Reader.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := j.Writer.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	for i := len(j.closers) - 1; i >= 0; i-- {
		if err := j.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Open opens the configured journal backend for queue, plus the pulsar mirror if enabled.
func Open(ctx context.Context, config Config, queue string) (*Journal, error) {
	var j *Journal
	var err error
	switch config.Backend {
	case BackendTable, "":
		j, err = openTable(config.Table)
	case BackendSqlite:
		j, err = openSqlite(ctx, config, queue)
	case BackendRedis:
		j, err = openRedis(config, queue)
	case BackendPostgres:
		j, err = openPostgres(ctx, config, queue)
	default:
		err = errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    "journal.backend",
			Value:   config.Backend,
			Message: "expected one of table, sqlite, redis or postgres",
		})
	}
	if err != nil {
		return nil, err
	}
	if config.Pulsar.Enabled {
		if err := j.mirrorToPulsar(config.Pulsar, queue); err != nil {
			_ = j.Close()
			return nil, err
		}
	}
	return j, nil
}

func openTable(config TableConfig) (*Journal, error) {
	if config.InputPath == "" && config.OutputPath == "" {
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    "journal.table",
			Value:   "",
			Message: "at least one of inputPath and outputPath must be set",
		})
	}

	j := &Journal{}
	outputPath := config.OutputPath
	appendMode := config.Append
	if outputPath == "" || outputPath == config.InputPath {
		outputPath = config.InputPath
		appendMode = true
	}

	if config.InputPath != "" {
		reader, err := OpenTableReader(config.InputPath)
		switch {
		case err == nil:
			j.Reader = reader
		case errors.Is(err, os.ErrNotExist) && outputPath == config.InputPath:
			log.Infof("journal %s does not exist yet; starting with no completed jobs", config.InputPath)
		default:
			return nil, err
		}
	}

	writer, err := OpenTableWriter(outputPath, appendMode)
	if err != nil {
		if j.Reader != nil {
			_ = j.Reader.Close()
		}
		return nil, err
	}
	j.Writer = writer
	return j, nil
}

func openSqlite(ctx context.Context, config Config, queue string) (*Journal, error) {
	if config.Sqlite.Path == "" {
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{Name: "journal.sqlite.path", Value: ""})
	}
	db, err := OpenSQLiteJournal(config.Sqlite.Path, queue)
	if err != nil {
		return nil, err
	}
	j := &Journal{Writer: db.Writer(), closers: []func() error{db.Close}}
	if config.Reset {
		err = db.Clear(ctx)
	} else {
		j.Reader, err = db.Reader(ctx)
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func openRedis(config Config, queue string) (*Journal, error) {
	if len(config.Redis.Addrs) == 0 {
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{Name: "journal.redis.addrs", Value: config.Redis.Addrs})
	}
	client := redis.NewUniversalClient(config.Redis.AsUniversalOptions())
	if err := client.Ping().Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "cannot connect to redis at %v", config.Redis.Addrs)
	}
	db := NewRedisJournal(client, queue)
	j := &Journal{Writer: db.Writer(), closers: []func() error{client.Close}}
	var err error
	if config.Reset {
		err = db.Clear()
	} else {
		j.Reader, err = db.Reader()
	}
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return j, nil
}

func openPostgres(ctx context.Context, config Config, queue string) (*Journal, error) {
	if len(config.Postgres.Connection) == 0 {
		return nil, errors.WithStack(&dispatcherrors.ErrInvalidArgument{Name: "journal.postgres.connection", Value: config.Postgres.Connection})
	}
	pool, err := database.OpenPgxPool(ctx, config.Postgres.PostgresConfig)
	if err != nil {
		return nil, err
	}
	closePool := func() error {
		pool.Close()
		return nil
	}

	tableName := config.Postgres.TableName
	if tableName == "" {
		tableName = "dispatch_journal"
	}
	db, err := NewPostgresJournal(pool, tableName, queue)
	if err != nil {
		pool.Close()
		return nil, err
	}
	j := &Journal{Writer: db.Writer(ctx), closers: []func() error{closePool}}
	if config.Reset {
		err = db.Clear(ctx)
	} else {
		j.Reader, err = db.Reader(ctx)
	}
	if err != nil {
		pool.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) mirrorToPulsar(config PulsarConfig, queue string) error {
	if config.URL == "" || config.Topic == "" {
		return errors.WithStack(&dispatcherrors.ErrInvalidArgument{
			Name:    "journal.pulsar",
			Value:   config.URL,
			Message: "url and topic are required when the pulsar mirror is enabled",
		})
	}
	client, err := pulsarutils.NewPulsarClient(&config.PulsarConfig)
	if err != nil {
		return err
	}
	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: config.Topic,
		Name:  "dispatch-journal-" + queue,
	})
	if err != nil {
		client.Close()
		return errors.Wrapf(err, "cannot create pulsar producer for topic %s", config.Topic)
	}
	j.Writer = NewMultiWriter(j.Writer, NewPulsarMirror(producer, queue, pulsarutils.OperationTimeout(&config.PulsarConfig)))
	j.closers = append(j.closers, func() error {
		client.Close()
		return nil
	})
	return nil
}
