package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pvarki/takbackend/pkg/logger"
)

// Options tunes OpenPostgres. Zero fields fall back to the defaults below.
type Options struct {
	// Verbose also logs slow queries and warnings, not only failed queries.
	Verbose bool

	MaxRetries      int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	// SlowQuery is the threshold above which a query is logged as slow.
	SlowQuery time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 25
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 5 * time.Minute
	}
	if o.SlowQuery <= 0 {
		o.SlowQuery = 500 * time.Millisecond
	}
	return o
}

// OpenPostgres opens a gorm connection, retrying while the server comes up.
func OpenPostgres(ctx context.Context, dsn string, opts Options) (*gorm.DB, error) {
	opts = opts.withDefaults()

	level := gormlogger.Error
	if opts.Verbose {
		level = gormlogger.Warn
	}
	cfg := &gorm.Config{
		Logger: newGormLogger(logger.L(), level, opts.SlowQuery),
	}

	b := backoff{maxRetries: opts.MaxRetries, delay: 500 * time.Millisecond, maxDelay: 5 * time.Second}
	var (
		db  *gorm.DB
		err error
	)
	for attempt := 0; ; attempt++ {
		if db, err = gorm.Open(postgres.Open(dsn), cfg); err == nil {
			break
		}
		if attempt >= b.maxRetries {
			return nil, fmt.Errorf("open postgres failed after %d attempts: %w", attempt+1, err)
		}
		wait := b.nextDelay(attempt)
		logger.L().Warn("postgres not reachable, retrying", zap.Int("attempt", attempt+1), zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("open postgres canceled: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	// Allocations hold a row lock for the length of one transaction, so the
	// pool size caps how many can queue at once.
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

// Ping checks the connection pool behind db.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

type backoff struct {
	maxRetries int
	delay      time.Duration
	maxDelay   time.Duration
}

func (b backoff) nextDelay(attempt int) time.Duration {
	d := b.delay << attempt
	if d > b.maxDelay || d <= 0 {
		return b.maxDelay
	}
	return d
}
