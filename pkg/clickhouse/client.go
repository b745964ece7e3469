// Package clickhouse opens the database/sql pool used by the decision
// archive.
package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// Config mirrors the clickhouse section of the service config.
type Config struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	UseHTTP      bool
	AsyncInsert  bool
	WaitForAsync bool // only meaningful with AsyncInsert
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	MaxExecTime  time.Duration
	MaxOpenConns int
	MaxIdleConns int
}

type Client struct {
	db *sql.DB
}

// NewClient opens the pool and pings it.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	db := ch.OpenDB(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", opts.Addr[0], err)
	}
	return &Client{db: db}, nil
}

func NewClientFromDB(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// EnsureSchema runs idempotent DDL in order and stops at the first failure.
func (c *Client) EnsureSchema(ctx context.Context, ddl ...string) error {
	for i, stmt := range ddl {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

func (cfg Config) options() (*ch.Options, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("clickhouse host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 9000
		if cfg.UseHTTP {
			port = 8123
		}
	}

	settings := ch.Settings{}
	if cfg.MaxExecTime > 0 {
		settings["max_execution_time"] = int(cfg.MaxExecTime.Seconds())
	}
	if cfg.AsyncInsert {
		settings["async_insert"] = 1
		if cfg.WaitForAsync {
			settings["wait_for_async_insert"] = 1
		}
	}

	opts := &ch.Options{
		Protocol: ch.Native,
		Addr:     []string{net.JoinHostPort(cfg.Host, strconv.Itoa(port))},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings:        settings,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		MaxOpenConns:    max(cfg.MaxOpenConns, 1),
		MaxIdleConns:    max(cfg.MaxIdleConns, 1),
		ConnMaxLifetime: 5 * time.Minute,
	}
	if cfg.UseHTTP {
		opts.Protocol = ch.HTTP
	}
	return opts, nil
}
