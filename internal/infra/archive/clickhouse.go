package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
)

const createTable = `CREATE TABLE IF NOT EXISTS defense_receipts (
	evidence_hash String,
	run_id String,
	protocol_id String,
	mode LowCardinality(String),
	asset LowCardinality(String),
	agent_id String,
	score UInt8,
	level UInt8,
	vulnerability_class LowCardinality(String),
	divergence_pct Float64,
	staleness_seconds Int64,
	liquidity_usd Float64,
	source_label String,
	created_at DateTime64(3, 'UTC'),
	receipt String
) ENGINE = ReplacingMergeTree
ORDER BY (asset, created_at, evidence_hash)`

const insertReceipt = `INSERT INTO defense_receipts (
	evidence_hash, run_id, protocol_id, mode, asset, agent_id, score, level,
	vulnerability_class, divergence_pct, staleness_seconds, liquidity_usd,
	source_label, created_at, receipt
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ClickHouse stores a flattened row per signed receipt plus the full JSON.
type ClickHouse struct {
	db   execer
	pool *sql.DB
}

type Config struct {
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg Config) (*ClickHouse, error) {
	if cfg.DSN == "" {
		return nil, errors.New("clickhouse dsn is required")
	}
	db, err := sql.Open("clickhouse", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &ClickHouse{db: db, pool: db}, nil
}

func (c *ClickHouse) Store(ctx context.Context, r domain.SignedReceipt) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	_, err = c.db.ExecContext(ctx, insertReceipt,
		r.EvidenceHash,
		r.RunID,
		r.ProtocolID,
		string(r.Mode),
		r.Signals.Asset,
		r.AgentID,
		uint8(r.Result.Score),
		uint8(r.Result.Level),
		string(r.Result.VulnerabilityClass),
		r.Signals.DivergencePct,
		r.Signals.StalenessSeconds,
		r.Signals.LiquidityUSD,
		r.Signals.SourceLabel,
		r.CreatedAt.UTC(),
		string(raw),
	)
	if err != nil {
		return fmt.Errorf("archive receipt %s: %w", r.EvidenceHash, err)
	}
	return nil
}

func (c *ClickHouse) Close() error {
	if c.pool == nil {
		return nil
	}
	return c.pool.Close()
}

var _ domain.ReceiptArchive = (*ClickHouse)(nil)
