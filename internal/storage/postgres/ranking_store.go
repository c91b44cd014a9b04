// Package postgres persists ranking runs in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/prospect-ranker/internal/clock/system"
	"github.com/JakeFAU/prospect-ranker/internal/pipeline"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable receives one row per ranked company.
const DefaultTable = "company_rankings"

// Config controls the Postgres connection pool used for ranking rows.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// Clock reports when a run was stored.
type Clock interface {
	Now() time.Time
}

// RankingStore writes ranked companies into Postgres.
type RankingStore struct {
	pool  execCloser
	table string
	clock Clock
}

// NewRankingStore creates a Postgres-backed RankingStore using the provided config.
func NewRankingStore(ctx context.Context, cfg Config) (*RankingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RankingStore{pool: pool, table: table, clock: system.New()}, nil
}

// NewRankingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRankingStoreWithPool(pool execCloser, table string, clock Clock) (*RankingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = system.New()
	}
	return &RankingStore{pool: pool, table: table, clock: clock}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RankingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks the database is reachable.
func (s *RankingStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the ranking table if it does not exist.
func (s *RankingStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	run_id                uuid             NOT NULL,
	rank                  integer          NOT NULL,
	company_name          text             NOT NULL,
	website               text,
	final_score           double precision NOT NULL,
	relevance_probability double precision,
	predicted_label       smallint,
	acquired              boolean          NOT NULL,
	acquisition_phrase    text,
	revenue_millions      double precision,
	hq_in_region          boolean,
	pages_visited         integer          NOT NULL,
	truncated             boolean          NOT NULL,
	degraded              boolean          NOT NULL,
	crawl_error           text,
	ranked_at             timestamptz      NOT NULL,
	PRIMARY KEY (run_id, rank)
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Write implements output.Sink, inserting one row per company with its
// 1-based rank. Rows already stored for the run are replaced.
func (s *RankingStore) Write(ctx context.Context, runID string, ranked []pipeline.RankedCompany) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("ranking store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	rankedAt := s.clock.Now()
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	rank,
	company_name,
	website,
	final_score,
	relevance_probability,
	predicted_label,
	acquired,
	acquisition_phrase,
	revenue_millions,
	hq_in_region,
	pages_visited,
	truncated,
	degraded,
	crawl_error,
	ranked_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
ON CONFLICT (run_id, rank) DO UPDATE SET
	company_name = EXCLUDED.company_name,
	website = EXCLUDED.website,
	final_score = EXCLUDED.final_score,
	relevance_probability = EXCLUDED.relevance_probability,
	predicted_label = EXCLUDED.predicted_label,
	acquired = EXCLUDED.acquired,
	acquisition_phrase = EXCLUDED.acquisition_phrase,
	revenue_millions = EXCLUDED.revenue_millions,
	hq_in_region = EXCLUDED.hq_in_region,
	pages_visited = EXCLUDED.pages_visited,
	truncated = EXCLUDED.truncated,
	degraded = EXCLUDED.degraded,
	crawl_error = EXCLUDED.crawl_error,
	ranked_at = EXCLUDED.ranked_at`, s.table)

	for i, rc := range ranked {
		if _, err := s.pool.Exec(ctx, query, rowArgs(runID, i+1, rc, rankedAt)...); err != nil {
			return fmt.Errorf("insert ranking %q: %w", rc.Company.Name, err)
		}
	}
	return nil
}

func rowArgs(runID string, rank int, rc pipeline.RankedCompany, rankedAt time.Time) []any {
	var (
		prob  *float64
		label *int
	)
	if rc.Classification != nil {
		p, l := rc.Classification.Probability, rc.Classification.Label
		prob, label = &p, &l
	}
	return []any{
		runID,
		rank,
		rc.Company.Name,
		nullable(rc.Website),
		rc.FinalScore,
		prob,
		label,
		rc.Signals.Acquired,
		nullable(rc.Signals.AcquisitionPhrase),
		rc.Signals.RevenueMillions,
		rc.Signals.HQInRegion,
		len(rc.Crawl.VisitedURLs),
		rc.Crawl.Truncated,
		rc.Degraded,
		nullable(rc.Crawl.Error),
		rankedAt,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
