package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"NewsSignal/internal/domain/models"
	domrepo "NewsSignal/internal/domain/repository"
	applogger "NewsSignal/pkg/logger"
)

// DecisionsSchema creates the archive table. ReplacingMergeTree on id keeps
// replays idempotent.
const DecisionsSchema = `
CREATE TABLE IF NOT EXISTS %s (
    id          String,
    ts          DateTime64(3, 'UTC'),
    source      LowCardinality(String),
    text        String,
    decision    LowCardinality(String),
    confidence  Float64,
    reasons     Array(String),
    relevance   Float64,
    sentiment   Int32,
    disruption  Float64,
    triggered   UInt8,
    ai_used     UInt8,
    ai_reason   String
) ENGINE = ReplacingMergeTree
ORDER BY (source, ts, id)`

const decisionColumns = "id, ts, source, text, decision, confidence, reasons, relevance, sentiment, disruption, triggered, ai_used, ai_reason"

// CHDecisionArchive implements DecisionArchive backed by ClickHouse.
type CHDecisionArchive struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHDecisionArchive(db *sql.DB, table string) *CHDecisionArchive {
	if table == "" {
		table = "decisions"
	}
	return &CHDecisionArchive{db: db, table: table, l: applogger.NewNop()}
}

var _ domrepo.DecisionArchive = (*CHDecisionArchive)(nil)

// SetLogger injects a structured logger.
func (s *CHDecisionArchive) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHDecisionArchive) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(DecisionsSchema, s.table)); err != nil {
		return fmt.Errorf("init decisions table: %w", err)
	}
	return nil
}

func (s *CHDecisionArchive) Store(ctx context.Context, r *models.DecisionRecord) error {
	return s.StoreBatch(ctx, []*models.DecisionRecord{r})
}

// StoreBatch inserts multi-row VALUES in chunks to reduce round-trips.
func (s *CHDecisionArchive) StoreBatch(ctx context.Context, rs []*models.DecisionRecord) error {
	const chunkSize = 1000
	start := time.Now()
	stored := 0
	for lo := 0; lo < len(rs); lo += chunkSize {
		hi := min(lo+chunkSize, len(rs))
		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*13)
		for _, r := range rs[lo:hi] {
			if r == nil || r.ID == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, rowArgs(r)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, decisionColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_decisions error",
				applogger.String("table", s.table),
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
			return fmt.Errorf("store decisions: %w", err)
		}
		stored += len(values)
	}
	if stored > 0 {
		s.l.Debug("clickhouse store_decisions ok",
			applogger.String("table", s.table),
			applogger.Int("rows", stored),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

func rowArgs(r *models.DecisionRecord) []interface{} {
	var aiUsed uint8
	aiReason := ""
	if r.AI != nil {
		if r.AI.Used {
			aiUsed = 1
		}
		aiReason = r.AI.Reason
	}
	reasons := r.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return []interface{}{
		r.ID,
		r.Timestamp.UTC(),
		r.Source,
		r.Text,
		r.Decision.String(),
		r.Confidence,
		reasons,
		r.Relevance.Score,
		int32(r.Sentiment.RawScore),
		r.Disruption.Score,
		boolToUint8(r.Disruption.Triggered),
		aiUsed,
		aiReason,
	}
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Query returns decisions for source (all sources when empty) newest first.
func (s *CHDecisionArchive) Query(ctx context.Context, source string, from, to time.Time, limit int) ([]*models.DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	where := "ts >= ? AND ts <= ?"
	args := []interface{}{from.UTC(), to.UTC()}
	if source != "" {
		where = "source = ? AND " + where
		args = append([]interface{}{source}, args...)
	}
	args = append(args, limit)
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE %s ORDER BY ts DESC LIMIT ?", decisionColumns, s.table, where)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse query_decisions error",
			applogger.String("table", s.table),
			applogger.String("source", source),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []*models.DecisionRecord
	for rows.Next() {
		var (
			r                 models.DecisionRecord
			decision          string
			sentiment         int32
			triggered, aiUsed uint8
			aiReason          string
		)
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Source, &r.Text, &decision, &r.Confidence,
			&r.Reasons, &r.Relevance.Score, &sentiment, &r.Disruption.Score, &triggered, &aiUsed, &aiReason); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d, err := models.ParseDecision(decision)
		if err != nil {
			return nil, fmt.Errorf("scan decision %s: %w", r.ID, err)
		}
		r.Decision = d
		r.Sentiment.RawScore = int(sentiment)
		r.Disruption.Triggered = triggered == 1
		if aiUsed == 1 || aiReason != "" {
			r.AI = &models.AIOutcome{Used: aiUsed == 1, Reason: aiReason}
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHDecisionArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHDecisionArchive) Close() error {
	return nil // pool owned by pkg/clickhouse.Client
}
