// Package audit keeps a queryable trail of pipeline invocations in a
// dedicated SQLite database, separate from the cache and quota store.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bulwark-ai/bulwark/pkg/config"
	"github.com/bulwark-ai/bulwark/pkg/models"
)

// Logger writes and queries invocation records.
type Logger struct {
	db   *sql.DB
	cfg  config.AuditConfig
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the audit database, creates the schema, and starts the
// retention sweeper.
func New(cfg config.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.retentionLoop()
	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS invocations (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		source     TEXT NOT NULL,
		degraded   INTEGER NOT NULL DEFAULT 0,
		error      TEXT,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_invocations_kind ON invocations(kind)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_invocations_created ON invocations(created_at)`)
	return err
}

// Record inserts one invocation record.
func (l *Logger) Record(ctx context.Context, rec models.InvocationRecord) error {
	if l == nil || l.db == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO invocations
		(id, kind, source, degraded, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, string(rec.Source), rec.Degraded,
		rec.Error, rec.LatencyMs, rec.CreatedAt,
	)
	return err
}

// Query returns records matching the filter, newest first.
func (l *Logger) Query(ctx context.Context, q models.InvocationQuery) ([]models.InvocationRecord, error) {
	sqlQ := `SELECT id, kind, source, degraded, error, latency_ms, created_at
		FROM invocations WHERE 1=1`
	var args []any

	if q.Kind != "" {
		sqlQ += " AND kind = ?"
		args = append(args, q.Kind)
	}
	if !q.Since.IsZero() {
		sqlQ += " AND created_at >= ?"
		args = append(args, q.Since)
	}
	if q.ErrorsOnly {
		sqlQ += " AND error != ''"
	}

	sqlQ += " ORDER BY created_at DESC LIMIT ?"
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, sqlQ, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var recs []models.InvocationRecord
	for rows.Next() {
		var rec models.InvocationRecord
		var source string
		var errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Kind, &source, &rec.Degraded,
			&errMsg, &rec.LatencyMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		rec.Source = models.ResultSource(source)
		rec.Error = errMsg.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Stats returns per-kind daily invocation counts, newest day first.
func (l *Logger) Stats(ctx context.Context) ([]models.InvocationStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT kind, date(created_at) AS day, count(*) AS cnt
		 FROM invocations GROUP BY kind, day ORDER BY day DESC, kind`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.InvocationStat
	for rows.Next() {
		var s models.InvocationStat
		var day sql.NullString
		if err := rows.Scan(&s.Kind, &day, &s.Count); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes records older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM invocations WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention sweeper and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
