package channels

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/warden/internal/channels/migrations"
	_ "modernc.org/sqlite"
)

// LastRefresh describes the playlist currently stored.
type LastRefresh struct {
	Source      string    `json:"source"`
	EPGURL      string    `json:"epgUrl,omitempty"`
	Channels    int       `json:"channels"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// DB persists the live-channel set in SQLite.
type DB struct {
	sqlDB   *sql.DB
	queries atomic.Int64
}

// OpenDB opens path, creating parent directories, and applies migrations.
func OpenDB(ctx context.Context, path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("channel database path is required")
	}
	clean := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := clean + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &DB{sqlDB: sqlDB}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}

// Queries is the running count of statements sent to SQLite.
func (d *DB) Queries() int64 { return d.queries.Load() }

// Replace swaps the stored channel set for chans in one transaction.
func (d *DB) Replace(ctx context.Context, source, epgURL string, chans []Channel, at time.Time) error {
	tx, err := d.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	d.queries.Add(1)
	if _, err := tx.ExecContext(ctx, `DELETE FROM channels`); err != nil {
		return fmt.Errorf("clear channels: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO channels
		(position, id, name, tvg_name, logo, group_title, stream_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chans {
		d.queries.Add(1)
		if _, err := stmt.ExecContext(ctx, c.Position, c.ID, c.Name, c.TVGName, c.Logo, c.Group, c.StreamURL); err != nil {
			return fmt.Errorf("insert channel %d (%s): %w", c.Position, c.Name, err)
		}
	}

	d.queries.Add(1)
	if _, err := tx.ExecContext(ctx, `INSERT INTO channel_refreshes (id, source, epg_url, channel_count, refreshed_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			epg_url = excluded.epg_url,
			channel_count = excluded.channel_count,
			refreshed_at = excluded.refreshed_at`,
		source, epgURL, len(chans), at.UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record refresh: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// List returns stored channels in playlist order.
func (d *DB) List(ctx context.Context) ([]Channel, error) {
	d.queries.Add(1)
	rows, err := d.sqlDB.QueryContext(ctx, `SELECT position, id, name, tvg_name, logo, group_title, stream_url
		FROM channels ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	out := []Channel{}
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.Position, &c.ID, &c.Name, &c.TVGName, &c.Logo, &c.Group, &c.StreamURL); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LastRefresh reports the stored refresh metadata; ok is false before the
// first successful refresh.
func (d *DB) LastRefresh(ctx context.Context) (LastRefresh, bool, error) {
	d.queries.Add(1)
	var (
		lr LastRefresh
		ms int64
	)
	err := d.sqlDB.QueryRowContext(ctx,
		`SELECT source, epg_url, channel_count, refreshed_at FROM channel_refreshes WHERE id = 1`,
	).Scan(&lr.Source, &lr.EPGURL, &lr.Channels, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return LastRefresh{}, false, nil
	}
	if err != nil {
		return LastRefresh{}, false, fmt.Errorf("read last refresh: %w", err)
	}
	lr.RefreshedAt = time.UnixMilli(ms).UTC()
	return lr, true, nil
}
