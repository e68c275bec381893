package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

const pragmaWAL = "PRAGMA journal_mode=WAL;"

// Repository 是基于 SQLite 的键值存储，保存链接文本、订阅配置和订阅列表
type Repository struct {
	db *sql.DB

	// 保护读-改-写操作（订阅配置、SUBS_LIST）
	mu sync.Mutex
}

// NewRepository initializes a new SQLite-backed repository stored at the given path or DSN.
func NewRepository(path string) (*Repository, error) {
	if path == "" {
		return nil, errors.New("repository path is empty")
	}

	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(pragmaWAL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return repo, nil
}

// Close releases the underlying database resources.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Checkpoint forces a WAL checkpoint to ensure all data is written to the main database file.
func (r *Repository) Checkpoint() error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (r *Repository) migrate() error {
	const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	if _, err := r.db.Exec(kvSchema); err != nil {
		return fmt.Errorf("migrate kv: %w", err)
	}
	return nil
}
