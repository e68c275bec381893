package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrKeyNotFound = errors.New("key not found")

// KeyPage 是一次前缀扫描的结果。Cursor 非空时可继续向后扫描。
type KeyPage struct {
	Keys     []string
	Cursor   string
	Complete bool
}

// Get 读取键值，不存在时返回 ErrKeyNotFound
func (r *Repository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// GetString 读取键值，不存在时返回空串
func (r *Repository) GetString(ctx context.Context, key string) (string, error) {
	value, err := r.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return "", nil
	}
	return value, err
}

func (r *Repository) Put(ctx context.Context, key, value string) error {
	const stmt = `
INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
`
	if _, err := r.db.ExecContext(ctx, stmt, key, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete 删除键，键不存在不视为错误
func (r *Repository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List 按字典序列出以 prefix 开头的键，从 cursor 之后开始，最多 limit 个
func (r *Repository) List(ctx context.Context, prefix, cursor string, limit int) (KeyPage, error) {
	if limit <= 0 {
		limit = 1000
	}

	const query = `
SELECT key FROM kv
WHERE substr(key, 1, length(?)) = ? AND key > ?
ORDER BY key
LIMIT ?
`
	rows, err := r.db.QueryContext(ctx, query, prefix, prefix, cursor, limit+1)
	if err != nil {
		return KeyPage{}, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	var page KeyPage
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return KeyPage{}, fmt.Errorf("scan key: %w", err)
		}
		page.Keys = append(page.Keys, key)
	}
	if err := rows.Err(); err != nil {
		return KeyPage{}, fmt.Errorf("iterate keys: %w", err)
	}

	if len(page.Keys) > limit {
		page.Keys = page.Keys[:limit]
		page.Cursor = page.Keys[limit-1]
		return page, nil
	}
	page.Complete = true
	return page, nil
}
