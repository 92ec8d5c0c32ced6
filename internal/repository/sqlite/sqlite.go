// Package sqlite SQLiteによる判定結果の保存
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB はSQLiteの接続とアクセスの排他を持つ
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New はデータベースを開き、テーブルを作成する
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("データベースのディレクトリ作成に失敗: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	return db, nil
}

// migrate はテーブルがなければ作成する
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS judgments (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		record_id INTEGER NOT NULL,
		label TEXT NOT NULL,
		confidence INTEGER NOT NULL,
		judged_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_judgments_run_id ON judgments(run_id);
	CREATE INDEX IF NOT EXISTS idx_judgments_judged_at ON judgments(judged_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close は接続を閉じる
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn はリポジトリ用に接続を返す
func (db *DB) Conn() *sql.DB {
	return db.conn
}
