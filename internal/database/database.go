// Package database はSQLiteデータベース接続の初期化を提供する。
//
// 接続のオープンとembedされたマイグレーションの適用をまとめて行う。
// CodeBridgeはモノリスとして単一のデータベースファイルに
// ユーザー・プロジェクト・コンテンツの全テーブルを保持する。
package database

import (
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sreejagatab/codebridge/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open はSQLiteデータベースを開き、マイグレーションを適用して返す。
// pathには":memory:"（テスト用）またはファイルパスを指定する。
func Open(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	// インメモリDBはコネクションごとに別のデータベースになるため、
	// プールを1接続に固定する
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := migration.Apply(db, migrationsFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	return db, nil
}
