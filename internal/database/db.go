package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open はメッセージハンドラが共有するPostgreSQL接続プールを開く。
// 各ハンドラはこのプールから1メッセージにつき1トランザクションを取得する。
// sql.Openは接続を試行しないため、ワーカー起動時の疎通確認にはdb.Ping()を使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}
