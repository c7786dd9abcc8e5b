package db

import (
	"context"
	"database/sql"
)

// DBTX は *sql.DB / *sql.Tx のどちらでも受けられる共通インターフェース。
// 予約・移送のストア関数はこれを受け取り、呼び出し側のTxに相乗りする。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunInTx はTxを開始して fn を実行する。fn が nil を返せば COMMIT、エラーなら ROLLBACK。
// 在庫の SELECT ... FOR UPDATE とステータス更新は必ず同一Txに入れること。
func RunInTx(ctx context.Context, conn *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Write は書き込みTxのデフォルト。状態遷移系サービスはこれを使う。
func Write(ctx context.Context, conn *sql.DB, fn func(ctx context.Context, tx DBTX) error) error {
	return RunInTx(ctx, conn, &sql.TxOptions{}, fn)
}

// ReadOnly は読み取り専用Tx。
func ReadOnly(ctx context.Context, conn *sql.DB, fn func(ctx context.Context, tx DBTX) error) error {
	return RunInTx(ctx, conn, &sql.TxOptions{ReadOnly: true}, fn)
}
