package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/exptra/internal/model"
)

// PostgresTransactionRepo はPostgreSQLを使用した取引リポジトリ。
// transactionsテーブルは追記専用であり、INSERTとSELECTのみを発行する。
type PostgresTransactionRepo struct {
	db *sql.DB
}

// NewPostgresTransactionRepo はPostgresTransactionRepoを生成する。
func NewPostgresTransactionRepo(db *sql.DB) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{db: db}
}

// Insert は取引を1件追記する。
// recorded_atは列デフォルト（now()）でDB側が採番するため、INSERT文には含めない。
// 挿入後のAFTER INSERTトリガがpg_notifyで変更を通知する。
func (r *PostgresTransactionRepo) Insert(ctx context.Context, tx *model.Transaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, note, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		tx.ID, tx.UserID, string(tx.Type), tx.Amount, tx.Note, tx.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// ListByUserID は指定ユーザーの全取引をrecorded_at降順で返す。
// recorded_atが同時刻の場合はid降順でタイブレークし、順序を決定的にする。
func (r *PostgresTransactionRepo) ListByUserID(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, type, amount, note, occurred_at, recorded_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY recorded_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		var txType string
		if err := rows.Scan(&tx.ID, &tx.UserID, &txType, &tx.Amount, &tx.Note, &tx.OccurredAt, &tx.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Type = model.TransactionType(txType)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return txs, nil
}

// compile-time interface check
var _ TransactionRepository = (*PostgresTransactionRepo)(nil)
