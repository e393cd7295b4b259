package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/warp/course-ledger/ledger"
)

// =============================================================================
// BALANCES (ledger.LedgerStore interface)
// =============================================================================

func (c *conn) Balance(ctx context.Context, userID ledger.UserID) (ledger.Points, error) {
	query, args, err := c.sb.Select("points").
		From("users").
		Where(sq.Eq{"id": int64(userID)}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var points int64
	err = c.q.QueryRowContext(ctx, query, args...).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load balance: %w", err)
	}
	return ledger.Points(points), nil
}

// Debit is a single conditional UPDATE. When no row matches, a follow-up
// read tells a missing user apart from a short balance.
func (c *conn) Debit(ctx context.Context, userID ledger.UserID, amount ledger.Points) (ledger.Points, error) {
	query, args, err := c.sb.Update("users").
		Set("points", sq.Expr("points - ?", int64(amount))).
		Where(sq.Eq{"id": int64(userID)}).
		Where(sq.GtOrEq{"points": int64(amount)}).
		Suffix("RETURNING points").
		ToSql()
	if err != nil {
		return 0, err
	}

	var points int64
	err = c.q.QueryRowContext(ctx, query, args...).Scan(&points)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		available, err := c.Balance(ctx, userID)
		if err != nil {
			return 0, err
		}
		return available, ledger.ErrInsufficientFunds
	case isCheckViolation(err):
		// PostgreSQL aborts the surrounding transaction on a violation, so
		// the re-read may fail there and report zero. The rejection stands.
		available, _ := c.Balance(ctx, userID)
		return available, ledger.ErrInsufficientFunds
	case err != nil:
		return 0, fmt.Errorf("failed to debit balance: %w", err)
	}
	return ledger.Points(points), nil
}

func (c *conn) Credit(ctx context.Context, userID ledger.UserID, amount ledger.Points) (ledger.Points, error) {
	query, args, err := c.sb.Update("users").
		Set("points", sq.Expr("points + ?", int64(amount))).
		Where(sq.Eq{"id": int64(userID)}).
		Suffix("RETURNING points").
		ToSql()
	if err != nil {
		return 0, err
	}

	var points int64
	err = c.q.QueryRowContext(ctx, query, args...).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to credit balance: %w", err)
	}
	return ledger.Points(points), nil
}

// =============================================================================
// TRANSACTION LOG
// =============================================================================

// AppendTransaction adds an entry to the log. There is no update or delete.
func (c *conn) AppendTransaction(ctx context.Context, tx ledger.PointTransaction) error {
	var ref sql.NullInt64
	if tx.ReferenceID != nil {
		ref = sql.NullInt64{Int64: int64(*tx.ReferenceID), Valid: true}
	}

	query, args, err := c.sb.Insert("point_transactions").
		Columns("id", "user_id", "amount", "kind", "description", "reference_id", "created_at").
		Values(string(tx.ID), int64(tx.UserID), int64(tx.Amount), string(tx.Kind), tx.Description, ref, formatTime(tx.CreatedAt)).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := c.q.ExecContext(ctx, query, args...); err != nil {
		if isForeignKeyViolation(err) {
			return ledger.ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("transaction %s: %w", tx.ID, ledger.ErrConflict)
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (c *conn) Transactions(ctx context.Context, userID ledger.UserID, limit, offset int) ([]ledger.PointTransaction, error) {
	query, args, err := c.sb.Select("id", "user_id", "amount", "kind", "description", "reference_id", "created_at").
		From("point_transactions").
		Where(sq.Eq{"user_id": int64(userID)}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.PointTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (c *conn) CountTransactions(ctx context.Context, userID ledger.UserID) (int, error) {
	query, args, err := c.sb.Select("COUNT(*)").
		From("point_transactions").
		Where(sq.Eq{"user_id": int64(userID)}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var n int
	if err := c.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

func scanTransaction(row scanner) (ledger.PointTransaction, error) {
	var (
		tx        ledger.PointTransaction
		id        string
		userID    int64
		amount    int64
		kind      string
		ref       sql.NullInt64
		createdAt string
	)
	if err := row.Scan(&id, &userID, &amount, &kind, &tx.Description, &ref, &createdAt); err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.ID = ledger.TransactionID(id)
	tx.UserID = ledger.UserID(userID)
	tx.Amount = ledger.Points(amount)
	tx.Kind = ledger.Kind(kind)
	tx.CreatedAt = parseTime(createdAt)
	if ref.Valid {
		courseID := ledger.CourseID(ref.Int64)
		tx.ReferenceID = &courseID
	}
	return tx, nil
}
