package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"barn-economy-backend/internal/features/claim/models"
	"barn-economy-backend/internal/features/claim/repository"
	"barn-economy-backend/internal/platform/postgres"
)

// Execer is satisfied by *sql.DB and *sql.Tx, so other repositories can
// open a claim inside their own transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.Repository {
	return &postgresRepository{db: db}
}

const claimColumns = `
	id, user_id, claim_type, delivery, amount::text, token_address, status, tx_hash, block_number,
	error_message, game_score_id, signature_deadline, created_at, updated_at, confirmed_at
`

// InsertClaim writes a new pending claim.
func InsertClaim(ctx context.Context, q Execer, c *models.ClaimTransaction) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO claim_transactions
			(id, user_id, claim_type, delivery, amount, token_address, status, game_score_id, signature_deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $10)
	`, c.ID, c.UserID, string(c.Kind), string(c.Delivery), c.Amount.String(), c.TokenAddress,
		string(c.Status), c.GameScoreID, c.SignatureDeadline, c.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "claim_transactions_game_score_key") {
			return repository.ErrAlreadyClaimed
		}
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

func (r *postgresRepository) Create(ctx context.Context, c *models.ClaimTransaction) error {
	return InsertClaim(ctx, r.db, c)
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*models.ClaimTransaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claim_transactions WHERE id = $1`, id)
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrClaimNotFound
		}
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return c, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.ClaimTransaction, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM claim_transactions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count claims: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+claimColumns+`
		FROM claim_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	claims, err := scanClaims(rows)
	if err != nil {
		return nil, 0, err
	}
	return claims, total, nil
}

func (r *postgresRepository) LastConfirmedAt(ctx context.Context, userID string, kind models.Kind) (*time.Time, error) {
	var at sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(confirmed_at)
		FROM claim_transactions
		WHERE user_id = $1 AND claim_type = $2 AND status = 'confirmed'
	`, userID, string(kind)).Scan(&at)
	if err != nil {
		return nil, fmt.Errorf("failed to get last confirmed claim: %w", err)
	}
	if !at.Valid {
		return nil, nil
	}
	return &at.Time, nil
}

func (r *postgresRepository) AcquireDispatch(ctx context.Context, id string, lease time.Duration) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE claim_transactions
		SET dispatch_locked_until = NOW() + make_interval(secs => $2),
			dispatch_attempts = dispatch_attempts + 1,
			updated_at = NOW()
		WHERE id = $1
			AND status = 'pending'
			AND delivery = 'transfer'
			AND tx_hash IS NULL
			AND (dispatch_locked_until IS NULL OR dispatch_locked_until < NOW())
	`, id, lease.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to acquire dispatch lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *postgresRepository) RecordBroadcast(ctx context.Context, id, txHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE claim_transactions
		SET tx_hash = $2,
			error_message = 'transfer broadcast, awaiting confirmation',
			updated_at = NOW()
		WHERE id = $1
			AND status = 'pending'
			AND tx_hash IS NULL
	`, id, txHash)
	if err != nil {
		return fmt.Errorf("failed to record broadcast: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n != 1 {
		return repository.ErrInvalidTransition
	}
	return nil
}

func (r *postgresRepository) MarkPending(ctx context.Context, id, reason string, txHash *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE claim_transactions
		SET error_message = $2,
			tx_hash = COALESCE($3, tx_hash),
			dispatch_locked_until = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, reason, txHash)
	if err != nil {
		return fmt.Errorf("failed to mark claim pending: %w", err)
	}
	return nil
}

func (r *postgresRepository) Settle(ctx context.Context, id string, s models.Settlement) (*models.ClaimTransaction, error) {
	var (
		txHash      *string
		block       *int64
		errMsg      *string
		isConfirmed bool
	)
	if s.TxHash != "" {
		txHash = &s.TxHash
	}
	if s.BlockNumber > 0 {
		b := int64(s.BlockNumber)
		block = &b
	}
	if s.Error != "" {
		errMsg = &s.Error
	}
	isConfirmed = s.Status == models.StatusConfirmed

	row := r.db.QueryRowContext(ctx, `
		UPDATE claim_transactions
		SET status = $2,
			tx_hash = COALESCE($3, tx_hash),
			block_number = COALESCE($4, block_number),
			error_message = CASE WHEN $6 THEN NULL ELSE COALESCE($5, error_message) END,
			confirmed_at = CASE WHEN $6 THEN NOW() ELSE NULL END,
			dispatch_locked_until = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+claimColumns, id, string(s.Status), txHash, block, errMsg, isConfirmed)

	c, err := scanClaim(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to settle claim: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM claim_transactions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check claim: %w", err)
	}
	if !exists {
		return nil, repository.ErrClaimNotFound
	}
	return nil, repository.ErrInvalidTransition
}

func (r *postgresRepository) ListPendingWithHash(ctx context.Context, limit int) ([]*models.ClaimTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+claimColumns+`
		FROM claim_transactions
		WHERE status = 'pending' AND delivery = 'transfer' AND tx_hash IS NOT NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending claims: %w", err)
	}
	defer rows.Close()
	return scanClaims(rows)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanClaim(s scanner) (*models.ClaimTransaction, error) {
	var (
		c           models.ClaimTransaction
		kind        string
		delivery    string
		amount      string
		status      string
		txHash      sql.NullString
		block       sql.NullInt64
		errMsg      sql.NullString
		gameScoreID sql.NullString
		deadline    sql.NullTime
		confirmedAt sql.NullTime
	)
	err := s.Scan(&c.ID, &c.UserID, &kind, &delivery, &amount, &c.TokenAddress, &status, &txHash, &block,
		&errMsg, &gameScoreID, &deadline, &c.CreatedAt, &c.UpdatedAt, &confirmedAt)
	if err != nil {
		return nil, err
	}

	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q for claim %s", amount, c.ID)
	}
	c.Amount = v
	c.Kind = models.Kind(kind)
	c.Delivery = models.Delivery(delivery)
	c.Status = models.Status(status)
	if txHash.Valid {
		c.TxHash = &txHash.String
	}
	if block.Valid {
		b := uint64(block.Int64)
		c.BlockNumber = &b
	}
	if errMsg.Valid {
		c.ErrorMessage = &errMsg.String
	}
	if gameScoreID.Valid {
		c.GameScoreID = &gameScoreID.String
	}
	if deadline.Valid {
		c.SignatureDeadline = &deadline.Time
	}
	if confirmedAt.Valid {
		c.ConfirmedAt = &confirmedAt.Time
	}
	return &c, nil
}

func scanClaims(rows *sql.Rows) ([]*models.ClaimTransaction, error) {
	var claims []*models.ClaimTransaction
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claims: %w", err)
	}
	return claims, nil
}
