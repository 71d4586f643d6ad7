package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, user_id, family_id, token_hash, guest, user_agent, ip_address, device_hash, created_at, last_used_at, expires_at, revoked_at, revoked_reason`

// PostgresStore is the production Store. Rotation runs as a single
// transaction holding a row lock, so concurrent rotations of one session
// serialize and at most one wins.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool. The pool's lifecycle
// stays with the caller.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULL, NULL)`,
		sess.ID, sess.UserID, sess.FamilyID, hex.EncodeToString(sess.TokenHash[:]), sess.Guest,
		sess.UserAgent, sess.IPAddress, sess.DeviceHash,
		sess.CreatedAt, sess.LastUsedAt, sess.ExpiresAt,
	)
	if err != nil {
		return infraErr(err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, infraErr(err)
	}
	return sess, nil
}

func (s *PostgresStore) Rotate(ctx context.Context, p RotateParams) (*Session, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, infraErr(err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, p.SessionID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, infraErr(err)
	}

	now := time.Now()
	switch {
	case sess.RevokedAt != nil:
		return nil, ErrRevoked
	case !now.Before(sess.ExpiresAt):
		return nil, ErrExpired
	}

	if sess.TokenHash != p.ProvidedHash {
		// Active row, stale token: the superseded token was replayed.
		// Close the whole family before anything is reported back.
		ids, err := revokeFamilyTx(ctx, tx, sess.FamilyID, ReasonReuseDetected, now)
		if err != nil {
			return nil, infraErr(err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, infraErr(err)
		}
		return nil, &ReuseError{FamilyID: sess.FamilyID, RevokedSessionIDs: ids}
	}

	expires := now.Add(p.ExtendTTL)
	_, err = tx.Exec(ctx, `
		UPDATE sessions SET token_hash = $1, last_used_at = $2, expires_at = $3 WHERE id = $4`,
		hex.EncodeToString(p.NextHash[:]), now, expires, p.SessionID,
	)
	if err != nil {
		return nil, infraErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, infraErr(err)
	}

	sess.TokenHash = p.NextHash
	sess.LastUsedAt = now
	sess.ExpiresAt = expires
	return sess, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, sessionID string, reason RevokeReason) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = $1, revoked_reason = $2
		WHERE id = $3 AND revoked_at IS NULL`,
		time.Now(), string(reason), sessionID,
	)
	if err != nil {
		return false, infraErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) RevokeFamily(ctx context.Context, familyID string, reason RevokeReason) ([]string, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, infraErr(err)
	}
	defer tx.Rollback(ctx)

	ids, err := revokeFamilyTx(ctx, tx, familyID, reason, time.Now())
	if err != nil {
		return nil, infraErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, infraErr(err)
	}
	return ids, nil
}

func revokeFamilyTx(ctx context.Context, tx pgx.Tx, familyID string, reason RevokeReason, now time.Time) ([]string, error) {
	rows, err := tx.Query(ctx, `
		UPDATE sessions SET revoked_at = $1, revoked_reason = $2
		WHERE family_id = $3 AND revoked_at IS NULL
		RETURNING id`,
		now, string(reason), familyID,
	)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID, exceptSessionID string, reason RevokeReason) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE sessions SET revoked_at = $1, revoked_reason = $2
		WHERE user_id = $3 AND revoked_at IS NULL AND id <> $4
		RETURNING id`,
		time.Now(), string(reason), userID, exceptSessionID,
	)
	if err != nil {
		return nil, infraErr(err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, infraErr(err)
	}
	return ids, nil
}

func (s *PostgresStore) ListActiveForUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY last_used_at DESC`,
		userID, time.Now(),
	)
	if err != nil {
		return nil, infraErr(err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, infraErr(err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, infraErr(err)
	}
	return out, nil
}

func (s *PostgresStore) RevokeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = $1, revoked_reason = $2
		WHERE revoked_at IS NULL AND expires_at <= $1`,
		now, string(ReasonExpiredCleanup),
	)
	if err != nil {
		return 0, infraErr(err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, infraErr(err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return infraErr(err)
	}
	return nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess      Session
		hashHex   string
		revokedAt *time.Time
		reason    *string
	)
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.FamilyID, &hashHex, &sess.Guest,
		&sess.UserAgent, &sess.IPAddress, &sess.DeviceHash,
		&sess.CreatedAt, &sess.LastUsedAt, &sess.ExpiresAt,
		&revokedAt, &reason,
	)
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(hashHex)
	if err != nil || len(raw) != len(sess.TokenHash) {
		return nil, errors.New("malformed token hash column")
	}
	copy(sess.TokenHash[:], raw)

	sess.RevokedAt = revokedAt
	if reason != nil {
		sess.RevokedReason = RevokeReason(*reason)
	}
	return &sess, nil
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func infraErr(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
