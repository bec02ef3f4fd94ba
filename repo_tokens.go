package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ConsumeRefreshTokenSQL = `UPDATE "refresh_tokens" AS "rft"
SET
	"consumed_at" = ?
WHERE
	"rft"."token_hash" = ?
AND "rft"."consumed_at" IS NULL
AND "rft"."revoked_at" IS NULL
AND "rft"."expires_at" > ?
RETURNING *;`

var RevokeChainSQL = `UPDATE "refresh_tokens" AS "rft"
SET
	"revoked_at" = ?,
	"revoked_reason" = ?
WHERE
	"rft"."chain_id" = ?
AND "rft"."revoked_at" IS NULL;`

// RefreshTokens is the persistence contract for the rotating refresh
// credential. Consume is the single mutation the rotation invariant hangs
// on: it must flip the consumed flag atomically so that of two concurrent
// exchanges exactly one observes the active row.
type RefreshTokens interface {
	repository.Repository[*RefreshToken]

	Create(ctx context.Context, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error)

	GetByHash(ctx context.Context, hash string) (*RefreshToken, error)
	GetByHashTx(ctx context.Context, tx bun.IDB, hash string) (*RefreshToken, error)

	Consume(ctx context.Context, hash string) (*RefreshToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, hash string) (*RefreshToken, error)

	RevokeChain(ctx context.Context, chainID uuid.UUID, reason string) error
	RevokeChainTx(ctx context.Context, tx bun.IDB, chainID uuid.UUID, reason string) error

	RevokeByHash(ctx context.Context, hash, reason string) (bool, error)
}

type refreshTokens struct {
	repository.Repository[*RefreshToken]
	db *bun.DB
}

var _ RefreshTokens = (*refreshTokens)(nil)

func NewRefreshTokensRepository(db *bun.DB) RefreshTokens {
	repo := repository.NewRepository[*RefreshToken](db, repository.ModelHandlers[*RefreshToken]{
		NewRecord: func() *RefreshToken { return &RefreshToken{} },
		GetID: func(t *RefreshToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *RefreshToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &refreshTokens{
		Repository: repo,
		db:         db,
	}
}

func (r *refreshTokens) Create(ctx context.Context, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *refreshTokens) CreateTx(ctx context.Context, tx bun.IDB, record *RefreshToken, criteria ...repository.InsertCriteria) (*RefreshToken, error) {
	prepareRefreshTokenDefaults(record)
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (r *refreshTokens) GetByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	return r.GetByHashTx(ctx, r.db, hash)
}

func (r *refreshTokens) GetByHashTx(ctx context.Context, tx bun.IDB, hash string) (*RefreshToken, error) {
	record := &RefreshToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", hash).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"token_hash": hash})
		}
		return nil, err
	}

	return record, nil
}

func (r *refreshTokens) Consume(ctx context.Context, hash string) (*RefreshToken, error) {
	return r.ConsumeTx(ctx, r.db, hash)
}

// ConsumeTx atomically marks the token consumed. The guarded UPDATE is the
// compare-and-swap: a token that lost the race matches zero rows and is then
// classified by re-reading its state.
func (r *refreshTokens) ConsumeTx(ctx context.Context, tx bun.IDB, hash string) (*RefreshToken, error) {
	now := time.Now()

	res, err := r.Repository.RawTx(ctx, tx, ConsumeRefreshTokenSQL, now, hash, now)
	if err != nil {
		return nil, err
	}

	if len(res) > 0 {
		return res[0], nil
	}

	return nil, r.classifyInactive(ctx, tx, hash, now)
}

// classifyInactive explains why the consume CAS matched nothing.
func (r *refreshTokens) classifyInactive(ctx context.Context, tx bun.IDB, hash string, now time.Time) error {
	record, err := r.GetByHashTx(ctx, tx, hash)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrTokenMalformed
		}
		return err
	}

	switch {
	case record.ConsumedAt != nil:
		return ErrTokenReuse
	case record.RevokedAt != nil:
		return ErrTokenRevoked
	case !now.Before(record.ExpiresAt):
		return ErrTokenExpired
	default:
		// lost the race between UPDATE and re-read
		return ErrTokenReuse
	}
}

func (r *refreshTokens) RevokeChain(ctx context.Context, chainID uuid.UUID, reason string) error {
	return r.RevokeChainTx(ctx, r.db, chainID, reason)
}

func (r *refreshTokens) RevokeChainTx(ctx context.Context, tx bun.IDB, chainID uuid.UUID, reason string) error {
	_, err := tx.NewRaw(RevokeChainSQL, time.Now(), reason, chainID).Exec(ctx)
	return err
}

// RevokeByHash revokes the whole chain the presented token belongs to.
// Unknown tokens are not an error so logout stays idempotent; the bool
// reports whether anything was actually revoked.
func (r *refreshTokens) RevokeByHash(ctx context.Context, hash, reason string) (bool, error) {
	record, err := r.GetByHash(ctx, hash)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return false, nil
		}
		return false, err
	}

	if err := r.RevokeChain(ctx, record.ChainID, reason); err != nil {
		return false, err
	}

	return record.RevokedAt == nil, nil
}

func prepareRefreshTokenDefaults(record *RefreshToken) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.ChainID == uuid.Nil {
		record.ChainID = uuid.New()
	}
}
