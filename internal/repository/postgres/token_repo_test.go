package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/authgate/internal/errs"
	"github.com/and161185/authgate/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var tokenColumns = []string{"token", "user_id", "user_agent", "expires_at"}

func TestTokenRepo_FindBySlot(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	uid := uuid.Must(uuid.NewV4())
	exp := time.Now().Add(time.Hour)

	mock.ExpectQuery(`SELECT token, user_id, user_agent, expires_at FROM refresh_tokens WHERE user_id = \$1 AND user_agent = \$2`).
		WithArgs(uid, "agent-A").
		WillReturnRows(pgxmock.NewRows(tokenColumns).AddRow("t1", uid, "agent-A", exp))
	got, err := r.FindBySlot(ctx, uid, "agent-A")
	require.NoError(t, err)
	require.Equal(t, "t1", got.Token)

	mock.ExpectQuery(`FROM refresh_tokens WHERE user_id = \$1 AND user_agent = \$2`).
		WithArgs(uid, "agent-B").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.FindBySlot(ctx, uid, "agent-B")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTokenRepo_Upsert_ConflictsOnSlot(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	tok := model.RefreshToken{Token: "t2", UserID: uuid.Must(uuid.NewV4()), UserAgent: "agent-A", ExpiresAt: time.Now().Add(time.Hour)}

	mock.ExpectExec(`INSERT INTO refresh_tokens \(token, user_id, user_agent, expires_at\) VALUES \(\$1, \$2, \$3, \$4\) ON CONFLICT \(user_id, user_agent\) DO UPDATE SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at`).
		WithArgs(tok.Token, tok.UserID, tok.UserAgent, tok.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Upsert(ctx, tok))

	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WithArgs(tok.Token, tok.UserID, tok.UserAgent, tok.ExpiresAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Upsert(ctx, tok), errs.ErrAlreadyExists)
}

func TestTokenRepo_Delete_ReturnsRemovedRow(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)
	ctx := context.Background()
	uid := uuid.Must(uuid.NewV4())
	exp := time.Now().Add(-time.Minute)

	mock.ExpectQuery(`DELETE FROM refresh_tokens WHERE token = \$1 RETURNING token, user_id, user_agent, expires_at`).
		WithArgs("t3").
		WillReturnRows(pgxmock.NewRows(tokenColumns).AddRow("t3", uid, "agent-A", exp))
	got, err := r.Delete(ctx, "t3")
	require.NoError(t, err)
	require.Equal(t, uid, got.UserID)
	require.True(t, got.Expired(time.Now()))

	mock.ExpectQuery(`DELETE FROM refresh_tokens WHERE token = \$1`).
		WithArgs("t3").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Delete(ctx, "t3")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
