package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/pgtree/internal/database"
	"github.com/koustreak/pgtree/internal/errs"
)

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, mapError(nil, "anything"))
}

func TestMapError_SQLState(t *testing.T) {
	tests := []struct {
		code string
		want errs.ErrKind
	}{
		{"08006", errs.ErrKindConnectionFailed},
		{"08001", errs.ErrKindConnectionFailed},
		{"57P01", errs.ErrKindConnectionFailed},
		{"42501", errs.ErrKindPermissionDenied},
		{"57014", errs.ErrKindTimeout},
		{"2201B", errs.ErrKindInvalidInput},
		{"42601", errs.ErrKindQueryFailed},
		{"42P01", errs.ErrKindQueryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.code, Message: "server said no"}
			err := mapError(fmt.Errorf("wrapped: %w", pgErr), `relations of schema "app"`)

			require.NotNil(t, err)
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, `relations of schema "app"`, err.Message)
			assert.ErrorIs(t, err, pgErr)
		})
	}
}

func TestMapError_Context(t *testing.T) {
	assert.Equal(t, errs.ErrKindTimeout, mapError(context.DeadlineExceeded, "q").Kind)
	assert.Equal(t, errs.ErrKindTimeout, mapError(context.Canceled, "q").Kind)
}

func TestMapError_KeepsExistingKind(t *testing.T) {
	inner := errs.New(errs.ErrKindPermissionDenied, "columns")
	assert.Same(t, inner, mapError(fmt.Errorf("scan: %w", inner), "other purpose"))
}

func TestMapError_Network(t *testing.T) {
	err := mapError(errors.New("connection reset by peer"), "fetch")
	assert.Equal(t, errs.ErrKindConnectionFailed, err.Kind)
}

func TestConnectError(t *testing.T) {
	err := connectError(&pgconn.PgError{Code: "28P01"}, "connect")
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestConnConfig(t *testing.T) {
	cfg := database.DefaultConfig("postgres://u:p@db.internal:6543/app?sslmode=disable")
	cfg.ApplicationName = "pgtree-test"
	cfg.ConnectTimeout = 3 * time.Second

	cc, err := connConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cc.Host)
	assert.Equal(t, uint16(6543), cc.Port)
	assert.Equal(t, "app", cc.Database)
	assert.Equal(t, "pgtree-test", cc.RuntimeParams["application_name"])
	assert.Equal(t, 3*time.Second, cc.ConnectTimeout)
}

func TestConnConfig_Invalid(t *testing.T) {
	_, err := connConfig(database.DefaultConfig("postgres://u@host:notaport/db"))
	assert.Error(t, err)
}

func TestOpen_InvalidDSN(t *testing.T) {
	_, err := Open(context.Background(), database.DefaultConfig("postgres://u@host:notaport/db"))
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
}
