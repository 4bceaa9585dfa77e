package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/viewplane"
)

func TestPostgresOverrideStorage_ReadRecord(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	storage := NewPostgresOverrideStorage(mock, "layout_overrides")

	rows := pgxmock.NewRows([]string{"payload"}).AddRow([]byte(`{"id":"pump"}`))
	mock.ExpectQuery(`SELECT payload FROM layout_overrides WHERE record_key = \$1`).
		WithArgs("pump.cdeFOR").
		WillReturnRows(rows)

	raw, err := storage.ReadRecord(ctx, "pump.cdeFOR")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"pump"}`, string(raw))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOverrideStorage_ReadRecordMissing(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	storage := NewPostgresOverrideStorage(mock, "layout_overrides")

	mock.ExpectQuery(`SELECT payload FROM layout_overrides WHERE record_key = \$1`).
		WithArgs("missing.cdeFOR").
		WillReturnError(pgx.ErrNoRows)

	raw, err := storage.ReadRecord(ctx, "missing.cdeFOR")
	assert.NoError(t, err, "a missing row must read as absent, not as a failure")
	assert.Nil(t, raw)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOverrideStorage_ReadRecordFailure(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	storage := NewPostgresOverrideStorage(mock, "layout_overrides")

	mock.ExpectQuery(`SELECT payload FROM layout_overrides WHERE record_key = \$1`).
		WithArgs("pump.cdeFOR").
		WillReturnError(errors.New("connection reset"))

	_, err = storage.ReadRecord(ctx, "pump.cdeFOR")
	require.Error(t, err)
	assert.True(t, viewplane.IsStorageError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOverrideStorage_WriteRecord(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	storage := NewPostgresOverrideStorage(mock, "layout_overrides")
	payload := []byte(`{"tileWidth":6}`)

	mock.ExpectExec(`INSERT INTO layout_overrides`).
		WithArgs("alice/form.cdeFOR", payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, storage.WriteRecord(ctx, "alice/form.cdeFOR", payload))

	mock.ExpectExec(`INSERT INTO layout_overrides`).
		WithArgs("alice/form.cdeFOR", payload).
		WillReturnError(errors.New("permission denied"))

	err = storage.WriteRecord(ctx, "alice/form.cdeFOR", payload)
	require.Error(t, err)
	assert.True(t, viewplane.IsStorageError(err))

	require.NoError(t, mock.ExpectationsWereMet())
}
