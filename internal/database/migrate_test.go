package database

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetsSQL = "CREATE TABLE widgets (id INT);"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func expectPreamble(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`SELECT pg_advisory_lock`).
		WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func expectUnlock(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec(`SELECT pg_advisory_unlock`).
		WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func TestApplyMigrations(t *testing.T) {
	source := fstest.MapFS{
		"0001_widgets.up.sql":   {Data: []byte(widgetsSQL)},
		"0001_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
		"README.md":             {Data: []byte("ignored")},
	}

	tests := []struct {
		name        string
		setupMock   func(mock pgxmock.PgxPoolIface)
		wantApplied int
		wantErr     string
	}{
		{
			name: "applies pending migration",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				expectPreamble(mock)
				mock.ExpectQuery(`SELECT checksum`).
					WithArgs("0001_widgets").
					WillReturnRows(pgxmock.NewRows([]string{"checksum"}))
				mock.ExpectBegin()
				mock.ExpectExec(`CREATE TABLE widgets`).
					WillReturnResult(pgxmock.NewResult("CREATE", 0))
				mock.ExpectExec(`INSERT INTO schema_migrations`).
					WithArgs("0001_widgets", checksumHex([]byte(widgetsSQL))).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
				mock.ExpectCommit()
				expectUnlock(mock)
			},
			wantApplied: 1,
		},
		{
			name: "skips applied migration",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				expectPreamble(mock)
				mock.ExpectQuery(`SELECT checksum`).
					WithArgs("0001_widgets").
					WillReturnRows(pgxmock.NewRows([]string{"checksum"}).AddRow(checksumHex([]byte(widgetsSQL))))
				expectUnlock(mock)
			},
		},
		{
			name: "rejects edited migration",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				expectPreamble(mock)
				mock.ExpectQuery(`SELECT checksum`).
					WithArgs("0001_widgets").
					WillReturnRows(pgxmock.NewRows([]string{"checksum"}).AddRow("stale"))
				expectUnlock(mock)
			},
			wantErr: "changed after being applied",
		},
		{
			name: "rolls back failed migration",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				expectPreamble(mock)
				mock.ExpectQuery(`SELECT checksum`).
					WithArgs("0001_widgets").
					WillReturnRows(pgxmock.NewRows([]string{"checksum"}))
				mock.ExpectBegin()
				mock.ExpectExec(`CREATE TABLE widgets`).
					WillReturnError(errors.New("syntax error"))
				mock.ExpectRollback()
				expectUnlock(mock)
			},
			wantErr: "apply migration 0001_widgets",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			tt.setupMock(mock)

			applied, err := ApplyMigrations(t.Context(), mock, source, quietLogger())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantApplied, applied)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestApplyMigrations_RequiresSource(t *testing.T) {
	_, err := ApplyMigrations(t.Context(), nil, nil, nil)
	require.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := listMigrationFiles(Migrations())
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "0001_accounts.up.sql", files[0])

	raw, err := fsReadAll(files[0])
	require.NoError(t, err)
	assert.Contains(t, raw, "CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key")
}

func fsReadAll(name string) (string, error) {
	f, err := Migrations().Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	return string(raw), err
}
