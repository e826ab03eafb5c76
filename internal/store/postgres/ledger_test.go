package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"shelfsync/internal/scrape"
)

func TestLastSyncedReturnsStoredTimestamp(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedger(mock)
	require.NoError(t, err)

	at := time.Unix(1756000000, 0).UTC()
	mock.ExpectQuery("SELECT last_synced FROM sync_records").
		WithArgs("book", "54493401").
		WillReturnRows(pgxmock.NewRows([]string{"last_synced"}).AddRow(at))

	got, found, err := ledger.LastSynced(context.Background(), scrape.KindBook, "54493401")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, at, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastSyncedMissingRowIsNotAnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedger(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT last_synced FROM sync_records").
		WithArgs("author", "18541").
		WillReturnError(pgx.ErrNoRows)

	_, found, err := ledger.LastSynced(context.Background(), scrape.KindAuthor, "18541")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSyncedUpsertsRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedger(mock)
	require.NoError(t, err)

	at := time.Unix(1756000000, 0).UTC()
	mock.ExpectExec("INSERT INTO sync_records").
		WithArgs("book", "54493401", at, "sync_book").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = ledger.MarkSynced(context.Background(), scrape.SyncRecord{
		Kind:       scrape.KindBook,
		ID:         "54493401",
		LastSynced: at,
		Source:     "sync_book",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaleIDsFiltersAndLimits(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedger(mock)
	require.NoError(t, err)

	cutoff := time.Unix(1750000000, 0).UTC()
	mock.ExpectQuery("SELECT external_id FROM sync_records").
		WithArgs("book", cutoff, "sync_list", 2).
		WillReturnRows(pgxmock.NewRows([]string{"external_id"}).AddRow("1").AddRow("2"))

	ids, err := ledger.StaleIDs(context.Background(), scrape.KindBook, cutoff, "sync_list", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaleIDsWithoutSourceOrLimit(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ledger, err := NewLedger(mock)
	require.NoError(t, err)

	cutoff := time.Unix(1750000000, 0).UTC()
	mock.ExpectQuery("SELECT external_id FROM sync_records").
		WithArgs("author", cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"external_id"}))

	ids, err := ledger.StaleIDs(context.Background(), scrape.KindAuthor, cutoff, "", 0)
	require.NoError(t, err)
	require.Empty(t, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
