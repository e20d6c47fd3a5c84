package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempora-hq/scheduler-api/internal/models"
)

func TestRecordRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("INSERT INTO records").
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.Record{
		RecordType: "appointment",
		Fields:     models.FieldMap{"title": "Therapy"},
	}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "record_type", "fields", "created_at", "updated_at"}).
		AddRow("rec-1", "appointment", []byte(`{"title":"Therapy"}`), now, now)
	mock.ExpectQuery("SELECT id, record_type, fields").
		WithArgs("appointment", "rec-1").
		WillReturnRows(rows)

	record, err := repo.Get(context.Background(), "appointment", "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", record.ID)
	assert.Equal(t, "Therapy", record.Fields["title"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositorySetFieldsUnknownRecord(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec("UPDATE records SET fields = fields").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetFields(context.Background(), "appointment", "missing", models.FieldMap{"title": "X"})
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryDeleteRunsPreDeleteHook(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	var hooked []string
	repo.SetPreDeleteHook(func(ctx context.Context, recordType, recordID string) error {
		hooked = append(hooked, recordType+"/"+recordID)
		return nil
	})

	mock.ExpectExec("DELETE FROM records WHERE record_type =").
		WithArgs("appointment", "rec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "appointment", "rec-1"))
	assert.Equal(t, []string{"appointment/rec-1"}, hooked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryDeleteBlockedByHookError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	hookErr := errors.New("tracking unavailable")
	repo.SetPreDeleteHook(func(ctx context.Context, recordType, recordID string) error {
		return hookErr
	})

	err := repo.Delete(context.Background(), "appointment", "rec-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, hookErr))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryFindOverlapping(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	start := time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "record_type", "fields", "created_at", "updated_at"}).
		AddRow("existing-1", "appointment", []byte(`{"title":"Maintenance window"}`), now, now)

	mock.ExpectQuery("SELECT id, record_type, fields").
		WithArgs("appointment", "resource_id", "5", "time", end, start).
		WillReturnRows(rows)

	hits, err := repo.FindOverlapping(context.Background(), "appointment", "resource_id", "5", "time", models.TimeRange{Start: start, End: end})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "existing-1", hits[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
