package sqlite

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winwatch/internal/event"
	"winwatch/internal/logging"
)

func newMockQueue(t *testing.T) (*SQLiteQueue, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newWithDB(db, logging.Discard()), mock
}

func TestPushInsertFailure(t *testing.T) {
	q, mock := newMockQueue(t)
	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pending_heartbeats")).
		WithArgs("aw-watcher-window_testhost", "aw-watcher-window", "testhost", event.EventTypeCurrentWindow,
			ts, int64(0), `["appname:A"]`, int64(2*time.Second)).
		WillReturnError(errors.New("disk I/O error"))

	_, err := q.Push(context.Background(), pending([]string{"appname:A"}, ts))
	assert.ErrorContains(t, err, "failed to insert heartbeat")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeekCorruptLabels(t *testing.T) {
	q, mock := newMockQueue(t)
	rows := sqlmock.NewRows([]string{"id", "client", "hostname", "type", "timestamp", "duration_ns", "labels", "pulsetime_ns"}).
		AddRow(7, "aw-watcher-window", "testhost", event.EventTypeCurrentWindow, time.Now(), 0, "not json", int64(time.Second))
	mock.ExpectQuery(regexp.QuoteMeta("FROM pending_heartbeats ORDER BY id ASC LIMIT 1")).WillReturnRows(rows)

	_, err := q.Peek(context.Background())
	assert.ErrorContains(t, err, "failed to decode labels of heartbeat 7")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingRow(t *testing.T) {
	q, mock := newMockQueue(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pending_heartbeats SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := q.Update(context.Background(), 42, event.Event{Labels: []string{"appname:A"}, Timestamp: time.Now()})
	assert.ErrorContains(t, err, "heartbeat 42 not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLenQueryFailure(t *testing.T) {
	q, mock := newMockQueue(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM pending_heartbeats")).
		WillReturnError(errors.New("database is locked"))

	_, err := q.Len(context.Background())
	assert.ErrorContains(t, err, "failed to count heartbeats")
	assert.NoError(t, mock.ExpectationsWereMet())
}
