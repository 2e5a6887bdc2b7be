package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingWithRetryRecovers(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("starting up"))
	mock.ExpectPing().WillReturnError(errors.New("starting up"))
	mock.ExpectPing()

	require.NoError(t, pingWithRetry(context.Background(), db, 5, time.Millisecond))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWithRetryGivesUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 3; i++ {
		mock.ExpectPing().WillReturnError(errors.New("refused"))
	}

	err = pingWithRetry(context.Background(), db, 3, time.Millisecond)
	assert.ErrorContains(t, err, "after 3 attempts")
	assert.ErrorContains(t, err, "refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWithRetryStopsOnCancel(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("refused"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = pingWithRetry(ctx, db, 3, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
