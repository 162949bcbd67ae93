package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"masskribbl/internal/app/game"
	"masskribbl/internal/pkg/errs"
)

type MockExecer struct {
	mock.Mock
}

func (m *MockExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	called := m.Called(append([]any{ctx, sql}, args...)...)
	return called.Get(0).(pgconn.CommandTag), called.Error(1)
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsUniqueViolation(errors.Join(errors.New("wrapped"), &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestRoomCreated(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	info := game.RoomInfo{Code: "AbC123", HostID: "guest_host", MaxPlayers: 8, MaxRounds: 3, CreatedAt: created}

	execer := &MockExecer{}
	execer.On("Exec", mock.Anything, insertRoomSQL, "AbC123", "guest_host", 8, 3, created).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil).Once()
	execer.On("Exec", mock.Anything, insertRoomSQL, "AbC123", "guest_host", 8, 3, created).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}).Once()

	l := NewRoomLog(execer)
	require.NoError(t, l.RoomCreated(context.Background(), info))

	err := l.RoomCreated(context.Background(), info)
	assert.Equal(t, errs.ErrRoomCodeExists, errs.Code(err))
	execer.AssertExpectations(t)
}

func TestRoomClosed(t *testing.T) {
	t.Parallel()

	closed := time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC)
	summary := game.RoomSummary{Code: "AbC123", ClosedAt: closed, Strokes: 12, Messages: 4}

	execer := &MockExecer{}
	execer.On("Exec", mock.Anything, closeRoomSQL, "AbC123", closed, 12, 4).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()
	execer.On("Exec", mock.Anything, closeRoomSQL, "AbC123", closed, 12, 4).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	l := NewRoomLog(execer)
	require.NoError(t, l.RoomClosed(context.Background(), summary))
	assert.Error(t, l.RoomClosed(context.Background(), summary))
	execer.AssertExpectations(t)
}
