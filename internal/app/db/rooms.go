package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"masskribbl/internal/app/game"
	"masskribbl/internal/pkg/errs"
)

const (
	insertRoomSQL = `
INSERT INTO rooms (code, host_id, max_players, max_rounds, created_at)
VALUES ($1, $2, $3, $4, $5)`

	closeRoomSQL = `
UPDATE rooms
SET closed_at = $2, stroke_count = $3, message_count = $4
WHERE code = $1 AND closed_at IS NULL`
)

// Execer is the part of pgxpool.Pool the room log uses.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RoomLog records room lifecycles in the rooms table.
type RoomLog struct {
	db Execer
}

// NewRoomLog returns a RoomLog writing through db (usually a *pgxpool.Pool).
func NewRoomLog(db Execer) *RoomLog {
	return &RoomLog{db: db}
}

var _ game.RoomLog = (*RoomLog)(nil)

// RoomCreated inserts an open room. A code that is still open is reported as ErrRoomCodeExists.
func (l *RoomLog) RoomCreated(ctx context.Context, info game.RoomInfo) error {
	_, err := l.db.Exec(ctx, insertRoomSQL, info.Code, info.HostID, info.MaxPlayers, info.MaxRounds, info.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return errs.NewError(errs.ErrRoomCodeExists)
		}
		return fmt.Errorf("insert room %s: %w", info.Code, err)
	}
	return nil
}

// RoomClosed marks the open room with summary.Code as closed.
func (l *RoomLog) RoomClosed(ctx context.Context, summary game.RoomSummary) error {
	tag, err := l.db.Exec(ctx, closeRoomSQL, summary.Code, summary.ClosedAt, summary.Strokes, summary.Messages)
	if err != nil {
		return fmt.Errorf("close room %s: %w", summary.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close room %s: no open room", summary.Code)
	}
	return nil
}
