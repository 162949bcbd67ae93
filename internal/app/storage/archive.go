package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"masskribbl/internal/app/game"
	"masskribbl/internal/pkg/errs"
	"masskribbl/internal/pkg/logx"
	"masskribbl/internal/protocol"
)

// archiveDocument is the JSON object stored for a closed room.
type archiveDocument struct {
	RoomCode   string            `json:"roomCode"`
	ArchivedAt int64             `json:"archivedAt"`
	Strokes    []protocol.Stroke `json:"strokes"`
}

// DrawingArchive stores the stroke history of closed rooms as JSON documents.
type DrawingArchive struct {
	store StorageService
	now   func() time.Time
}

var _ game.Archiver = (*DrawingArchive)(nil)

// NewDrawingArchive returns an archive writing through store.
func NewDrawingArchive(store StorageService) *DrawingArchive {
	return &DrawingArchive{store: store, now: time.Now}
}

// ArchiveKey is the object key used for a room archived at t.
func ArchiveKey(roomCode string, t time.Time) string {
	return fmt.Sprintf("rooms/%s/strokes-%d.json", roomCode, t.Unix())
}

// ArchiveStrokes uploads strokes under ArchiveKey. An empty history is not archived.
func (a *DrawingArchive) ArchiveStrokes(ctx context.Context, roomCode string, strokes []protocol.Stroke) error {
	if len(strokes) == 0 {
		return nil
	}

	now := a.now()
	body, err := json.Marshal(archiveDocument{
		RoomCode:   roomCode,
		ArchivedAt: now.UnixMilli(),
		Strokes:    strokes,
	})
	if err != nil {
		return errs.NewError(errs.ErrArchiveFailed)
	}

	key := ArchiveKey(roomCode, now)
	if err := a.store.Upload(ctx, key, "application/json", bytes.NewReader(body)); err != nil {
		return errs.NewError(errs.ErrArchiveFailed)
	}

	logx.Info("Drawing archived", "room_code", roomCode, "key", key, "strokes", len(strokes))
	return nil
}
