package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"masskribbl/internal/pkg/errs"
	"masskribbl/internal/pkg/randx"
	"masskribbl/internal/pkg/resp"
)

// RoomStatus is the public view of an active room.
type RoomStatus struct {
	Code        string `json:"code"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	MaxRounds   int    `json:"maxRounds"`
	IsFull      bool   `json:"isFull"`
}

// HandleGetRoom reports whether a room code is live and joinable, so a shared link can be
// checked before opening a socket.
func HandleGetRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if !randx.IsValidRoomCode(code) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		room := deps.Manager.GetRoom(code)
		if room == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrRoomNotFound))
			return
		}

		resp.RespondSuccess(w, r, RoomStatus{
			Code:        room.Code,
			PlayerCount: room.PlayerCount(),
			MaxPlayers:  room.MaxPlayers,
			MaxRounds:   room.MaxRounds,
			IsFull:      room.IsFull(),
		})
	}
}
