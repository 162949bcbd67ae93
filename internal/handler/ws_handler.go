package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"masskribbl/internal/app/game"
	"masskribbl/internal/pkg/auth/jwt"
	"masskribbl/internal/pkg/errs"
	"masskribbl/internal/pkg/logx"
	"masskribbl/internal/pkg/resp"
)

// HandleWebSocket upgrades an authenticated request and runs the session until it disconnects.
// Rooms are chosen afterwards with room:create and room:join.
func HandleWebSocket(manager *game.Manager, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		session := game.NewSession(manager, conn, payload.User())

		go session.WritePump()

		logx.Info("WebSocket connection established", "user_id", payload.ID)

		session.ReadPump()
	}
}
