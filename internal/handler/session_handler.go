package handler

import (
	"net/http"

	"masskribbl/internal/app/user"
	"masskribbl/internal/pkg/auth/jwt"
	"masskribbl/internal/pkg/errs"
	"masskribbl/internal/pkg/logx"
	"masskribbl/internal/pkg/randx"
	"masskribbl/internal/pkg/req"
	"masskribbl/internal/pkg/resp"
)

// CreateSessionInput is the body of POST /api/session.
type CreateSessionInput struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// HandleCreateSession issues a guest identity and the token that authenticates its socket.
func HandleCreateSession(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CreateSessionInput

		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		username, ok := user.NormalizeUsername(input.Username)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidUsername))
			return
		}

		guestID, err := randx.GuestID()
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		u := user.User{
			ID:       guestID,
			Username: username,
			Email:    input.Email,
			Avatar:   input.Avatar,
		}

		token, err := jwt.GenerateToken(jwt.NewPayload(u), deps.Config.JWTSecret, jwt.SessionExpiration)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		logx.Info("Guest session issued", "user_id", u.ID)

		resp.RespondSuccess(w, r, map[string]any{
			"token": token,
			"user":  u,
		})
	}
}
