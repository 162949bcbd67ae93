package handler

import (
	"masskribbl/internal/app/game"
	"masskribbl/internal/configs"
)

// AppDeps is everything the HTTP layer needs.
type AppDeps struct {
	Manager *game.Manager
	Config  *configs.AppConfig
}
