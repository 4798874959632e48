package realtime

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/cafe/internal/config"
)

// Module wires the websocket endpoint.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(func(e *echo.Echo, h *Handler, cfg config.Config) {
		Register(e, h, cfg)
	}),
)
