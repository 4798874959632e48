package http

import (
	"go.uber.org/fx"

	ordertransport "github.com/Additional-Code/cafe/internal/transport/http/order"
	realtimetransport "github.com/Additional-Code/cafe/internal/transport/http/realtime"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	realtimetransport.Module,
)
