package order

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/cafe/internal/realtime"
	"github.com/Additional-Code/cafe/internal/repository/catalog"
	repo "github.com/Additional-Code/cafe/internal/repository/order"
)

// Module provides the order service to Fx, binding its collaborators to the
// bun repositories and the realtime hub.
var Module = fx.Options(
	fx.Provide(
		NewService,
		func(r *repo.Repository) Repository { return r },
		func(c *catalog.Repository) Catalog { return c },
		func(h *realtime.Hub) Notifier { return h },
	),
)
