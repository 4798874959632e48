package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/cafe/internal/cache"
	"github.com/Additional-Code/cafe/internal/config"
	"github.com/Additional-Code/cafe/internal/database"
	"github.com/Additional-Code/cafe/internal/logger"
	"github.com/Additional-Code/cafe/internal/messaging"
	"github.com/Additional-Code/cafe/internal/observability"
	"github.com/Additional-Code/cafe/internal/realtime"
	repositorycatalog "github.com/Additional-Code/cafe/internal/repository/catalog"
	repositoryorder "github.com/Additional-Code/cafe/internal/repository/order"
	grpcserver "github.com/Additional-Code/cafe/internal/server/grpc"
	httpserver "github.com/Additional-Code/cafe/internal/server/http"
	serviceorder "github.com/Additional-Code/cafe/internal/service/order"
	transporthttp "github.com/Additional-Code/cafe/internal/transport/http"
	"github.com/Additional-Code/cafe/internal/worker"
	workerorder "github.com/Additional-Code/cafe/internal/worker/order"
)

// Infra provides configuration, logging, storage and telemetry.
var Infra = fx.Options(
	config.Module,
	logger.Module,
	observability.Module,
	database.Module,
	cache.Module,
	messaging.Module,
)

// Core provides the order domain on top of the infrastructure modules.
var Core = fx.Options(
	Infra,
	realtime.Module,
	repositorycatalog.Module,
	repositoryorder.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP, websocket and gRPC surfaces on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
	grpcserver.Module,
)

// Worker exposes background processing of order events.
var Worker = fx.Options(
	Infra,
	worker.Module,
	workerorder.Module,
	// Nothing in the worker graph depends on the manager; force it so
	// exporters are installed before handlers record.
	fx.Invoke(func(*observability.Manager) {}),
)

// Module is the default application wiring.
var Module = HTTP
