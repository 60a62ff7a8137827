package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/handoff/internal/auth"
	"github.com/Additional-Code/handoff/internal/cache"
	"github.com/Additional-Code/handoff/internal/config"
	"github.com/Additional-Code/handoff/internal/database"
	"github.com/Additional-Code/handoff/internal/logger"
	"github.com/Additional-Code/handoff/internal/messaging"
	"github.com/Additional-Code/handoff/internal/notify"
	"github.com/Additional-Code/handoff/internal/observability"
	repositoryorder "github.com/Additional-Code/handoff/internal/repository/order"
	repositoryotp "github.com/Additional-Code/handoff/internal/repository/otp"
	repositoryproduct "github.com/Additional-Code/handoff/internal/repository/product"
	repositoryuser "github.com/Additional-Code/handoff/internal/repository/user"
	grpcserver "github.com/Additional-Code/handoff/internal/server/grpc"
	httpserver "github.com/Additional-Code/handoff/internal/server/http"
	servicehandoff "github.com/Additional-Code/handoff/internal/service/handoff"
	serviceotp "github.com/Additional-Code/handoff/internal/service/otp"
	servicepurchase "github.com/Additional-Code/handoff/internal/service/purchase"
	servicetoken "github.com/Additional-Code/handoff/internal/service/token"
	"github.com/Additional-Code/handoff/internal/signer"
	transporthttp "github.com/Additional-Code/handoff/internal/transport/http"
	"github.com/Additional-Code/handoff/internal/worker"
	workerhandoff "github.com/Additional-Code/handoff/internal/worker/handoff"
)

// Infra provides configuration, logging and connections without any
// domain services. The CLI maintenance commands run on it.
var Infra = fx.Options(
	config.Module,
	logger.Module,
	database.Module,
	observability.Module,
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	Infra,
	cache.Module,
	messaging.Module,
	notify.Module,
	signer.Module,
	repositoryuser.Module,
	repositoryproduct.Module,
	repositoryorder.Module,
	repositoryotp.Module,
	auth.Module,
	servicetoken.Module,
	serviceotp.Module,
	servicepurchase.Module,
	servicehandoff.Module,
)

// HTTP wires the HTTP transport and the gRPC health server on top of the
// core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerhandoff.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
