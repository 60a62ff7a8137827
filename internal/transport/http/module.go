package http

import (
	"go.uber.org/fx"

	handofftransport "github.com/Additional-Code/handoff/internal/transport/http/handoff"
	purchasetransport "github.com/Additional-Code/handoff/internal/transport/http/purchase"
	sessiontransport "github.com/Additional-Code/handoff/internal/transport/http/session"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	sessiontransport.Module,
	purchasetransport.Module,
	handofftransport.Module,
)
