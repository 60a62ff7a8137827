package signer

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/handoff/internal/config"
)

// Module provides the process signer keyed by HANDOFF_TOKEN_SECRET.
var Module = fx.Provide(func(cfg config.Config) (*Signer, error) {
	return New(cfg.Handoff.TokenSecret, WithIssuer(cfg.Observability.ServiceName))
})
