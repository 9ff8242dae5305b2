package modules

import (
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/api/handlers"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/api/middleware"
	"github.com/CSC-IT-Center-for-Science/resource-cloud/internal/config"
)

// TokenIssuer is the iss claim of every token this service mints and accepts.
const TokenIssuer = "resource-cloud"

// NewServerDeps builds base server deps then lets each module contribute explicit wiring.
func NewServerDeps(infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{}
	if infra != nil && infra.Pool != nil {
		deps.DB = infra.Pool
	}
	if infra != nil && infra.Pools != nil {
		deps.Pools = infra.Pools
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}

// JWTConfig derives the token settings from the security section.
func JWTConfig(cfg *config.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.WorkerSecret),
		Issuer:     TokenIssuer,
		ExpiresIn:  cfg.Security.WorkerTokenTTL,
	}
}
