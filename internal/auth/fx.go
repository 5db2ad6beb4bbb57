package auth

import (
	"github.com/smallbiznis/moviestore/internal/auth/repository"
	"github.com/smallbiznis/moviestore/internal/auth/service"
	"github.com/smallbiznis/moviestore/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.Provide),
	fx.Provide(token.NewFromConfig),
	fx.Provide(service.New),
)
