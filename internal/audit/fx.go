package audit

import (
	"github.com/smallbiznis/moviestore/internal/audit/repository"
	"github.com/smallbiznis/moviestore/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
