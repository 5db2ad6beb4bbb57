package rent

import (
	"github.com/smallbiznis/moviestore/internal/rent/repository"
	"github.com/smallbiznis/moviestore/internal/rent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rent.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
