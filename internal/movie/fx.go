package movie

import (
	"github.com/smallbiznis/moviestore/internal/movie/repository"
	"github.com/smallbiznis/moviestore/internal/movie/service"
	"go.uber.org/fx"
)

var Module = fx.Module("movie.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
