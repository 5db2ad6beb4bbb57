package providers

import (
	"github.com/smallbiznis/moviestore/internal/providers/email"
	"github.com/smallbiznis/moviestore/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
