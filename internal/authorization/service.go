package authorization

import (
	"context"
	"errors"

	authdomain "github.com/smallbiznis/moviestore/internal/auth/domain"
)

// Service decides whether a principal may perform action on object.
type Service interface {
	Authorize(ctx context.Context, principal authdomain.Principal, object string, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
