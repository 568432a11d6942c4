package server

import (
	"errors"
	"net/http"

	"papercast/internal/servicetoken"
	"papercast/internal/usertoken"
	"papercast/pkg/domain"
)

// IdentityProvider resolves the caller of a request. ok is false when the
// request carries no credentials; err is set when credentials are invalid.
type IdentityProvider interface {
	CurrentActor(r *http.Request) (actor domain.Actor, ok bool, err error)
}

// UserVerifier verifies end-user access tokens.
type UserVerifier interface {
	Verify(token string) (usertoken.Identity, error)
}

// WorkerVerifier verifies worker service tokens and returns the worker name.
type WorkerVerifier interface {
	Verify(token string) (string, error)
}

// TokenIdentity accepts either a user access token or a worker service
// token in the Authorization header. Either verifier may be nil.
type TokenIdentity struct {
	Users   UserVerifier
	Workers WorkerVerifier
}

var errInvalidToken = errors.New("invalid bearer token")

func (t TokenIdentity) CurrentActor(r *http.Request) (domain.Actor, bool, error) {
	token, ok := servicetoken.BearerToken(r)
	if !ok {
		return domain.Actor{}, false, nil
	}
	if t.Users != nil {
		if id, err := t.Users.Verify(token); err == nil {
			role := domain.RoleUser
			if id.Role == string(domain.RoleAdmin) {
				role = domain.RoleAdmin
			}
			return domain.Actor{ID: id.Subject, Role: role, Email: id.Email, Name: id.Name}, true, nil
		}
	}
	if t.Workers != nil {
		if name, err := t.Workers.Verify(token); err == nil {
			return domain.Actor{ID: name, Role: domain.RoleWorker}, true, nil
		}
	}
	return domain.Actor{}, false, errInvalidToken
}
