package identity

import (
	"net/http"
)

// Resolver maps an incoming request to a stable user identifier.
// Implementations must not mutate the request.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// Static resolves every request to a fixed identifier. It is the
// default while real identity federation stays disabled.
type Static struct {
	UserID string
}

func (s Static) Resolve(_ *http.Request) (string, error) {
	return s.UserID, nil
}
