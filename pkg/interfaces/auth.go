package interfaces

import (
	"net/http"

	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// Authenticator is the external authentication collaborator. Given a
// WebSocket handshake request it returns the already-authenticated principal
// or rejects the handshake. Rejected handshakes are closed with a specific
// close code, never left half-open.
type Authenticator interface {
	Authenticate(r *http.Request) (*types.Principal, error)
}
