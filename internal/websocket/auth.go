package websocket

import (
	"net/http"

	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// QueryAuthenticator is the default authentication collaborator: it trusts
// the identity already established by the platform's edge (the handshake
// arrives with principal_id, kind and display_name) and only checks shape.
// Deployments with real token verification substitute their own
// interfaces.Authenticator; the handler does not care which.
type QueryAuthenticator struct{}

// NewQueryAuthenticator creates the query-parameter authenticator.
func NewQueryAuthenticator() *QueryAuthenticator {
	return &QueryAuthenticator{}
}

// Authenticate extracts and validates the principal from the handshake
// request.
func (a *QueryAuthenticator) Authenticate(r *http.Request) (*types.Principal, error) {
	principalID := r.URL.Query().Get("principal_id")
	kind := r.URL.Query().Get("kind")
	displayName := r.URL.Query().Get("display_name")

	if principalID == "" || kind == "" {
		return nil, ErrMissingCredentials
	}
	if !types.IsValidPrincipalID(principalID) {
		return nil, ErrInvalidPrincipal
	}
	if !types.IsValidKind(kind) {
		return nil, ErrInvalidKind
	}
	if displayName == "" {
		displayName = principalID
	}

	return &types.Principal{
		ID:          principalID,
		Kind:        kind,
		DisplayName: displayName,
	}, nil
}
