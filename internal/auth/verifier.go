package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/velling/presence-server/internal/core"
)

// ErrUnauthenticated is returned when a handshake credential is missing,
// structurally invalid, or fails signature/expiry verification.
var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier maps a bearer credential to a stable identity. It is side-effect
// free: a failed verification allocates nothing and mutates nothing.
type Verifier struct {
	cfg *JWTConfig
}

// NewVerifier builds a verifier for the given JWT settings.
func NewVerifier(cfg *JWTConfig) *Verifier {
	return &Verifier{cfg: cfg}
}

// Verify validates a credential and extracts the identity it carries. The
// user id comes from the user_id claim, falling back to the standard subject.
func (v *Verifier) Verify(credential string) (core.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return core.Identity{}, fmt.Errorf("%w: missing credential", ErrUnauthenticated)
	}

	claims, err := ValidateToken(v.cfg, credential)
	if err != nil {
		return core.Identity{}, fmt.Errorf("%w: %s", ErrUnauthenticated, err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return core.Identity{}, fmt.Errorf("%w: token carries no user id", ErrUnauthenticated)
	}

	name := claims.Name
	if name == "" {
		name = userID
	}

	return core.Identity{
		UserID: userID,
		Name:   name,
		Roles:  claims.Roles,
	}, nil
}
