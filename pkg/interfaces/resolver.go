package interfaces

import (
	"context"

	"studyhall/pkg/types"
)

// IdentityResolver materializes a display identity for a user ID with no
// known profile. Resolution happens against the hosting platform and may
// fail; callers tolerate failure by substituting a placeholder name.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID string) (types.UserRef, error)
}
