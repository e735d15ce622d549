package port

import "context"

// EntityResolver confirms that the business entity an instance is being
// bound to still exists. It is consulted at start time only; after that the
// instance holds a weak reference and never assumes the entity survives.
type EntityResolver interface {
	// Resolve returns nil when the entity exists, a NOT_FOUND engine error
	// when it does not or the entity type is unknown.
	Resolve(ctx context.Context, tenantID, entityType, entityID string) error
}
