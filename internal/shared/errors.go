package shared

import "errors"

var (
	// ErrIdempotencyConflict indicates a duplicate key.
	ErrIdempotencyConflict = errors.New("idempotent request already processed")
	// ErrInvalidAuditLog rejects audit entries without action, entity or entity id.
	ErrInvalidAuditLog = errors.New("audit log requires action/entity/entity_id")
)
