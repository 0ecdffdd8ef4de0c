package core

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/tidwall/sjson"
)

// AuditLog writes audit_log rows inside the same transaction as the state
// change they describe. The Coordinator writes one per inbound lot, reserve,
// unreserve and outbound, and two for a conversion (the conversion itself and
// the challan it creates).
type AuditLog struct{}

func NewAuditLog() *AuditLog { return &AuditLog{} }

// detail is one key/value pair to embed in an audit entry's details JSON.
type detail struct {
	key   string
	value any
}

func d(key string, value any) detail { return detail{key: key, value: value} }

// Write builds the details JSON from the given key/value pairs with
// tidwall/sjson (chosen over marshaling a struct so each operation can
// attach a different, ad hoc shape without a matching Go type) and inserts
// the audit row.
func (a *AuditLog) Write(ctx context.Context, tx pgx.Tx, action, entityType string, entityID, userID int64, details ...detail) error {
	raw := "{}"
	var err error
	for _, kv := range details {
		raw, err = sjson.Set(raw, kv.key, kv.value)
		if err != nil {
			return &ValidationError{Field: kv.key, Reason: "could not encode audit detail: " + err.Error()}
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO audit_log (action, entity_type, entity_id, user_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, action, entityType, entityID, userID, raw)
	if err != nil {
		return classifyConnFault("write audit entry", err)
	}
	return nil
}
