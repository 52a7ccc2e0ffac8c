package redisx

import "time"

const (
	// Intent snapshot at authorize time: intent:{payment_intent_id} -> IntentSnapshot JSON
	KeyIntent = "intent:%s"

	// Idempotent finalize: idem:order:txn:{transaction_id} -> order_id
	KeyIdemOrder = "idem:order:txn:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIntent      = 24 * time.Hour
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
