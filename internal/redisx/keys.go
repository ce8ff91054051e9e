package redisx

import "time"

const (
	// Idempotency for checkout: idem:checkout:{order_id} -> number
	KeyIdemCheckout = "idem:checkout:%s"

	// Cache order status: order_status:{order_id} -> {"status": "...", ...}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
