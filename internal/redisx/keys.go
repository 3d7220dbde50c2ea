package redisx

import "time"

const (
	// Cached order aggregate: order:{order_id} -> order JSON
	KeyOrder = "order:%s"

	// Event dedup per consumer: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderCache = 5 * time.Minute
	TTLDedup      = 48 * time.Hour
)
