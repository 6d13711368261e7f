package redisx

import "time"

const (
	// dedup:<scope>:<event id>
	KeyDedup = "dedup:%s:%s"

	// lock:<job>
	KeyLock = "lock:%s"
)

const (
	TTLDedup = 48 * time.Hour
)
