package inventory

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Key identifies a stock record: one variant in one warehouse.
type Key struct {
	VariantID   uint
	WarehouseID string
}

func (k Key) String() string { return fmt.Sprintf("%d@%s", k.VariantID, k.WarehouseID) }

// SortKeys orders keys by variant then warehouse, the order rows are locked in.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].VariantID != keys[j].VariantID {
			return keys[i].VariantID < keys[j].VariantID
		}
		return keys[i].WarehouseID < keys[j].WarehouseID
	})
}

type Record struct {
	Key
	Available int
	Reserved  int
	UpdatedAt time.Time
}

type Action string

const (
	ActionReserve   Action = "RESERVE"
	ActionCommit    Action = "COMMIT"
	ActionRelease   Action = "RELEASE"
	ActionAdjust    Action = "ADJUST"
	ActionRestock   Action = "RESTOCK"
	ActionReconcile Action = "RECONCILE"
)

// LogEntry is one append-only row of the stock movement log.
type LogEntry struct {
	ID             uuid.UUID
	Key            Key
	Action         Action
	Quantity       int
	AvailableAfter int
	ReservedAfter  int
	Reason         string
	Actor          string
	Reference      string
	CreatedAt      time.Time
}

// Meta is the audit context attached to log entries.
type Meta struct {
	Reason    string
	Actor     string
	Reference string
}
