package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductsCacheInvalidatedEvent asks the cache worker to drop cached shopfront
// listings. Empty slices mean "no constraint" on that dimension; both empty
// flushes every entry.
type ProductsCacheInvalidatedEvent struct {
	DistributorIDs []uuid.UUID `json:"distributorIds,omitempty"`
	OrderCycleIDs  []uuid.UUID `json:"orderCycleIds,omitempty"`
	Reason         string      `json:"reason"`
}

// OrderCompletedEvent is published once checkout finalises an order.
type OrderCompletedEvent struct {
	OrderID       uuid.UUID       `json:"orderId"`
	Number        string          `json:"number"`
	DistributorID uuid.UUID       `json:"distributorId"`
	OrderCycleID  uuid.UUID       `json:"orderCycleId"`
	Total         decimal.Decimal `json:"total"`
	CompletedAt   time.Time       `json:"completedAt"`
}
