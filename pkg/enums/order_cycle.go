package enums

// OrderCycleStatus is derived from the open/close timestamps; it is never stored.
type OrderCycleStatus string

const (
	OrderCycleUndated  OrderCycleStatus = "undated"
	OrderCycleUpcoming OrderCycleStatus = "upcoming"
	OrderCycleOpen     OrderCycleStatus = "open"
	OrderCycleClosed   OrderCycleStatus = "closed"
)

// String implements fmt.Stringer.
func (s OrderCycleStatus) String() string {
	return string(s)
}
