package models

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openfoodnetwork/ofn-backend/pkg/enums"
)

func TestOrderCycleStatus(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	cases := []struct {
		name  string
		open  *time.Time
		close *time.Time
		want  enums.OrderCycleStatus
	}{
		{name: "undated", want: enums.OrderCycleUndated},
		{name: "only open", open: &before, want: enums.OrderCycleUndated},
		{name: "upcoming", open: &after, close: &after, want: enums.OrderCycleUpcoming},
		{name: "open", open: &before, close: &after, want: enums.OrderCycleOpen},
		{name: "closed", open: &before, close: &before, want: enums.OrderCycleClosed},
	}
	for _, tc := range cases {
		oc := OrderCycle{OrdersOpenAt: tc.open, OrdersCloseAt: tc.close}
		if got := oc.Status(now); got != tc.want {
			t.Fatalf("%s: expected %s got %s", tc.name, tc.want, got)
		}
	}
}

func TestExchangeRoleAndCarries(t *testing.T) {
	v := uuid.New()
	in := Exchange{Incoming: true, Variants: []ExchangeVariant{{VariantID: v}}}
	if in.Role() != enums.FeeRoleSupplier {
		t.Fatalf("incoming exchange should be supplier role")
	}
	if !in.Carries(v) || in.Carries(uuid.New()) {
		t.Fatalf("unexpected Carries result")
	}
	if (Exchange{}).Role() != enums.FeeRoleDistributor {
		t.Fatalf("outgoing exchange should be distributor role")
	}
}

func TestVariantOverrideStatus(t *testing.T) {
	count := 4
	vo := VariantOverride{CountOnHand: &count}
	if vo.Status().Revoked || !vo.StockOverridden() {
		t.Fatalf("expected active stock override")
	}
	revokedAt := time.Now()
	vo.PermissionRevokedAt = &revokedAt
	if !vo.Status().Revoked || vo.StockOverridden() {
		t.Fatalf("revoked override must not report overridden stock")
	}
	if (VariantOverride{}).StockOverridden() {
		t.Fatalf("nil count is not a stock override")
	}
}
