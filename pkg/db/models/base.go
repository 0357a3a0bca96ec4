package models

import "github.com/google/uuid"

// assignID fills a zero primary key before insert so every driver, SQLite
// included, receives a client-generated UUID.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model in dependency order. Used for SQLite
// auto-migration in development and tests; Postgres uses goose migrations.
func All() []any {
	return []any{
		&User{},
		&Enterprise{},
		&EnterpriseRole{},
		&EnterpriseRelationship{},
		&EnterpriseRelationshipPermission{},
		&TaxCategory{},
		&TaxRate{},
		&ShippingCategory{},
		&Taxon{},
		&Product{},
		&Variant{},
		&EnterpriseFee{},
		&OrderCycle{},
		&Exchange{},
		&ExchangeVariant{},
		&ExchangeFee{},
		&CoordinatorFee{},
		&VariantOverride{},
		&Order{},
		&LineItem{},
		&Adjustment{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
