package models

// All lists every model, in dependency order, for AutoMigrate in tests and
// SQLite development databases.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&ProductVariant{},
		&PromoCode{},
		&StockReservation{},
		&CheckoutSession{},
		&Order{},
		&OrderItem{},
		&OutboxEvent{},
	}
}
