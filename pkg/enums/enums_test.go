package enums

import "testing"

func TestParsePromoTypeIgnoresCase(t *testing.T) {
	got, err := ParsePromoType(" percentage ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != PromoTypePercentage {
		t.Fatalf("expected PERCENTAGE, got %s", got)
	}
	if _, err := ParsePromoType("bogo"); err == nil {
		t.Fatal("expected unknown promo type to fail")
	}
}

func TestCheckoutSessionStatusTerminal(t *testing.T) {
	if CheckoutSessionOpen.IsTerminal() {
		t.Fatal("open is not terminal")
	}
	for _, status := range []CheckoutSessionStatus{CheckoutSessionCompleted, CheckoutSessionExpired} {
		if !status.IsTerminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	if _, err := ParseCheckoutSessionStatus("pending"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestOutboxEnums(t *testing.T) {
	if !EventOrderPaid.IsValid() || !AggregateOrder.IsValid() {
		t.Fatal("expected order enums to be valid")
	}
	if _, err := ParseOutboxEventType("order.shipped"); err == nil {
		t.Fatal("expected unknown event type to fail")
	}
	if got, err := ParseOutboxAggregateType("checkout_session"); err != nil || got != AggregateCheckoutSession {
		t.Fatalf("unexpected parse result %v %v", got, err)
	}
}

func TestParseProductCategory(t *testing.T) {
	if got, err := ParseProductCategory("ETB"); err != nil || got != ProductCategoryETB {
		t.Fatalf("unexpected parse result %v %v", got, err)
	}
	if _, err := ParseProductCategory("sleeve"); err == nil {
		t.Fatal("expected unknown category to fail")
	}
	if _, err := ParseOrderStatus("refunded"); err == nil {
		t.Fatal("expected unknown order status to fail")
	}
}
