package types

import "testing"

func TestShippingAddressMissing(t *testing.T) {
	addr := ShippingAddress{FullName: "Sacha", AddressLine1: " ", PostalCode: "75001", City: "Paris"}
	missing := addr.Missing()
	if len(missing) != 2 || missing[0] != "addressLine1" || missing[1] != "country" {
		t.Fatalf("unexpected missing fields %v", missing)
	}
	if len((ShippingAddress{FullName: "a", AddressLine1: "b", PostalCode: "c", City: "d", Country: "fr"}).Missing()) != 0 {
		t.Fatal("expected complete address to have no missing fields")
	}
}

func TestShippingAddressValueScanRoundTrip(t *testing.T) {
	addr := ShippingAddress{FullName: "Sacha", AddressLine1: "1 rue de Kanto", PostalCode: "75001", City: "Paris", Country: "FR"}
	value, err := addr.Value()
	if err != nil {
		t.Fatalf("value failed: %v", err)
	}
	var decoded ShippingAddress
	if err := decoded.Scan(value); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if decoded != addr {
		t.Fatalf("expected %+v, got %+v", addr, decoded)
	}
	if err := decoded.Scan(42); err == nil {
		t.Fatal("expected unsupported type to fail")
	}
}

func TestShippingAddressNormalized(t *testing.T) {
	got := ShippingAddress{FullName: " Sacha ", Country: " fr "}.Normalized()
	if got.FullName != "Sacha" || got.Country != "FR" {
		t.Fatalf("unexpected normalized address %+v", got)
	}
}
