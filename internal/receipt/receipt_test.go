package receipt_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"regdesk/internal/models"
	"regdesk/internal/receipt"
)

func price(v float64) *float64 { return &v }

func paidOrder() *models.Order {
	paidAt := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
	order := &models.Order{
		ID:                "order-1",
		HostType:          models.HostEvent,
		HostID:            "evt-1",
		AttendanceID:      "att-1",
		Paid:              true,
		PaidAmount:        price(70),
		PaymentMethod:     models.MethodCash,
		PaymentReceivedAt: &paidAt,
	}
	order.AddItem(&models.LineItem{ID: "pkg", ItemType: models.ItemPackage, Name: "Full Weekend"}, 60, 1)
	shirt := order.AddItem(&models.LineItem{ID: "shirt", ItemType: models.ItemShirt, Name: "Event Tee"}, 20, 1)
	shirt.Size = "M"
	order.AddItem(&models.LineItem{
		ID:           "disc",
		ItemType:     models.ItemDiscount,
		Name:         "Early Bird",
		DiscountKind: models.DiscountFlat,
	}, 10, 1)
	return order
}

func TestBuildReceiptBody(t *testing.T) {
	body, err := receipt.BuildReceiptBody(paidOrder(), "Jo Shaw")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for _, want := range []string{
		"Jo Shaw",
		"$70.00",
		"Cash",
		"Full Weekend",
		"Event Tee",
		"(M)",
		"-$10.00",
		"March 14, 2026",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected body to contain %q", want)
		}
	}

	// Discount line items never show as purchases.
	if strings.Count(body, "Early Bird") != 0 {
		t.Error("Expected discount name absent from the item list")
	}
}

func TestGenerateEncryptedQR(t *testing.T) {
	gen := receipt.NewQRGenerator("test-secret")

	png, err := gen.GenerateEncryptedQR(receipt.QRPayload{
		OrderID:      "order-1",
		AttendanceID: "att-1",
		PaidAt:       time.Now(),
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(png) == 0 {
		t.Fatal("Expected PNG bytes")
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("Expected PNG magic header")
	}
}

func TestQRDiffersPerOrder(t *testing.T) {
	gen := receipt.NewQRGenerator("test-secret")

	a, err := gen.GenerateEncryptedQR(receipt.QRPayload{OrderID: "order-1"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	b, err := gen.GenerateEncryptedQR(receipt.QRPayload{OrderID: "order-2"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("Expected distinct codes for distinct orders")
	}
}
