package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YAOSTEPHANE/batim-sub000/internal/domain"
	"github.com/YAOSTEPHANE/batim-sub000/internal/store"
)

func TestCommitSaleSumsDuplicateLinesBeforeStockCheck(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// Two lines for the same SKU demand 42 against 40 in stock.
	_, err := s.CommitSale(ctx, domain.Sale{
		StoreID:       "main-store",
		PaymentMethod: domain.PayCash,
		Status:        domain.SaleStatusApproved,
		PaymentStatus: domain.SalePaid,
		Items: []domain.SaleItem{
			{SKU: "SKU-SUGAR-01", Qty: 21, UnitPriceCents: 80000, LineTotalCents: 1680000},
			{SKU: "SKU-SUGAR-01", Qty: 21, UnitPriceCents: 80000, LineTotalCents: 1680000},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	stock, err := s.GetStockMap(ctx, "main-store", []string{"SKU-SUGAR-01"})
	if err != nil {
		t.Fatalf("stock map failed: %v", err)
	}
	if stock["SKU-SUGAR-01"] != 40 {
		t.Fatalf("expected stock untouched at 40, got %d", stock["SKU-SUGAR-01"])
	}
}

func TestApproveSaleSumsDuplicateLinesBeforeStockCheck(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	pending, err := s.CommitSale(ctx, domain.Sale{
		StoreID:          "main-store",
		ClientID:         "cl-batimex",
		PaymentMethod:    domain.PayCredit,
		Status:           domain.SaleStatusPendingApproval,
		PaymentStatus:    domain.SaleUnpaid,
		RequiresApproval: true,
		TotalCents:       3200000,
		RemainingCents:   3200000,
		Items: []domain.SaleItem{
			{SKU: "SKU-SUGAR-01", Qty: 20, UnitPriceCents: 80000, LineTotalCents: 1600000},
			{SKU: "SKU-SUGAR-01", Qty: 20, UnitPriceCents: 80000, LineTotalCents: 1600000},
		},
	})
	if err != nil {
		t.Fatalf("commit pending sale failed: %v", err)
	}

	// One unit sold while the sale waited; combined demand 40 exceeds 39.
	if _, err := s.CommitSale(ctx, domain.Sale{
		StoreID:       "main-store",
		PaymentMethod: domain.PayCash,
		Status:        domain.SaleStatusApproved,
		PaymentStatus: domain.SalePaid,
		Items: []domain.SaleItem{
			{SKU: "SKU-SUGAR-01", Qty: 1, UnitPriceCents: 80000, LineTotalCents: 80000},
		},
	}); err != nil {
		t.Fatalf("cash sale failed: %v", err)
	}

	_, err = s.ApproveSale(ctx, pending.ID, "admin", time.Now().UTC())
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock at approval, got %v", err)
	}

	got, err := s.FindSaleByID(ctx, pending.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if got.Status != domain.SaleStatusPendingApproval {
		t.Fatalf("expected sale to stay pending, got %s", got.Status)
	}
	stock, _ := s.GetStockMap(ctx, "main-store", []string{"SKU-SUGAR-01"})
	if stock["SKU-SUGAR-01"] != 39 {
		t.Fatalf("expected stock 39, got %d", stock["SKU-SUGAR-01"])
	}
}

func TestCommitSaleRefusesBlockedClientWithNothingOutstanding(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.CommitSale(ctx, domain.Sale{
		StoreID:         "main-store",
		ClientID:        "cl-atlas",
		PaymentMethod:   domain.PayCredit,
		Status:          domain.SaleStatusApproved,
		PaymentStatus:   domain.SalePaid,
		TotalCents:      80000,
		AmountPaidCents: 80000,
		Items: []domain.SaleItem{
			{SKU: "SKU-SUGAR-01", Qty: 1, UnitPriceCents: 80000, LineTotalCents: 80000},
		},
	})
	if !errors.Is(err, store.ErrClientBlocked) {
		t.Fatalf("expected ErrClientBlocked, got %v", err)
	}
}
