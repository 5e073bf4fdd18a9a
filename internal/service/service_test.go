package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/YAOSTEPHANE/batim-sub000/internal/credit"
	"github.com/YAOSTEPHANE/batim-sub000/internal/domain"
	"github.com/YAOSTEPHANE/batim-sub000/internal/store"
	"github.com/YAOSTEPHANE/batim-sub000/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	svc := New(repo, credit.NewEvaluator(90), nil, Config{DefaultStoreID: "main-store"})
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func TestCommitCashSaleComputesChange(t *testing.T) {
	svc, repo := newTestService()

	resp, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod:   "cash",
		AmountPaidCents: 200000,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	if resp.Sale.TotalCents != 160000 {
		t.Fatalf("expected total 160000, got %d", resp.Sale.TotalCents)
	}
	if resp.ChangeCents != 40000 {
		t.Fatalf("expected change 40000, got %d", resp.ChangeCents)
	}
	if resp.Sale.Status != domain.SaleStatusApproved {
		t.Fatalf("expected cash sale approved, got %s", resp.Sale.Status)
	}
	if resp.Sale.PaymentStatus != domain.SalePaid {
		t.Fatalf("expected cash sale paid, got %s", resp.Sale.PaymentStatus)
	}

	stock, err := repo.GetStockMap(context.Background(), "main-store", []string{"SKU-SUGAR-01"})
	if err != nil {
		t.Fatalf("stock map failed: %v", err)
	}
	if stock["SKU-SUGAR-01"] != 38 {
		t.Fatalf("expected stock 38 after sale, got %d", stock["SKU-SUGAR-01"])
	}
}

func TestCommitCashSaleRejectsShortPayment(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod:   "cash",
		AmountPaidCents: 100,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for short cash payment, got %v", err)
	}
}

func TestCommitSaleUnknownSKURejected(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod:   "cash",
		AmountPaidCents: 1000000,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-GHOST-99", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown sku, got %v", err)
	}
}

func TestCommitSaleInsufficientStock(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod:   "cash",
		AmountPaidCents: 100000000,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 41},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestCommitSaleRejectsNonPositiveQty(t *testing.T) {
	svc, repo := newTestService()

	_, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod:   "cash",
		AmountPaidCents: 10000000,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-RICE-25", Qty: 2},
			{SKU: "SKU-OIL-05", Qty: 0},
		},
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for zero qty line, got %v", err)
	}

	// The whole cart is refused, not just the bad line.
	stock, err := repo.GetStockMap(context.Background(), "main-store", []string{"SKU-RICE-25"})
	if err != nil {
		t.Fatalf("stock map failed: %v", err)
	}
	if stock["SKU-RICE-25"] != 40 {
		t.Fatalf("expected rice stock untouched at 40, got %d", stock["SKU-RICE-25"])
	}
}

func TestDuplicateCartLinesCannotOversell(t *testing.T) {
	svc, repo := newTestService()

	if _, err := svc.AdjustStocks(adminCtx(), domain.StockAdjustmentRequest{
		Reason: "cycle count",
		Items: []domain.StockAdjustmentItem{
			{SKU: "SKU-RICE-25", CountedQty: 1},
		},
	}); err != nil {
		t.Fatalf("adjust stocks failed: %v", err)
	}

	_, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod:   "cash",
		AmountPaidCents: 10000000,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-RICE-25", Qty: 1},
			{SKU: "SKU-RICE-25", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for duplicate lines, got %v", err)
	}

	stock, err := repo.GetStockMap(context.Background(), "main-store", []string{"SKU-RICE-25"})
	if err != nil {
		t.Fatalf("stock map failed: %v", err)
	}
	if stock["SKU-RICE-25"] != 1 {
		t.Fatalf("expected stock to stay at 1, got %d", stock["SKU-RICE-25"])
	}
}

func TestDuplicateCartLinesMergedIntoOne(t *testing.T) {
	svc, repo := newTestService()

	resp, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod:   "cash",
		AmountPaidCents: 200000,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 1},
			{SKU: "sku-sugar-01", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("commit sale failed: %v", err)
	}
	if len(resp.Sale.Items) != 1 {
		t.Fatalf("expected duplicate lines merged into 1, got %d", len(resp.Sale.Items))
	}
	if resp.Sale.Items[0].Qty != 2 {
		t.Fatalf("expected merged qty 2, got %d", resp.Sale.Items[0].Qty)
	}
	if resp.Sale.TotalCents != 160000 {
		t.Fatalf("expected total 160000, got %d", resp.Sale.TotalCents)
	}

	// One sale writes one movement per product.
	movements, err := svc.ListStockMovements(context.Background(), "main-store", "SKU-SUGAR-01", 100)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	saleMoves := 0
	for _, mv := range movements.Movements {
		if mv.SaleID == resp.Sale.ID {
			saleMoves++
		}
	}
	if saleMoves != 1 {
		t.Fatalf("expected 1 movement for the sale, got %d", saleMoves)
	}

	stock, _ := repo.GetStockMap(context.Background(), "main-store", []string{"SKU-SUGAR-01"})
	if stock["SKU-SUGAR-01"] != 38 {
		t.Fatalf("expected stock 38 after merged sale, got %d", stock["SKU-SUGAR-01"])
	}
}

func TestCardSaleRequiresReference(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "card",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid without payment reference, got %v", err)
	}

	resp, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod:    "card",
		PaymentReference: "CARD-REF-042",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("card sale failed: %v", err)
	}
	if resp.Sale.PaymentStatus != domain.SalePaid {
		t.Fatalf("expected card sale settled in full, got %s", resp.Sale.PaymentStatus)
	}
}

func TestCreditSaleRequiresClient(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for credit sale without client, got %v", err)
	}
}

func TestSmallCreditSaleApprovedImmediately(t *testing.T) {
	svc, _ := newTestService()

	// 2 x sugar = 160000, below the 500000 approval threshold.
	resp, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}
	if resp.RequiresApproval {
		t.Fatalf("expected no approval below threshold")
	}
	if resp.Sale.Status != domain.SaleStatusApproved {
		t.Fatalf("expected approved, got %s", resp.Sale.Status)
	}
	if resp.Sale.RemainingCents != 160000 {
		t.Fatalf("expected remaining 160000, got %d", resp.Sale.RemainingCents)
	}

	client, err := svc.GetClient(context.Background(), "cl-batimex")
	if err != nil {
		t.Fatalf("get client failed: %v", err)
	}
	if client.BalanceCents != 160000 {
		t.Fatalf("expected client balance 160000, got %d", client.BalanceCents)
	}
}

func TestLargeCreditSaleHeldForApproval(t *testing.T) {
	svc, repo := newTestService()

	// 1 x rice 25kg = 1850000, above the threshold, cashier actor.
	resp, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-RICE-25", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}
	if !resp.RequiresApproval || resp.Sale.Status != domain.SaleStatusPendingApproval {
		t.Fatalf("expected pending approval, got status %s", resp.Sale.Status)
	}

	// A pending sale reserves nothing.
	stock, _ := repo.GetStockMap(context.Background(), "main-store", []string{"SKU-RICE-25"})
	if stock["SKU-RICE-25"] != 40 {
		t.Fatalf("expected stock untouched at 40, got %d", stock["SKU-RICE-25"])
	}
	client, _ := svc.GetClient(context.Background(), "cl-batimex")
	if client.BalanceCents != 0 {
		t.Fatalf("expected balance untouched, got %d", client.BalanceCents)
	}

	approved, err := svc.ApproveSale(adminCtx(), resp.Sale.ID)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if approved.Status != domain.SaleStatusApproved || approved.ApprovedBy != "admin" {
		t.Fatalf("expected approved by admin, got %s/%s", approved.Status, approved.ApprovedBy)
	}

	// Stock and balance move at decision time.
	stock, _ = repo.GetStockMap(context.Background(), "main-store", []string{"SKU-RICE-25"})
	if stock["SKU-RICE-25"] != 39 {
		t.Fatalf("expected stock 39 after approval, got %d", stock["SKU-RICE-25"])
	}
	client, _ = svc.GetClient(context.Background(), "cl-batimex")
	if client.BalanceCents != 1850000 {
		t.Fatalf("expected balance 1850000 after approval, got %d", client.BalanceCents)
	}

	// A decided sale cannot be decided again.
	if _, err := svc.ApproveSale(adminCtx(), resp.Sale.ID); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid on second approval, got %v", err)
	}
}

func TestAdminCreditSaleSelfApproves(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-RICE-25", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}
	if resp.RequiresApproval || resp.Sale.Status != domain.SaleStatusApproved {
		t.Fatalf("expected admin sale approved immediately, got %s", resp.Sale.Status)
	}
}

func TestApproveSaleRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-RICE-25", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}

	if _, err := svc.ApproveSale(cashierCtx(), resp.Sale.ID); err == nil {
		t.Fatalf("expected cashier approval to be refused")
	}
}

func TestRejectSaleLeavesStateUntouched(t *testing.T) {
	svc, repo := newTestService()

	resp, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-PAINT-10", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}

	rejected, err := svc.RejectSale(adminCtx(), resp.Sale.ID)
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.Status != domain.SaleStatusRejected || rejected.RejectedBy != "admin" {
		t.Fatalf("expected rejected by admin, got %s/%s", rejected.Status, rejected.RejectedBy)
	}

	stock, _ := repo.GetStockMap(context.Background(), "main-store", []string{"SKU-PAINT-10"})
	if stock["SKU-PAINT-10"] != 40 {
		t.Fatalf("expected stock untouched at 40, got %d", stock["SKU-PAINT-10"])
	}
	client, _ := svc.GetClient(context.Background(), "cl-batimex")
	if client.BalanceCents != 0 {
		t.Fatalf("expected balance untouched, got %d", client.BalanceCents)
	}
}

func TestApprovalReChecksStock(t *testing.T) {
	svc, _ := newTestService()

	pending, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-PAINT-10", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}

	// The full paint stock sells for cash while the credit sale waits.
	_, err = svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod:   "cash",
		AmountPaidCents: 40 * 1650000,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-PAINT-10", Qty: 40},
		},
	})
	if err != nil {
		t.Fatalf("cash sale failed: %v", err)
	}

	if _, err := svc.ApproveSale(adminCtx(), pending.Sale.ID); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock at decision time, got %v", err)
	}

	// A failed approval leaves the sale pending for a later decision.
	sale, err := svc.GetSale(context.Background(), pending.Sale.ID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	if sale.Status != domain.SaleStatusPendingApproval {
		t.Fatalf("expected sale still pending, got %s", sale.Status)
	}
}

func TestCreditLimitEnforcedAcrossSales(t *testing.T) {
	svc, _ := newTestService()

	// cl-batimex has a 10000000 limit. 5 x rice = 9250000 fits.
	_, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-RICE-25", Qty: 5},
		},
	})
	if err != nil {
		t.Fatalf("first credit sale failed: %v", err)
	}

	// Another 1850000 would push the balance past the limit.
	_, err = svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-RICE-25", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrCreditLimit) {
		t.Fatalf("expected ErrCreditLimit, got %v", err)
	}
}

func TestZeroLimitClientHasNoCeiling(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-kone",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-RICE-25", Qty: 10},
		},
	})
	if err != nil {
		t.Fatalf("expected zero-limit client to pass, got %v", err)
	}
}

func TestBlockedClientRefused(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-atlas",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrClientBlocked) {
		t.Fatalf("expected ErrClientBlocked, got %v", err)
	}
}

func TestBlockedClientRefusedEvenWhenTenderedInFull(t *testing.T) {
	svc, repo := newTestService()

	// Full tender leaves nothing outstanding, but the account stays off limits.
	_, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod:   "credit",
		ClientID:        "cl-atlas",
		AmountPaidCents: 80000,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrClientBlocked) {
		t.Fatalf("expected ErrClientBlocked for fully tendered credit sale, got %v", err)
	}

	stock, err := repo.GetStockMap(context.Background(), "main-store", []string{"SKU-SUGAR-01"})
	if err != nil {
		t.Fatalf("stock map failed: %v", err)
	}
	if stock["SKU-SUGAR-01"] != 40 {
		t.Fatalf("expected stock untouched at 40, got %d", stock["SKU-SUGAR-01"])
	}
}

func TestOverdueClientAutoBlocked(t *testing.T) {
	svc, _ := newTestService()

	overdue := time.Now().UTC().AddDate(0, 0, -95).Format("2006-01-02")
	_, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		DueDate:       overdue,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("first credit sale failed: %v", err)
	}

	// The unpaid sale is now 95 days past due; the next credit attempt
	// blocks the account.
	_, err = svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrClientBlocked) {
		t.Fatalf("expected ErrClientBlocked for overdue account, got %v", err)
	}

	client, err := svc.GetClient(context.Background(), "cl-batimex")
	if err != nil {
		t.Fatalf("get client failed: %v", err)
	}
	if client.Status != domain.ClientBlocked {
		t.Fatalf("expected client blocked, got %s", client.Status)
	}
	if !strings.Contains(client.StatusReason, "credit overdue") {
		t.Fatalf("expected overdue reason, got %q", client.StatusReason)
	}
}

func TestPaymentSequenceSettlesSale(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 1, UnitPriceCents: 10000},
		},
	})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}
	if resp.Sale.RemainingCents != 10000 {
		t.Fatalf("expected remaining 10000, got %d", resp.Sale.RemainingCents)
	}

	first, err := svc.ApplyPayment(adminCtx(), domain.PaymentRequest{
		SaleID:      resp.Sale.ID,
		AmountCents: 4000,
		Method:      "cash",
	})
	if err != nil {
		t.Fatalf("first payment failed: %v", err)
	}
	if first.Sale.RemainingCents != 6000 || first.Sale.PaymentStatus != domain.SalePartiallyPaid {
		t.Fatalf("expected remaining 6000 partially_paid, got %d %s",
			first.Sale.RemainingCents, first.Sale.PaymentStatus)
	}

	second, err := svc.ApplyPayment(adminCtx(), domain.PaymentRequest{
		SaleID:      resp.Sale.ID,
		AmountCents: 6000,
		Method:      "mobile_money",
	})
	if err != nil {
		t.Fatalf("second payment failed: %v", err)
	}
	if second.Sale.RemainingCents != 0 || second.Sale.PaymentStatus != domain.SalePaid {
		t.Fatalf("expected settled sale, got %d %s",
			second.Sale.RemainingCents, second.Sale.PaymentStatus)
	}

	// The client balance shrank with each payment.
	client, _ := svc.GetClient(context.Background(), "cl-batimex")
	if client.BalanceCents != 0 {
		t.Fatalf("expected balance back to 0, got %d", client.BalanceCents)
	}

	// A settled sale accepts no further payments.
	_, err = svc.ApplyPayment(adminCtx(), domain.PaymentRequest{
		SaleID:      resp.Sale.ID,
		AmountCents: 1,
		Method:      "cash",
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid on over-payment, got %v", err)
	}

	payments, err := svc.ListPayments(context.Background(), resp.Sale.ID)
	if err != nil {
		t.Fatalf("list payments failed: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
}

func TestPaymentRejectedOnPendingSale(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-RICE-25", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}

	_, err = svc.ApplyPayment(cashierCtx(), domain.PaymentRequest{
		SaleID:      resp.Sale.ID,
		AmountCents: 1000,
		Method:      "cash",
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for payment on pending sale, got %v", err)
	}
}

func TestPaymentMethodCreditRejected(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ApplyPayment(cashierCtx(), domain.PaymentRequest{
		SaleID:      "sale-any",
		AmountCents: 1000,
		Method:      "credit",
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for credit as settlement method, got %v", err)
	}
}

func TestConcurrentSalesOfLastUnit(t *testing.T) {
	svc, _ := newTestService()

	// Shrink candle stock to a single unit.
	_, err := svc.AdjustStocks(adminCtx(), domain.StockAdjustmentRequest{
		Reason: "cycle count",
		Items: []domain.StockAdjustmentItem{
			{SKU: "SKU-CANDLE-12", CountedQty: 1},
		},
	})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
				PaymentMethod:   "cash",
				AmountPaidCents: 60000,
				Items: []domain.SaleItemRequest{
					{SKU: "SKU-CANDLE-12", Qty: 1},
				},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("expected exactly one winner, got ok=%d insufficient=%d", ok, insufficient)
	}
}

func TestMovementLedgerSumsToStockLevel(t *testing.T) {
	svc, repo := newTestService()
	ctx := adminCtx()

	_, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod:   "cash",
		AmountPaidCents: 3 * 80000,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 3},
		},
	})
	if err != nil {
		t.Fatalf("cash sale failed: %v", err)
	}

	_, err = svc.AdjustStocks(ctx, domain.StockAdjustmentRequest{
		Reason: "damaged bags",
		Items: []domain.StockAdjustmentItem{
			{SKU: "SKU-SUGAR-01", CountedQty: 35},
		},
	})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	supplier, err := svc.CreateSupplier(ctx, domain.SupplierCreateRequest{Name: "Sucrerie Ivoire", Phone: "+2250711223344"})
	if err != nil {
		t.Fatalf("create supplier failed: %v", err)
	}
	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: supplier.ID,
		Items: []domain.PurchaseOrderItem{
			{SKU: "SKU-SUGAR-01", Qty: 20, CostCents: 60000},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}
	if _, err := svc.ReceivePurchaseOrder(ctx, po.PurchaseOrder.ID, domain.PurchaseOrderReceiveRequest{}); err != nil {
		t.Fatalf("receive purchase order failed: %v", err)
	}

	movements, err := svc.ListStockMovements(context.Background(), "main-store", "SKU-SUGAR-01", 100)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	sum := 0
	for _, mv := range movements.Movements {
		sum += mv.QtyDelta
	}

	stock, _ := repo.GetStockMap(context.Background(), "main-store", []string{"SKU-SUGAR-01"})
	if 40+sum != stock["SKU-SUGAR-01"] {
		t.Fatalf("ledger out of balance: seed 40 + deltas %d != stock %d", sum, stock["SKU-SUGAR-01"])
	}
	if stock["SKU-SUGAR-01"] != 55 {
		t.Fatalf("expected stock 55 (40-3 adj to 35 +20), got %d", stock["SKU-SUGAR-01"])
	}
}

func TestAdjustStocksRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.AdjustStocks(cashierCtx(), domain.StockAdjustmentRequest{
		Reason: "cycle count",
		Items: []domain.StockAdjustmentItem{
			{SKU: "SKU-SUGAR-01", CountedQty: 10},
		},
	})
	if err == nil {
		t.Fatalf("expected cashier adjustment to be refused")
	}
}

func TestAdjustStockMatchingCountWritesNoMovement(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.AdjustStocks(adminCtx(), domain.StockAdjustmentRequest{
		Reason: "cycle count",
		Items: []domain.StockAdjustmentItem{
			{SKU: "SKU-SUGAR-01", CountedQty: 40},
		},
	})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].DeltaQty != 0 {
		t.Fatalf("expected zero delta result, got %+v", resp.Results)
	}

	movements, err := svc.ListStockMovements(context.Background(), "main-store", "SKU-SUGAR-01", 10)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements.Movements) != 0 {
		t.Fatalf("expected no movement for matching count, got %d", len(movements.Movements))
	}
}

func TestReceivePurchaseOrderTwiceRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	supplier, err := svc.CreateSupplier(ctx, domain.SupplierCreateRequest{Name: "Ciments du Sud"})
	if err != nil {
		t.Fatalf("create supplier failed: %v", err)
	}
	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderCreateRequest{
		SupplierID: supplier.ID,
		Items: []domain.PurchaseOrderItem{
			{SKU: "SKU-CEMENT-50", Qty: 100, CostCents: 480000},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order failed: %v", err)
	}

	received, err := svc.ReceivePurchaseOrder(ctx, po.PurchaseOrder.ID, domain.PurchaseOrderReceiveRequest{ReceivedBy: "warehouse"})
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if received.PurchaseOrder.Status != domain.PurchaseOrderReceived {
		t.Fatalf("expected received status, got %s", received.PurchaseOrder.Status)
	}

	if _, err := svc.ReceivePurchaseOrder(ctx, po.PurchaseOrder.ID, domain.PurchaseOrderReceiveRequest{}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid on second receive, got %v", err)
	}
}

func TestDailyReportAggregates(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	_, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod:   "cash",
		AmountPaidCents: 160000,
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("cash sale failed: %v", err)
	}

	creditSale, err := svc.CommitSale(ctx, domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}

	// A cashier-sized pending sale should only show up in the pending count.
	_, err = svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-kone",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-RICE-25", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("pending credit sale failed: %v", err)
	}

	_, err = svc.ApplyPayment(ctx, domain.PaymentRequest{
		SaleID:      creditSale.Sale.ID,
		AmountCents: 30000,
		Method:      "cash",
	})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	report, err := svc.DailyReport(context.Background(), "", time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		t.Fatalf("daily report failed: %v", err)
	}
	if report.Sales != 2 {
		t.Fatalf("expected 2 approved sales, got %d", report.Sales)
	}
	if report.PendingApprovals != 1 {
		t.Fatalf("expected 1 pending approval, got %d", report.PendingApprovals)
	}
	if report.NetSalesCents != 240000 {
		t.Fatalf("expected net sales 240000, got %d", report.NetSalesCents)
	}
	if report.CollectedCents != 190000 {
		t.Fatalf("expected collected 190000 (cash 160000 + payment 30000), got %d", report.CollectedCents)
	}
	if report.CreditIssuedCents != 80000 {
		t.Fatalf("expected credit issued 80000, got %d", report.CreditIssuedCents)
	}
}

// countingReportCache records cache traffic for assertions.
type countingReportCache struct {
	mu     sync.Mutex
	stored map[string]*domain.CreditReport
	gets   int
	sets   int
}

func (c *countingReportCache) Get(_ context.Context, key string) (*domain.CreditReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	report, found := c.stored[key]
	return report, found, nil
}

func (c *countingReportCache) Set(_ context.Context, key string, value *domain.CreditReport, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.stored == nil {
		c.stored = make(map[string]*domain.CreditReport)
	}
	c.stored[key] = value
	return nil
}

func TestCreditReportServedFromCache(t *testing.T) {
	repo := memory.NewSeeded()
	reportCache := &countingReportCache{}
	svc := New(repo, credit.NewEvaluator(90), reportCache, Config{})

	_, err := svc.CommitSale(adminCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-SUGAR-01", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}

	first, err := svc.CreditReport(context.Background(), "main-store")
	if err != nil {
		t.Fatalf("credit report failed: %v", err)
	}
	if first.TotalIssuedCents != 160000 || first.OutstandingCents != 160000 {
		t.Fatalf("unexpected report: %+v", first)
	}

	second, err := svc.CreditReport(context.Background(), "main-store")
	if err != nil {
		t.Fatalf("cached credit report failed: %v", err)
	}
	if second.GeneratedAt != first.GeneratedAt {
		t.Fatalf("expected cached report, got regenerated one")
	}
	if reportCache.sets != 1 || reportCache.gets != 2 {
		t.Fatalf("expected 1 set and 2 gets, got sets=%d gets=%d", reportCache.sets, reportCache.gets)
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{
		SKU:        "SKU-NAILS-01",
		Name:       "Nails 1kg",
		Category:   "building",
		PriceCents: 45000,
	})
	if err == nil {
		t.Fatalf("expected cashier product creation to be refused")
	}
}

func TestUpdateProductPriceWritesHistory(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	newPrice := int64(1950000)
	_, err := svc.UpdateProduct(ctx, "SKU-RICE-25", domain.ProductUpdateRequest{PriceCents: &newPrice})
	if err != nil {
		t.Fatalf("update product failed: %v", err)
	}

	history, err := svc.ListProductPriceHistory(context.Background(), "SKU-RICE-25", 10)
	if err != nil {
		t.Fatalf("price history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].OldPriceCents != 1850000 || history[0].NewPriceCents != 1950000 {
		t.Fatalf("unexpected history entry: %+v", history[0])
	}
}

func TestListSalesRejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.ListSales(context.Background(), "", "shipped", 10); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown status filter, got %v", err)
	}
}

func TestAuditTrailRecordsSaleLifecycle(t *testing.T) {
	svc, _ := newTestService()

	resp, err := svc.CommitSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "credit",
		ClientID:      "cl-batimex",
		Items: []domain.SaleItemRequest{
			{SKU: "SKU-RICE-25", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("credit sale failed: %v", err)
	}
	if _, err := svc.ApproveSale(adminCtx(), resp.Sale.ID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), "", time.Now().UTC().Format("2006-01-02"), 50)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}

	var actions []string
	for _, entry := range logs {
		actions = append(actions, entry.Action)
	}
	joined := fmt.Sprintf("%v", actions)
	if !strings.Contains(joined, "sale_commit") || !strings.Contains(joined, "sale_approve") {
		t.Fatalf("expected commit and approve audit entries, got %v", actions)
	}
}
