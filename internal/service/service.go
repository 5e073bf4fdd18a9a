package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/YAOSTEPHANE/batim-sub000/internal/cache"
	"github.com/YAOSTEPHANE/batim-sub000/internal/credit"
	"github.com/YAOSTEPHANE/batim-sub000/internal/domain"
	"github.com/YAOSTEPHANE/batim-sub000/internal/store"
	"github.com/YAOSTEPHANE/batim-sub000/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Config struct {
	DefaultStoreID          string
	ApprovalThresholdCents  int64
	DefaultCreditLimitCents int64
	CreditReportTTL         time.Duration
}

type Service struct {
	repo                    store.Repository
	evaluator               *credit.Evaluator
	reportCache             cache.ReportCache
	reportTTL               time.Duration
	defaultStoreID          string
	approvalThresholdCents  int64
	defaultCreditLimitCents int64
}

func New(repo store.Repository, evaluator *credit.Evaluator, reportCache cache.ReportCache, cfg Config) *Service {
	if cfg.DefaultStoreID == "" {
		cfg.DefaultStoreID = "main-store"
	}
	if cfg.ApprovalThresholdCents < 1 {
		cfg.ApprovalThresholdCents = 500000
	}
	if cfg.CreditReportTTL < time.Second {
		cfg.CreditReportTTL = 5 * time.Minute
	}
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}

	return &Service{
		repo:                    repo,
		evaluator:               evaluator,
		reportCache:             reportCache,
		reportTTL:               cfg.CreditReportTTL,
		defaultStoreID:          cfg.DefaultStoreID,
		approvalThresholdCents:  cfg.ApprovalThresholdCents,
		defaultCreditLimitCents: cfg.DefaultCreditLimitCents,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.SKU == "" || req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalid
	}
	if req.PriceCents < 1 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalid
	}

	product := domain.Product{
		SKU:        req.SKU,
		Name:       req.Name,
		Category:   req.Category,
		PriceCents: req.PriceCents,
		Active:     true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	if req.InitialStock > 0 {
		_, err := s.repo.AdjustStock(ctx, req.StoreID, created.SKU, req.InitialStock, "initial stock", actor.Username)
		if err != nil {
			return domain.Product{}, err
		}
	}

	s.logAudit(ctx, req.StoreID, "product_create", "product", created.SKU,
		fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.PriceCents, req.InitialStock))

	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, sku string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Product{}, store.ErrInvalid
	}

	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalid
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalid
		}
		updated.Category = category
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrInvalid
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	if existing.PriceCents != saved.PriceCents {
		if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
			ID:            xid.New("ph"),
			SKU:           saved.SKU,
			OldPriceCents: existing.PriceCents,
			NewPriceCents: saved.PriceCents,
			ChangedBy:     actor.Username,
			ChangedAt:     time.Now().UTC(),
		}); err != nil {
			log.Printf("[service] WARN: failed to record price history sku=%s: %v", saved.SKU, err)
		}
	}

	s.logAudit(ctx, s.defaultStoreID, "product_update", "product", saved.SKU,
		fmt.Sprintf("price=%d,active=%t", saved.PriceCents, saved.Active))

	return *saved, nil
}

func (s *Service) ListProductPriceHistory(ctx context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return nil, store.ErrInvalid
	}
	return s.repo.ListPriceHistory(ctx, sku, limit)
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.CreditLimitCents < 0 {
		return domain.Client{}, store.ErrInvalid
	}
	if req.CreditLimitCents == 0 {
		req.CreditLimitCents = s.defaultCreditLimitCents
	}

	created, err := s.repo.CreateClient(ctx, domain.Client{
		Name:             req.Name,
		Phone:            strings.TrimSpace(req.Phone),
		CreditLimitCents: req.CreditLimitCents,
		Status:           domain.ClientActive,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "client_create", "client", created.ID,
		fmt.Sprintf("name=%s,credit_limit=%d", created.Name, created.CreditLimitCents))

	return *created, nil
}

func (s *Service) GetClient(ctx context.Context, id string) (domain.Client, error) {
	client, err := s.repo.GetClientByID(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.repo.ListClients(ctx)
}

func (s *Service) SetClientStatus(ctx context.Context, id string, req domain.ClientStatusRequest) (domain.Client, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Client{}, fmt.Errorf("admin role required")
	}

	switch req.Status {
	case domain.ClientActive, domain.ClientBlocked, domain.ClientLitigation:
	default:
		return domain.Client{}, store.ErrInvalid
	}

	updated, err := s.repo.SetClientStatus(ctx, id, req.Status, strings.TrimSpace(req.Reason))
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "client_status", "client", updated.ID,
		fmt.Sprintf("status=%s,reason=%s", updated.Status, updated.StatusReason))

	return *updated, nil
}

// CommitSale validates the cart, decides whether the sale needs an admin
// decision, and hands the store one sale to persist atomically. A sale held
// for approval reserves nothing: stock and the client balance move when the
// decision lands.
func (s *Service) CommitSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PayCash
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.SaleResponse{}, fmt.Errorf("%w: payment method %s", store.ErrInvalid, req.PaymentMethod)
	}
	if req.DiscountCents < 0 || req.AmountPaidCents < 0 {
		return domain.SaleResponse{}, store.ErrInvalid
	}

	normalized, err := normalizeItems(req.Items)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	var dueDate *time.Time
	if req.DueDate != "" {
		parsed, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			return domain.SaleResponse{}, fmt.Errorf("%w: due_date must be YYYY-MM-DD", store.ErrInvalid)
		}
		due := parsed.UTC()
		dueDate = &due
	}

	skus := make([]string, 0, len(normalized))
	for _, item := range normalized {
		skus = append(skus, item.SKU)
	}
	products, err := s.repo.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	subtotal := int64(0)
	lines := make([]domain.SaleItem, 0, len(normalized))
	for _, item := range normalized {
		product, exists := products[item.SKU]
		if !exists {
			return domain.SaleResponse{}, fmt.Errorf("%w: sku %s unavailable", store.ErrInvalid, item.SKU)
		}
		unitPrice := product.PriceCents
		if item.UnitPriceCents > 0 {
			unitPrice = item.UnitPriceCents
		}
		if item.DiscountCents < 0 {
			return domain.SaleResponse{}, store.ErrInvalid
		}
		lineTotal := int64(item.Qty)*unitPrice - item.DiscountCents
		if lineTotal < 0 {
			return domain.SaleResponse{}, fmt.Errorf("%w: discount exceeds line total for sku %s", store.ErrInvalid, item.SKU)
		}
		lines = append(lines, domain.SaleItem{
			SKU:            item.SKU,
			Qty:            item.Qty,
			UnitPriceCents: unitPrice,
			DiscountCents:  item.DiscountCents,
			LineTotalCents: lineTotal,
		})
		subtotal += lineTotal
	}

	if req.DiscountCents > subtotal {
		return domain.SaleResponse{}, fmt.Errorf("%w: discount exceeds subtotal", store.ErrInvalid)
	}
	totalCents := subtotal - req.DiscountCents

	now := time.Now().UTC()
	actor, _ := ActorFromContext(ctx)

	var amountPaid, remaining, change int64
	switch req.PaymentMethod {
	case domain.PayCash:
		if req.AmountPaidCents < totalCents {
			return domain.SaleResponse{}, fmt.Errorf("%w: cash received below total", store.ErrInvalid)
		}
		change = req.AmountPaidCents - totalCents
		amountPaid = totalCents
	case domain.PayCredit:
		if req.ClientID == "" {
			return domain.SaleResponse{}, fmt.Errorf("%w: credit sale requires a client", store.ErrInvalid)
		}
		amountPaid = req.AmountPaidCents
		if amountPaid > totalCents {
			amountPaid = totalCents
		}
		remaining = totalCents - amountPaid
	default:
		// Card and mobile money settle in full through the provider.
		if strings.TrimSpace(req.PaymentReference) == "" {
			return domain.SaleResponse{}, fmt.Errorf("%w: payment reference required for %s", store.ErrInvalid, req.PaymentMethod)
		}
		amountPaid = totalCents
	}

	// A blocked or litigation account cannot buy on credit at all, even when
	// the sale is tendered in full.
	if req.PaymentMethod == domain.PayCredit {
		client, err := s.repo.GetClientByID(ctx, req.ClientID)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		if client.Status != domain.ClientActive {
			return domain.SaleResponse{}, fmt.Errorf("%w: status %s (%s)", store.ErrClientBlocked, client.Status, client.StatusReason)
		}

		if remaining > 0 {
			unpaid, err := s.repo.ListUnpaidCreditSales(ctx, client.ID)
			if err != nil {
				return domain.SaleResponse{}, err
			}
			assessment := s.evaluator.Assess(unpaid, now)
			if assessment.ShouldAutoBlock {
				// The evaluator only reads; the block is written here so the
				// account state changes even though the sale is refused.
				reason := fmt.Sprintf("credit overdue %d days", assessment.OldestUnpaidDays)
				if _, err := s.repo.SetClientStatus(ctx, client.ID, domain.ClientBlocked, reason); err != nil {
					return domain.SaleResponse{}, err
				}
				s.logAudit(ctx, req.StoreID, "client_auto_block", "client", client.ID, reason)
				return domain.SaleResponse{}, fmt.Errorf("%w: %s", store.ErrClientBlocked, reason)
			}

			limit := client.CreditLimitCents
			if limit > 0 && client.BalanceCents+remaining > limit {
				return domain.SaleResponse{}, fmt.Errorf("%w: balance %d + sale %d exceeds limit %d",
					store.ErrCreditLimit, client.BalanceCents, remaining, limit)
			}
		}
	}

	needsApproval := req.PaymentMethod == domain.PayCredit &&
		remaining > s.approvalThresholdCents &&
		actor.Role != "admin"

	status := domain.SaleStatusApproved
	if needsApproval {
		status = domain.SaleStatusPendingApproval
	}
	paymentStatus := domain.SaleUnpaid
	switch {
	case remaining == 0:
		paymentStatus = domain.SalePaid
	case amountPaid > 0:
		paymentStatus = domain.SalePartiallyPaid
	}

	sale := domain.Sale{
		ID:               xid.New("sale"),
		Number:           xid.Number("SV", now),
		StoreID:          req.StoreID,
		ClientID:         req.ClientID,
		CustomerName:     strings.TrimSpace(req.CustomerName),
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		SubtotalCents:    subtotal,
		DiscountCents:    req.DiscountCents,
		TotalCents:       totalCents,
		AmountPaidCents:  amountPaid,
		RemainingCents:   remaining,
		DueDate:          dueDate,
		Status:           status,
		PaymentStatus:    paymentStatus,
		RequiresApproval: needsApproval,
		CashierUsername:  actor.Username,
		CreatedAt:        now,
		Items:            lines,
	}

	created, err := s.repo.CommitSale(ctx, sale)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	s.logAudit(ctx, req.StoreID, "sale_commit", "sale", created.ID,
		fmt.Sprintf("number=%s,total=%d,payment=%s,remaining=%d,pending=%t",
			created.Number, created.TotalCents, created.PaymentMethod, created.RemainingCents, needsApproval))

	return domain.SaleResponse{
		Sale:             *created,
		RequiresApproval: needsApproval,
		ChangeCents:      change,
	}, nil
}

func (s *Service) ApproveSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Sale{}, fmt.Errorf("admin role required")
	}
	if saleID == "" {
		return domain.Sale{}, store.ErrInvalid
	}

	approved, err := s.repo.ApproveSale(ctx, saleID, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, approved.StoreID, "sale_approve", "sale", approved.ID,
		fmt.Sprintf("number=%s,total=%d,remaining=%d", approved.Number, approved.TotalCents, approved.RemainingCents))

	return *approved, nil
}

func (s *Service) RejectSale(ctx context.Context, saleID string) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Sale{}, fmt.Errorf("admin role required")
	}
	if saleID == "" {
		return domain.Sale{}, store.ErrInvalid
	}

	rejected, err := s.repo.RejectSale(ctx, saleID, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, rejected.StoreID, "sale_reject", "sale", rejected.ID,
		fmt.Sprintf("number=%s,total=%d", rejected.Number, rejected.TotalCents))

	return *rejected, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.FindSaleByID(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, storeID string, status string, limit int) (domain.SaleListResponse, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	switch status {
	case "", domain.SaleStatusPendingApproval, domain.SaleStatusApproved, domain.SaleStatusRejected:
	default:
		return domain.SaleListResponse{}, store.ErrInvalid
	}

	sales, err := s.repo.ListSales(ctx, storeID, status, limit)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	return domain.SaleListResponse{Sales: sales}, nil
}

func (s *Service) ApplyPayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	if req.SaleID == "" || req.AmountCents < 1 {
		return domain.PaymentResponse{}, store.ErrInvalid
	}
	if req.Method == "" {
		req.Method = domain.PayCash
	}
	if !isSupportedPaymentMethod(req.Method) || req.Method == domain.PayCredit {
		return domain.PaymentResponse{}, fmt.Errorf("%w: payment method %s", store.ErrInvalid, req.Method)
	}

	actor, _ := ActorFromContext(ctx)
	payment, sale, err := s.repo.ApplyPayment(ctx, domain.Payment{
		SaleID:      req.SaleID,
		ClientID:    req.ClientID,
		AmountCents: req.AmountCents,
		Method:      req.Method,
		Notes:       strings.TrimSpace(req.Notes),
		ReceivedBy:  actor.Username,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	s.logAudit(ctx, sale.StoreID, "payment_apply", "sale", sale.ID,
		fmt.Sprintf("amount=%d,method=%s,remaining=%d", payment.AmountCents, payment.Method, sale.RemainingCents))

	return domain.PaymentResponse{Payment: *payment, Sale: *sale}, nil
}

func (s *Service) ListPayments(ctx context.Context, saleID string) ([]domain.Payment, error) {
	if saleID == "" {
		return nil, store.ErrInvalid
	}
	return s.repo.ListPaymentsBySale(ctx, saleID)
}

func (s *Service) ListStockMovements(ctx context.Context, storeID string, sku string, limit int) (domain.StockMovementListResponse, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	sku = strings.ToUpper(strings.TrimSpace(sku))

	movements, err := s.repo.ListStockMovements(ctx, storeID, sku, limit)
	if err != nil {
		return domain.StockMovementListResponse{}, err
	}
	return domain.StockMovementListResponse{Movements: movements}, nil
}

func (s *Service) AdjustStocks(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustmentResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.StockAdjustmentResponse{}, fmt.Errorf("admin role required")
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" || len(req.Items) == 0 {
		return domain.StockAdjustmentResponse{}, store.ErrInvalid
	}

	skus := make([]string, 0, len(req.Items))
	for i := range req.Items {
		req.Items[i].SKU = strings.ToUpper(strings.TrimSpace(req.Items[i].SKU))
		if req.Items[i].SKU == "" || req.Items[i].CountedQty < 0 {
			return domain.StockAdjustmentResponse{}, store.ErrInvalid
		}
		skus = append(skus, req.Items[i].SKU)
	}

	systemQtys, err := s.repo.GetStockMap(ctx, req.StoreID, skus)
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	now := time.Now().UTC()
	response := domain.StockAdjustmentResponse{
		AdjustmentID: xid.New("adj"),
		StoreID:      req.StoreID,
		Reason:       req.Reason,
		CreatedAt:    now.Format(time.RFC3339),
		Results:      make([]domain.StockAdjustmentResult, 0, len(req.Items)),
	}

	for _, item := range req.Items {
		movement, err := s.repo.AdjustStock(ctx, req.StoreID, item.SKU, item.CountedQty, req.Reason, actor.Username)
		if err != nil {
			return domain.StockAdjustmentResponse{}, err
		}
		result := domain.StockAdjustmentResult{
			SKU:        item.SKU,
			SystemQty:  systemQtys[item.SKU],
			CountedQty: item.CountedQty,
		}
		if movement != nil {
			result.DeltaQty = movement.QtyDelta
		}
		response.Results = append(response.Results, result)
	}

	s.logAudit(ctx, req.StoreID, "stock_adjust", "adjustment", response.AdjustmentID,
		fmt.Sprintf("reason=%s,items=%d", req.Reason, len(req.Items)))

	return response, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Supplier{}, fmt.Errorf("admin role required")
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("admin role required")
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if req.SupplierID == "" || len(req.Items) == 0 {
		return domain.PurchaseOrderResponse{}, store.ErrInvalid
	}

	created, err := s.repo.CreatePurchaseOrder(ctx, domain.PurchaseOrder{
		StoreID:    req.StoreID,
		SupplierID: req.SupplierID,
		Status:     domain.PurchaseOrderDraft,
		Items:      req.Items,
	})
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, req.StoreID, "purchase_order_create", "purchase_order", created.ID,
		fmt.Sprintf("supplier=%s,items=%d", created.SupplierID, len(created.Items)))

	return domain.PurchaseOrderResponse{PurchaseOrder: *created}, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string) (domain.PurchaseOrderListResponse, error) {
	orders, err := s.repo.ListPurchaseOrders(ctx, "", status, 200)
	if err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	return domain.PurchaseOrderListResponse{PurchaseOrders: orders}, nil
}

func (s *Service) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, req domain.PurchaseOrderReceiveRequest) (domain.PurchaseOrderResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.PurchaseOrderResponse{}, fmt.Errorf("admin role required")
	}
	if purchaseOrderID == "" {
		return domain.PurchaseOrderResponse{}, store.ErrInvalid
	}
	receivedBy := strings.TrimSpace(req.ReceivedBy)
	if receivedBy == "" {
		receivedBy = actor.Username
	}

	received, err := s.repo.ReceivePurchaseOrder(ctx, purchaseOrderID, receivedBy, time.Now().UTC())
	if err != nil {
		return domain.PurchaseOrderResponse{}, err
	}

	s.logAudit(ctx, received.StoreID, "purchase_order_receive", "purchase_order", received.ID,
		fmt.Sprintf("supplier=%s,items=%d", received.SupplierID, len(received.Items)))

	return domain.PurchaseOrderResponse{PurchaseOrder: *received}, nil
}

func (s *Service) DailyReport(ctx context.Context, storeID string, date string) (domain.DailyReport, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	day, err := parseReportDate(date)
	if err != nil {
		return domain.DailyReport{}, err
	}

	from := day
	to := day.AddDate(0, 0, 1)
	report, err := s.repo.GetDailyReport(ctx, storeID, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	report.StoreID = storeID
	report.Date = day.Format("2006-01-02")
	return report, nil
}

// CreditReport serves receivable analytics, cached per store. The data feeds
// dashboards only; a stale read here never affects a checkout decision.
func (s *Service) CreditReport(ctx context.Context, storeID string) (domain.CreditReport, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	cacheKey := "credit-report:" + storeID
	if cached, found, err := s.reportCache.Get(ctx, cacheKey); err == nil && found {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: credit report cache read failed store=%s: %v", storeID, err)
	}

	now := time.Now().UTC()
	since := now.AddDate(-1, 0, 0)
	creditSales, err := s.repo.ListCreditSales(ctx, storeID, since)
	if err != nil {
		return domain.CreditReport{}, err
	}

	report := s.evaluator.Analytics(storeID, creditSales, now)
	if err := s.reportCache.Set(ctx, cacheKey, &report, s.reportTTL); err != nil {
		log.Printf("[service] WARN: credit report cache write failed store=%s: %v", storeID, err)
	}
	return report, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	if storeID == "" {
		storeID = s.defaultStoreID
	}
	day, err := parseReportDate(date)
	if err != nil {
		return nil, err
	}

	return s.repo.ListAuditLogs(ctx, storeID, day, day.AddDate(0, 0, 1), limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

// normalizeItems trims and upper-cases SKUs, rejects malformed lines, and
// merges duplicate SKUs into one line so availability is checked against the
// cart's total demand per product.
func normalizeItems(items []domain.SaleItemRequest) ([]domain.SaleItemRequest, error) {
	merged := make([]domain.SaleItemRequest, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
		if item.SKU == "" || item.Qty < 1 {
			return nil, fmt.Errorf("%w: every line needs a sku and a positive qty", store.ErrInvalid)
		}
		if item.UnitPriceCents < 0 || item.DiscountCents < 0 {
			return nil, store.ErrInvalid
		}
		if at, seen := index[item.SKU]; seen {
			if merged[at].UnitPriceCents != item.UnitPriceCents {
				return nil, fmt.Errorf("%w: conflicting unit prices for sku %s", store.ErrInvalid, item.SKU)
			}
			merged[at].Qty += item.Qty
			merged[at].DiscountCents += item.DiscountCents
			continue
		}
		index[item.SKU] = len(merged)
		merged = append(merged, item)
	}
	if len(merged) == 0 {
		return nil, store.ErrInvalid
	}
	return merged, nil
}

func parseReportDate(date string) (time.Time, error) {
	if date == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalid)
	}
	return day.UTC(), nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PayCash, domain.PayMobileMoney, domain.PayCard, domain.PayCredit:
		return true
	}
	return false
}
