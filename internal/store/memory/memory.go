package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/YAOSTEPHANE/batim-sub000/internal/domain"
	"github.com/YAOSTEPHANE/batim-sub000/internal/store"
	"github.com/YAOSTEPHANE/batim-sub000/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	products           map[string]domain.Product
	stock              map[string]map[string]int
	movements          []domain.StockMovement
	clientsByID        map[string]domain.Client
	salesByID          map[string]*domain.Sale
	paymentsBySale     map[string][]domain.Payment
	priceHistoryBySKU  map[string][]domain.ProductPriceHistory
	suppliersByID      map[string]domain.Supplier
	purchaseOrdersByID map[string]domain.PurchaseOrder
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{SKU: "SKU-RICE-25", Name: "Rice 25kg", Category: "grocery", PriceCents: 1850000, Active: true},
		{SKU: "SKU-OIL-05", Name: "Cooking Oil 5L", Category: "grocery", PriceCents: 750000, Active: true},
		{SKU: "SKU-SUGAR-01", Name: "Sugar 1kg", Category: "grocery", PriceCents: 80000, Active: true},
		{SKU: "SKU-FLOUR-05", Name: "Wheat Flour 5kg", Category: "grocery", PriceCents: 350000, Active: true},
		{SKU: "SKU-MILK-01", Name: "Powdered Milk 400g", Category: "dairy", PriceCents: 280000, Active: true},
		{SKU: "SKU-SOAP-06", Name: "Laundry Soap 6-pack", Category: "household", PriceCents: 150000, Active: true},
		{SKU: "SKU-CEMENT-50", Name: "Cement 50kg", Category: "building", PriceCents: 550000, Active: true},
		{SKU: "SKU-PAINT-10", Name: "Paint 10L", Category: "building", PriceCents: 1650000, Active: true},
		{SKU: "SKU-WATER-12", Name: "Mineral Water 12-pack", Category: "beverage", PriceCents: 180000, Active: true},
		{SKU: "SKU-CANDLE-12", Name: "Candles 12-pack", Category: "household", PriceCents: 60000, Active: true},
	}

	now := time.Now().UTC()
	clients := []domain.Client{
		{ID: "cl-batimex", Name: "Batimex SARL", Phone: "+2250701020304", CreditLimitCents: 10000000, Status: domain.ClientActive, CreatedAt: now},
		{ID: "cl-kone", Name: "Kone Distribution", Phone: "+2250705060708", CreditLimitCents: 0, Status: domain.ClientActive, CreatedAt: now},
		{ID: "cl-atlas", Name: "Atlas BTP", Phone: "+2250709101112", CreditLimitCents: 5000000, Status: domain.ClientBlocked, StatusReason: "unpaid invoices", CreatedAt: now},
	}

	productMap := make(map[string]domain.Product, len(products))
	stock := make(map[string]map[string]int)
	stock["main-store"] = make(map[string]int)
	for _, p := range products {
		productMap[p.SKU] = p
		stock["main-store"][p.SKU] = 40
	}

	clientMap := make(map[string]domain.Client, len(clients))
	for _, c := range clients {
		clientMap[c.ID] = c
	}

	return &Store{
		products:           productMap,
		stock:              stock,
		movements:          make([]domain.StockMovement, 0, 256),
		clientsByID:        clientMap,
		salesByID:          make(map[string]*domain.Sale),
		paymentsBySale:     make(map[string][]domain.Payment),
		priceHistoryBySKU:  make(map[string][]domain.ProductPriceHistory),
		suppliersByID:      make(map[string]domain.Supplier),
		purchaseOrdersByID: make(map[string]domain.PurchaseOrder),
		auditLogs:          make([]domain.AuditLog, 0, 256),
		usersByUsername:    seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Category == products[j].Category {
			return products[i].Name < products[j].Name
		}
		return products[i].Category < products[j].Category
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.SKU]; exists {
		return nil, fmt.Errorf("%w: sku %s already exists", store.ErrInvalid, product.SKU)
	}
	product.Active = true
	s.products[product.SKU] = product

	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[sku]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.SKU]; !exists {
		return nil, store.ErrNotFound
	}
	s.products[product.SKU] = product

	updated := product
	return &updated, nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	s.priceHistoryBySKU[entry.SKU] = append(s.priceHistoryBySKU[entry.SKU], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.priceHistoryBySKU[sku]
	result := make([]domain.ProductPriceHistory, 0, limit)
	for i := len(history) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, history[i])
	}
	return result, nil
}

func (s *Store) GetProductsBySKUs(_ context.Context, skus []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if product, exists := s.products[sku]; exists && product.Active {
			result[sku] = product
		}
	}
	return result, nil
}

func (s *Store) GetStockMap(_ context.Context, storeID string, skus []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int, len(skus))
	storeStock := s.stock[storeID]
	for _, sku := range skus {
		result[sku] = storeStock[sku]
	}
	return result, nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	if client.Name == "" || client.CreditLimitCents < 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client.ID == "" {
		client.ID = xid.New("cl")
	}
	if client.Status == "" {
		client.Status = domain.ClientActive
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	s.clientsByID[client.ID] = client

	created := client
	return &created, nil
}

func (s *Store) GetClientByID(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, exists := s.clientsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := client
	return &copied, nil
}

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clientsByID))
	for _, c := range s.clientsByID {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].Name < clients[j].Name })
	return clients, nil
}

func (s *Store) SetClientStatus(_ context.Context, id string, status string, reason string) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, exists := s.clientsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	client.Status = status
	client.StatusReason = reason
	s.clientsByID[id] = client

	updated := client
	return &updated, nil
}

func (s *Store) CommitSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrInvalid
	}

	// Demand is summed per SKU before the availability check so a cart with
	// duplicate lines cannot drive stock negative.
	storeStock := s.stockFor(sale.StoreID)
	required := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalid
		}
		product, exists := s.products[item.SKU]
		if !exists || !product.Active {
			return nil, fmt.Errorf("%w: sku %s unavailable", store.ErrInvalid, item.SKU)
		}
		required[item.SKU] += item.Qty
	}
	for sku, qty := range required {
		if available := storeStock[sku]; available < qty {
			return nil, fmt.Errorf("%w: sku %s has %d, requested %d", store.ErrInsufficientStock, sku, available, qty)
		}
	}

	applyEffects := sale.Status == domain.SaleStatusApproved
	creditEffect := applyEffects && sale.PaymentMethod == domain.PayCredit && sale.RemainingCents > 0 && sale.ClientID != ""

	if sale.PaymentMethod == domain.PayCredit && sale.ClientID != "" {
		client, exists := s.clientsByID[sale.ClientID]
		if !exists {
			return nil, fmt.Errorf("%w: client %s", store.ErrNotFound, sale.ClientID)
		}
		if client.Status != domain.ClientActive {
			return nil, fmt.Errorf("%w: status %s", store.ErrClientBlocked, client.Status)
		}
		if creditEffect && client.CreditLimitCents > 0 && client.BalanceCents+sale.RemainingCents > client.CreditLimitCents {
			return nil, fmt.Errorf("%w: balance %d + sale %d exceeds limit %d",
				store.ErrCreditLimit, client.BalanceCents, sale.RemainingCents, client.CreditLimitCents)
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	if applyEffects {
		for _, item := range sale.Items {
			storeStock[item.SKU] -= item.Qty
			s.movements = append(s.movements, domain.StockMovement{
				ID:        xid.New("mv"),
				StoreID:   sale.StoreID,
				SKU:       item.SKU,
				QtyDelta:  -item.Qty,
				Type:      domain.MovementSale,
				Reason:    "sale",
				SaleID:    sale.ID,
				CreatedBy: sale.CashierUsername,
				CreatedAt: sale.CreatedAt,
			})
		}
		if creditEffect {
			client := s.clientsByID[sale.ClientID]
			client.BalanceCents += sale.RemainingCents
			s.clientsByID[sale.ClientID] = client
		}
	}

	saved := cloneSale(&sale)
	s.salesByID[sale.ID] = saved
	return cloneSale(saved), nil
}

func (s *Store) ApproveSale(_ context.Context, saleID string, approvedBy string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusPendingApproval {
		return nil, fmt.Errorf("%w: sale already decided", store.ErrInvalid)
	}

	// A pending sale may have waited for hours; availability is re-checked at
	// decision time, and an insufficient line leaves the sale pending.
	storeStock := s.stockFor(sale.StoreID)
	required := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		required[item.SKU] += item.Qty
	}
	for sku, qty := range required {
		if available := storeStock[sku]; available < qty {
			return nil, fmt.Errorf("%w: sku %s has %d, requested %d", store.ErrInsufficientStock, sku, available, qty)
		}
	}

	for _, item := range sale.Items {
		storeStock[item.SKU] -= item.Qty
		s.movements = append(s.movements, domain.StockMovement{
			ID:        xid.New("mv"),
			StoreID:   sale.StoreID,
			SKU:       item.SKU,
			QtyDelta:  -item.Qty,
			Type:      domain.MovementSale,
			Reason:    "sale",
			SaleID:    sale.ID,
			CreatedBy: approvedBy,
			CreatedAt: at,
		})
	}
	if sale.PaymentMethod == domain.PayCredit && sale.RemainingCents > 0 && sale.ClientID != "" {
		if client, ok := s.clientsByID[sale.ClientID]; ok {
			client.BalanceCents += sale.RemainingCents
			s.clientsByID[sale.ClientID] = client
		}
	}

	sale.Status = domain.SaleStatusApproved
	sale.RequiresApproval = false
	sale.ApprovedBy = approvedBy
	approvedAt := at
	sale.ApprovedAt = &approvedAt

	return cloneSale(sale), nil
}

func (s *Store) RejectSale(_ context.Context, saleID string, rejectedBy string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if sale.Status != domain.SaleStatusPendingApproval {
		return nil, fmt.Errorf("%w: sale already decided", store.ErrInvalid)
	}

	sale.Status = domain.SaleStatusRejected
	sale.RequiresApproval = false
	sale.RejectedBy = rejectedBy
	rejectedAt := at
	sale.RejectedAt = &rejectedAt

	return cloneSale(sale), nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, storeID string, status string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, limit)
	for _, sale := range s.salesByID {
		if storeID != "" && sale.StoreID != storeID {
			continue
		}
		if status != "" && sale.Status != status {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].CreatedAt.Before(sales[j].CreatedAt) })
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) ListUnpaidCreditSales(_ context.Context, clientID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 8)
	for _, sale := range s.salesByID {
		if sale.ClientID != clientID || sale.PaymentMethod != domain.PayCredit {
			continue
		}
		if sale.Status != domain.SaleStatusApproved || sale.RemainingCents < 1 {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].CreatedAt.Before(sales[j].CreatedAt) })
	return sales, nil
}

func (s *Store) ListCreditSales(_ context.Context, storeID string, since time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, 32)
	for _, sale := range s.salesByID {
		if sale.PaymentMethod != domain.PayCredit {
			continue
		}
		if storeID != "" && sale.StoreID != storeID {
			continue
		}
		if sale.CreatedAt.Before(since) {
			continue
		}
		sales = append(sales, *cloneSale(sale))
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].CreatedAt.Before(sales[j].CreatedAt) })
	return sales, nil
}

func (s *Store) ApplyPayment(_ context.Context, payment domain.Payment) (*domain.Payment, *domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[payment.SaleID]
	if !exists {
		return nil, nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, payment.SaleID)
	}
	if sale.Status != domain.SaleStatusApproved {
		return nil, nil, fmt.Errorf("%w: sale is %s, not payable", store.ErrInvalid, sale.Status)
	}
	if payment.AmountCents < 1 {
		return nil, nil, store.ErrInvalid
	}
	if payment.AmountCents > sale.RemainingCents {
		return nil, nil, fmt.Errorf("%w: amount %d exceeds remaining %d", store.ErrInvalid, payment.AmountCents, sale.RemainingCents)
	}
	if payment.ClientID == "" {
		payment.ClientID = sale.ClientID
	}
	if payment.ClientID != "" {
		if _, ok := s.clientsByID[payment.ClientID]; !ok {
			return nil, nil, fmt.Errorf("%w: client %s", store.ErrNotFound, payment.ClientID)
		}
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	sale.AmountPaidCents += payment.AmountCents
	sale.RemainingCents -= payment.AmountCents
	if sale.RemainingCents == 0 {
		sale.PaymentStatus = domain.SalePaid
	} else {
		sale.PaymentStatus = domain.SalePartiallyPaid
	}

	if payment.ClientID != "" {
		client := s.clientsByID[payment.ClientID]
		client.BalanceCents -= payment.AmountCents
		s.clientsByID[payment.ClientID] = client
	}

	s.paymentsBySale[payment.SaleID] = append(s.paymentsBySale[payment.SaleID], payment)

	saved := payment
	return &saved, cloneSale(sale), nil
}

func (s *Store) ListPaymentsBySale(_ context.Context, saleID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments := s.paymentsBySale[saleID]
	result := make([]domain.Payment, len(payments))
	copy(result, payments)
	return result, nil
}

func (s *Store) ListStockMovements(_ context.Context, storeID string, sku string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0 && len(result) < limit; i-- {
		mv := s.movements[i]
		if storeID != "" && mv.StoreID != storeID {
			continue
		}
		if sku != "" && mv.SKU != sku {
			continue
		}
		result = append(result, mv)
	}
	return result, nil
}

func (s *Store) AdjustStock(_ context.Context, storeID string, sku string, countedQty int, reason string, actor string) (*domain.StockMovement, error) {
	if countedQty < 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[sku]; !exists {
		return nil, store.ErrNotFound
	}

	storeStock := s.stockFor(storeID)
	delta := countedQty - storeStock[sku]
	if delta == 0 {
		return nil, nil
	}
	storeStock[sku] = countedQty

	movement := domain.StockMovement{
		ID:        xid.New("mv"),
		StoreID:   storeID,
		SKU:       sku,
		QtyDelta:  delta,
		Type:      domain.MovementAdjustment,
		Reason:    reason,
		CreatedBy: actor,
		CreatedAt: time.Now().UTC(),
	}
	s.movements = append(s.movements, movement)

	saved := movement
	return &saved, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliersByID[supplier.ID] = supplier

	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, sup := range s.suppliersByID {
		suppliers = append(suppliers, sup)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].Name < suppliers[j].Name })
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliersByID[po.SupplierID]; !exists {
		return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, po.SupplierID)
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.Status == "" {
		po.Status = domain.PurchaseOrderDraft
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	s.purchaseOrdersByID[po.ID] = po

	created := clonePurchaseOrder(po)
	return &created, nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := clonePurchaseOrder(po)
	return &copied, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.PurchaseOrder, 0, limit)
	for _, po := range s.purchaseOrdersByID {
		if storeID != "" && po.StoreID != storeID {
			continue
		}
		if status != "" && po.Status != status {
			continue
		}
		orders = append(orders, clonePurchaseOrder(po))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *Store) ReceivePurchaseOrder(_ context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	po, exists := s.purchaseOrdersByID[purchaseOrderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if po.Status == domain.PurchaseOrderReceived {
		return nil, fmt.Errorf("%w: purchase order already received", store.ErrInvalid)
	}

	storeStock := s.stockFor(po.StoreID)
	for _, item := range po.Items {
		storeStock[item.SKU] += item.Qty
		s.movements = append(s.movements, domain.StockMovement{
			ID:              xid.New("mv"),
			StoreID:         po.StoreID,
			SKU:             item.SKU,
			QtyDelta:        item.Qty,
			Type:            domain.MovementPurchase,
			Reason:          "purchase order receipt",
			PurchaseOrderID: po.ID,
			CreatedBy:       receivedBy,
			CreatedAt:       receivedAt,
		})
	}

	po.Status = domain.PurchaseOrderReceived
	po.ReceivedBy = receivedBy
	at := receivedAt
	po.ReceivedAt = &at
	s.purchaseOrdersByID[po.ID] = po

	received := clonePurchaseOrder(po)
	return &received, nil
}

func (s *Store) GetDailyReport(_ context.Context, storeID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{}
	byPayment := make(map[string]*domain.DailyReportPayment)

	for _, sale := range s.salesByID {
		if sale.StoreID != storeID || sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		if sale.Status == domain.SaleStatusPendingApproval {
			report.PendingApprovals++
			continue
		}
		if sale.Status != domain.SaleStatusApproved {
			continue
		}
		report.Sales++
		report.GrossSalesCents += sale.SubtotalCents
		report.DiscountCents += sale.DiscountCents
		report.NetSalesCents += sale.TotalCents

		// amount_paid and remaining drift as payments land; backing the
		// recorded payments out recovers the commit-time figures.
		paidLater := int64(0)
		for _, p := range s.paymentsBySale[sale.ID] {
			paidLater += p.AmountCents
		}
		report.CollectedCents += sale.AmountPaidCents - paidLater
		if sale.PaymentMethod == domain.PayCredit {
			report.CreditIssuedCents += sale.RemainingCents + paidLater
		}

		entry, ok := byPayment[sale.PaymentMethod]
		if !ok {
			entry = &domain.DailyReportPayment{PaymentMethod: sale.PaymentMethod}
			byPayment[sale.PaymentMethod] = entry
		}
		entry.Sales++
		entry.TotalCents += sale.TotalCents
	}

	for _, payments := range s.paymentsBySale {
		for _, p := range payments {
			if p.CreatedAt.Before(from) || !p.CreatedAt.Before(to) {
				continue
			}
			if sale, ok := s.salesByID[p.SaleID]; !ok || sale.StoreID != storeID {
				continue
			}
			report.CollectedCents += p.AmountCents
		}
	}

	for _, entry := range byPayment {
		report.ByPayment = append(report.ByPayment, *entry)
	}
	sort.Slice(report.ByPayment, func(i, j int) bool {
		return report.ByPayment[i].PaymentMethod < report.ByPayment[j].PaymentMethod
	})
	return report, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("%w: username taken", store.ErrInvalid)
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) stockFor(storeID string) map[string]int {
	storeStock, ok := s.stock[storeID]
	if !ok {
		storeStock = make(map[string]int)
		s.stock[storeID] = storeStock
	}
	return storeStock
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	copied := *sale
	copied.Items = make([]domain.SaleItem, len(sale.Items))
	copy(copied.Items, sale.Items)
	if sale.DueDate != nil {
		due := *sale.DueDate
		copied.DueDate = &due
	}
	if sale.ApprovedAt != nil {
		at := *sale.ApprovedAt
		copied.ApprovedAt = &at
	}
	if sale.RejectedAt != nil {
		at := *sale.RejectedAt
		copied.RejectedAt = &at
	}
	return &copied
}

func clonePurchaseOrder(po domain.PurchaseOrder) domain.PurchaseOrder {
	copied := po
	copied.Items = make([]domain.PurchaseOrderItem, len(po.Items))
	copy(copied.Items, po.Items)
	if po.ReceivedAt != nil {
		at := *po.ReceivedAt
		copied.ReceivedAt = &at
	}
	return copied
}
