package store

import (
	"context"
	"errors"
	"time"

	"github.com/YAOSTEPHANE/batim-sub000/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid request")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCreditLimit       = errors.New("credit limit exceeded")
	ErrClientBlocked     = errors.New("client account blocked")
	// ErrConflict marks a write conflict reported by the transactional store.
	// The operation left no partial state and is safe to resubmit unchanged.
	ErrConflict = errors.New("concurrent update conflict")
)

// Repository is the persistence contract. Operations that touch more than one
// aggregate (CommitSale, ApproveSale, ApplyPayment, ReceivePurchaseOrder,
// AdjustStock) are atomic: the implementation opens one transaction, re-reads
// every row it will mutate, and commits or rolls back as a whole.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)
	GetStockMap(ctx context.Context, storeID string, skus []string) (map[string]int, error)

	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClientByID(ctx context.Context, id string) (*domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	SetClientStatus(ctx context.Context, id string, status string, reason string) (*domain.Client, error)

	// CommitSale persists the sale and, when sale.Status is approved, applies
	// its stock and balance effects in the same transaction. Stock levels and
	// the client's credit headroom are re-read under the transaction.
	CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ApproveSale(ctx context.Context, saleID string, approvedBy string, at time.Time) (*domain.Sale, error)
	RejectSale(ctx context.Context, saleID string, rejectedBy string, at time.Time) (*domain.Sale, error)
	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, storeID string, status string, limit int) ([]domain.Sale, error)
	ListUnpaidCreditSales(ctx context.Context, clientID string) ([]domain.Sale, error)
	ListCreditSales(ctx context.Context, storeID string, since time.Time) ([]domain.Sale, error)

	ApplyPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, *domain.Sale, error)
	ListPaymentsBySale(ctx context.Context, saleID string) ([]domain.Payment, error)

	ListStockMovements(ctx context.Context, storeID string, sku string, limit int) ([]domain.StockMovement, error)
	AdjustStock(ctx context.Context, storeID string, sku string, countedQty int, reason string, actor string) (*domain.StockMovement, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error)
	ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error)

	GetDailyReport(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.DailyReport, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
