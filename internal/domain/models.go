package domain

import "time"

type Product struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	Active     bool   `json:"active"`
}

type ProductCreateRequest struct {
	StoreID      string `json:"store_id"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	PriceCents   int64  `json:"price_cents"`
	InitialStock int    `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Category   *string `json:"category,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type ProductPriceHistory struct {
	ID            string    `json:"id"`
	SKU           string    `json:"sku"`
	OldPriceCents int64     `json:"old_price_cents"`
	NewPriceCents int64     `json:"new_price_cents"`
	ChangedBy     string    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

type Client struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	CreditLimitCents int64     `json:"credit_limit_cents"`
	BalanceCents     int64     `json:"balance_cents"`
	Status           string    `json:"status"`
	StatusReason     string    `json:"status_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type ClientCreateRequest struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	CreditLimitCents int64  `json:"credit_limit_cents"`
}

type ClientStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type SaleItem struct {
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	DiscountCents  int64  `json:"discount_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type Sale struct {
	ID               string     `json:"id"`
	Number           string     `json:"number"`
	StoreID          string     `json:"store_id"`
	ClientID         string     `json:"client_id,omitempty"`
	CustomerName     string     `json:"customer_name,omitempty"`
	PaymentMethod    string     `json:"payment_method"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	SubtotalCents    int64      `json:"subtotal_cents"`
	DiscountCents    int64      `json:"discount_cents"`
	TotalCents       int64      `json:"total_cents"`
	AmountPaidCents  int64      `json:"amount_paid_cents"`
	RemainingCents   int64      `json:"remaining_cents"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"payment_status"`
	RequiresApproval bool       `json:"requires_approval"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	RejectedBy       string     `json:"rejected_by,omitempty"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty"`
	CashierUsername  string     `json:"cashier_username,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	Items            []SaleItem `json:"items"`
}

// IsPaid reports whether the sale has no remaining balance.
func (s Sale) IsPaid() bool {
	return s.PaymentStatus == SalePaid
}

type SaleItemRequest struct {
	SKU            string `json:"sku"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	DiscountCents  int64  `json:"discount_cents"`
}

type SaleRequest struct {
	StoreID          string            `json:"store_id"`
	Items            []SaleItemRequest `json:"items"`
	PaymentMethod    string            `json:"payment_method"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	AmountPaidCents  int64             `json:"amount_paid_cents"`
	DiscountCents    int64             `json:"discount_cents"`
	ClientID         string            `json:"client_id,omitempty"`
	CustomerName     string            `json:"customer_name,omitempty"`
	DueDate          string            `json:"due_date,omitempty"`
}

type SaleResponse struct {
	Sale             Sale  `json:"sale"`
	RequiresApproval bool  `json:"requires_approval"`
	ChangeCents      int64 `json:"change_cents"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type StockMovement struct {
	ID              string    `json:"id"`
	StoreID         string    `json:"store_id"`
	SKU             string    `json:"sku"`
	QtyDelta        int       `json:"qty_delta"`
	Type            string    `json:"type"`
	Reason          string    `json:"reason"`
	SaleID          string    `json:"sale_id,omitempty"`
	PurchaseOrderID string    `json:"purchase_order_id,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type StockMovementListResponse struct {
	Movements []StockMovement `json:"movements"`
}

type Payment struct {
	ID          string    `json:"id"`
	SaleID      string    `json:"sale_id"`
	ClientID    string    `json:"client_id,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
	Notes       string    `json:"notes,omitempty"`
	ReceivedBy  string    `json:"received_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaymentRequest struct {
	SaleID      string `json:"sale_id"`
	ClientID    string `json:"client_id,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"payment_method"`
	Notes       string `json:"notes,omitempty"`
}

type PaymentResponse struct {
	Payment Payment `json:"payment"`
	Sale    Sale    `json:"sale"`
}

// CreditAssessment is the checkout-time risk decision for one client.
type CreditAssessment struct {
	ShouldAutoBlock  bool `json:"should_auto_block"`
	OldestUnpaidDays int  `json:"oldest_unpaid_days"`
}

// CreditReport aggregates receivable health for reporting dashboards.
type CreditReport struct {
	StoreID              string  `json:"store_id"`
	GeneratedAt          string  `json:"generated_at"`
	TotalIssuedCents     int64   `json:"total_issued_cents"`
	OutstandingCents     int64   `json:"outstanding_cents"`
	OverdueCents         int64   `json:"overdue_cents"`
	OverdueClients       int     `json:"overdue_clients"`
	DaysSalesOutstanding float64 `json:"days_sales_outstanding"`
	BadDebtRate          float64 `json:"bad_debt_rate"`
}

type StockAdjustmentItem struct {
	SKU        string `json:"sku"`
	CountedQty int    `json:"counted_qty"`
}

type StockAdjustmentRequest struct {
	StoreID string                `json:"store_id"`
	Reason  string                `json:"reason"`
	Items   []StockAdjustmentItem `json:"items"`
}

type StockAdjustmentResult struct {
	SKU        string `json:"sku"`
	SystemQty  int    `json:"system_qty"`
	CountedQty int    `json:"counted_qty"`
	DeltaQty   int    `json:"delta_qty"`
}

type StockAdjustmentResponse struct {
	AdjustmentID string                  `json:"adjustment_id"`
	StoreID      string                  `json:"store_id"`
	Reason       string                  `json:"reason"`
	Results      []StockAdjustmentResult `json:"results"`
	CreatedAt    string                  `json:"created_at"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type PurchaseOrderItem struct {
	SKU       string `json:"sku"`
	Qty       int    `json:"qty"`
	CostCents int64  `json:"cost_cents"`
}

type PurchaseOrder struct {
	ID         string              `json:"id"`
	StoreID    string              `json:"store_id"`
	SupplierID string              `json:"supplier_id"`
	Status     string              `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	ReceivedAt *time.Time          `json:"received_at,omitempty"`
	ReceivedBy string              `json:"received_by,omitempty"`
	Items      []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderCreateRequest struct {
	StoreID    string              `json:"store_id"`
	SupplierID string              `json:"supplier_id"`
	Items      []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderReceiveRequest struct {
	ReceivedBy string `json:"received_by"`
}

type PurchaseOrderResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
}

type PurchaseOrderListResponse struct {
	PurchaseOrders []PurchaseOrder `json:"purchase_orders"`
}

type DailyReportPayment struct {
	PaymentMethod string `json:"payment_method"`
	Sales         int64  `json:"sales"`
	TotalCents    int64  `json:"total_cents"`
}

type DailyReport struct {
	StoreID           string               `json:"store_id"`
	Date              string               `json:"date"`
	Sales             int64                `json:"sales"`
	GrossSalesCents   int64                `json:"gross_sales_cents"`
	DiscountCents     int64                `json:"discount_cents"`
	NetSalesCents     int64                `json:"net_sales_cents"`
	CollectedCents    int64                `json:"collected_cents"`
	CreditIssuedCents int64                `json:"credit_issued_cents"`
	PendingApprovals  int64                `json:"pending_approvals"`
	ByPayment         []DailyReportPayment `json:"by_payment"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	SaleStatusPendingApproval = "pending_approval"
	SaleStatusApproved        = "approved"
	SaleStatusRejected        = "rejected"
)

const (
	SaleUnpaid        = "unpaid"
	SalePartiallyPaid = "partially_paid"
	SalePaid          = "paid"
)

const (
	ClientActive     = "active"
	ClientBlocked    = "blocked"
	ClientLitigation = "litigation"
)

const (
	PayCash        = "cash"
	PayMobileMoney = "mobile_money"
	PayCard        = "card"
	PayCredit      = "credit"
)

const (
	MovementSale       = "sale"
	MovementPurchase   = "purchase"
	MovementAdjustment = "adjustment"
)

const (
	PurchaseOrderDraft    = "draft"
	PurchaseOrderReceived = "received"
)
