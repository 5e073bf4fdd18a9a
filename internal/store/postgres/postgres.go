package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/YAOSTEPHANE/batim-sub000/internal/domain"
	"github.com/YAOSTEPHANE/batim-sub000/internal/store"
	"github.com/YAOSTEPHANE/batim-sub000/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category, price_cents, active
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.Category, &p.PriceCents, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalid
	}

	product.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (sku, name, category, price_cents, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
	`, product.SKU, product.Name, product.Category, product.PriceCents, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrInvalid, product.SKU)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT sku, name, category, price_cents, active
		FROM products
		WHERE sku = $1
	`, sku).Scan(&product.SKU, &product.Name, &product.Category, &product.PriceCents, &product.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalid
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_cents = $4, active = $5, updated_at = now()
		WHERE sku = $1
	`, product.SKU, product.Name, product.Category, product.PriceCents, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_price_history (id, sku, old_price_cents, new_price_cents, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.SKU, entry.OldPriceCents, entry.NewPriceCents, nullIfEmpty(entry.ChangedBy), entry.ChangedAt)
	return err
}

func (s *Store) ListPriceHistory(ctx context.Context, sku string, limit int) ([]domain.ProductPriceHistory, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, old_price_cents, new_price_cents, COALESCE(changed_by,''), changed_at
		FROM product_price_history
		WHERE sku = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, sku, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ProductPriceHistory, 0, limit)
	for rows.Next() {
		var entry domain.ProductPriceHistory
		if err := rows.Scan(&entry.ID, &entry.SKU, &entry.OldPriceCents, &entry.NewPriceCents, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, err
		}
		entry.ChangedAt = entry.ChangedAt.UTC()
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, category, price_cents, active
		FROM products
		WHERE active = true AND sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.Category, &p.PriceCents, &p.Active); err != nil {
			return nil, err
		}
		result[p.SKU] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetStockMap(ctx context.Context, storeID string, skus []string) (map[string]int, error) {
	result := make(map[string]int, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, qty
		FROM inventory_stocks
		WHERE store_id = $1 AND sku = ANY($2)
	`, storeID, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var sku string
		var qty int
		if err := rows.Scan(&sku, &qty); err != nil {
			return nil, err
		}
		result[sku] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	client.Name = strings.TrimSpace(client.Name)
	client.Phone = strings.TrimSpace(client.Phone)
	if client.Name == "" || client.CreditLimitCents < 0 {
		return nil, store.ErrInvalid
	}
	if client.ID == "" {
		client.ID = xid.New("cl")
	}
	if client.Status == "" {
		client.Status = domain.ClientActive
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, phone, credit_limit_cents, balance_cents, status, status_reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, client.ID, client.Name, nullIfEmpty(client.Phone), client.CreditLimitCents, client.BalanceCents,
		client.Status, nullIfEmpty(client.StatusReason), client.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalid
		}
		return nil, err
	}

	created := client
	return &created, nil
}

func (s *Store) GetClientByID(ctx context.Context, id string) (*domain.Client, error) {
	var client domain.Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), credit_limit_cents, balance_cents, status, COALESCE(status_reason,''), created_at
		FROM clients
		WHERE id = $1
	`, id).Scan(&client.ID, &client.Name, &client.Phone, &client.CreditLimitCents, &client.BalanceCents,
		&client.Status, &client.StatusReason, &client.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	client.CreatedAt = client.CreatedAt.UTC()
	return &client, nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), credit_limit_cents, balance_cents, status, COALESCE(status_reason,''), created_at
		FROM clients
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 64)
	for rows.Next() {
		var client domain.Client
		if err := rows.Scan(&client.ID, &client.Name, &client.Phone, &client.CreditLimitCents, &client.BalanceCents,
			&client.Status, &client.StatusReason, &client.CreatedAt); err != nil {
			return nil, err
		}
		client.CreatedAt = client.CreatedAt.UTC()
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) SetClientStatus(ctx context.Context, id string, status string, reason string) (*domain.Client, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET status = $2, status_reason = $3
		WHERE id = $1
	`, id, status, nullIfEmpty(reason))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetClientByID(ctx, id)
}

func (s *Store) CommitSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalid
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	skus := uniqueSKUs(sale.Items)
	if len(skus) == 0 {
		return nil, store.ErrInvalid
	}

	productRows, err := pgTx.QueryContext(ctx, `
		SELECT sku
		FROM products
		WHERE active = true AND sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, classify(err)
	}
	activeSKUs := make(map[string]bool, len(skus))
	for productRows.Next() {
		var sku string
		if err := productRows.Scan(&sku); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		activeSKUs[sku] = true
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	stockMap, err := lockStock(ctx, pgTx, sale.StoreID, skus)
	if err != nil {
		return nil, classify(err)
	}

	// Demand is summed per SKU before the availability check so a cart with
	// duplicate lines cannot drive stock negative.
	required := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalid
		}
		if !activeSKUs[item.SKU] {
			return nil, fmt.Errorf("%w: sku %s unavailable", store.ErrInvalid, item.SKU)
		}
		required[item.SKU] += item.Qty
	}
	for sku, qty := range required {
		if available := stockMap[sku]; available < qty {
			return nil, fmt.Errorf("%w: sku %s has %d, requested %d", store.ErrInsufficientStock, sku, available, qty)
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	applyEffects := sale.Status == domain.SaleStatusApproved
	creditEffect := applyEffects && sale.PaymentMethod == domain.PayCredit && sale.RemainingCents > 0 && sale.ClientID != ""

	// A credit sale always verifies the account, even when tendered in full;
	// the limit check and balance increment apply only when effects do.
	if sale.PaymentMethod == domain.PayCredit && sale.ClientID != "" {
		var balance, limit int64
		var status string
		err = pgTx.QueryRowContext(ctx, `
			SELECT balance_cents, credit_limit_cents, status
			FROM clients
			WHERE id = $1
			FOR UPDATE
		`, sale.ClientID).Scan(&balance, &limit, &status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: client %s", store.ErrNotFound, sale.ClientID)
			}
			return nil, classify(err)
		}
		if status != domain.ClientActive {
			return nil, fmt.Errorf("%w: status %s", store.ErrClientBlocked, status)
		}
		if creditEffect {
			if limit > 0 && balance+sale.RemainingCents > limit {
				return nil, fmt.Errorf("%w: balance %d + sale %d exceeds limit %d", store.ErrCreditLimit, balance, sale.RemainingCents, limit)
			}
			_, err = pgTx.ExecContext(ctx, `
				UPDATE clients
				SET balance_cents = balance_cents + $2
				WHERE id = $1
			`, sale.ClientID, sale.RemainingCents)
			if err != nil {
				return nil, classify(err)
			}
		}
	}

	if applyEffects {
		for _, item := range sale.Items {
			movement := domain.StockMovement{
				StoreID:   sale.StoreID,
				SKU:       item.SKU,
				QtyDelta:  -item.Qty,
				Type:      domain.MovementSale,
				Reason:    "sale",
				SaleID:    sale.ID,
				CreatedBy: sale.CashierUsername,
				CreatedAt: sale.CreatedAt,
			}
			if err := applyStockDelta(ctx, pgTx, movement); err != nil {
				return nil, classify(err)
			}
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, number, store_id, client_id, customer_name, payment_method, payment_reference,
			subtotal_cents, discount_cents, total_cents, amount_paid_cents, remaining_cents,
			due_date, status, payment_status, requires_approval,
			approved_by, approved_at, rejected_by, rejected_at, cashier_username, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	`, sale.ID, sale.Number, sale.StoreID, nullIfEmpty(sale.ClientID), nullIfEmpty(sale.CustomerName),
		sale.PaymentMethod, nullIfEmpty(sale.PaymentReference), sale.SubtotalCents, sale.DiscountCents,
		sale.TotalCents, sale.AmountPaidCents, sale.RemainingCents, nullTime(sale.DueDate),
		sale.Status, sale.PaymentStatus, sale.RequiresApproval,
		nullIfEmpty(sale.ApprovedBy), nullTime(sale.ApprovedAt), nullIfEmpty(sale.RejectedBy),
		nullTime(sale.RejectedAt), nullIfEmpty(sale.CashierUsername), sale.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}

	for _, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, sku, qty, unit_price_cents, discount_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, item.SKU, item.Qty, item.UnitPriceCents, item.DiscountCents, item.LineTotalCents)
		if err != nil {
			return nil, classify(err)
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, classify(err)
	}

	return &sale, nil
}

func (s *Store) ApproveSale(ctx context.Context, saleID string, approvedBy string, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := lockSale(ctx, pgTx, saleID)
	if err != nil {
		return nil, classify(err)
	}
	if sale.Status != domain.SaleStatusPendingApproval {
		return nil, fmt.Errorf("%w: sale already decided", store.ErrInvalid)
	}

	// Stock may have moved while the sale waited for a decision. Availability
	// is re-checked here; a shortfall leaves the sale pending.
	skus := uniqueSKUs(sale.Items)
	stockMap, err := lockStock(ctx, pgTx, sale.StoreID, skus)
	if err != nil {
		return nil, classify(err)
	}
	required := make(map[string]int, len(sale.Items))
	for _, item := range sale.Items {
		required[item.SKU] += item.Qty
	}
	for sku, qty := range required {
		if available := stockMap[sku]; available < qty {
			return nil, fmt.Errorf("%w: sku %s has %d, requested %d", store.ErrInsufficientStock, sku, available, qty)
		}
	}

	for _, item := range sale.Items {
		movement := domain.StockMovement{
			StoreID:   sale.StoreID,
			SKU:       item.SKU,
			QtyDelta:  -item.Qty,
			Type:      domain.MovementSale,
			Reason:    "sale",
			SaleID:    sale.ID,
			CreatedBy: approvedBy,
			CreatedAt: at,
		}
		if err := applyStockDelta(ctx, pgTx, movement); err != nil {
			return nil, classify(err)
		}
	}

	if sale.PaymentMethod == domain.PayCredit && sale.RemainingCents > 0 && sale.ClientID != "" {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE clients
			SET balance_cents = balance_cents + $2
			WHERE id = $1
		`, sale.ClientID, sale.RemainingCents)
		if err != nil {
			return nil, classify(err)
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, requires_approval = false, approved_by = $3, approved_at = $4
		WHERE id = $1
	`, saleID, domain.SaleStatusApproved, approvedBy, at)
	if err != nil {
		return nil, classify(err)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, classify(err)
	}

	sale.Status = domain.SaleStatusApproved
	sale.RequiresApproval = false
	sale.ApprovedBy = approvedBy
	approvedAt := at
	sale.ApprovedAt = &approvedAt
	return sale, nil
}

func (s *Store) RejectSale(ctx context.Context, saleID string, rejectedBy string, at time.Time) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := lockSale(ctx, pgTx, saleID)
	if err != nil {
		return nil, classify(err)
	}
	if sale.Status != domain.SaleStatusPendingApproval {
		return nil, fmt.Errorf("%w: sale already decided", store.ErrInvalid)
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET status = $2, requires_approval = false, rejected_by = $3, rejected_at = $4
		WHERE id = $1
	`, saleID, domain.SaleStatusRejected, rejectedBy, at)
	if err != nil {
		return nil, classify(err)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, classify(err)
	}

	sale.Status = domain.SaleStatusRejected
	sale.RequiresApproval = false
	sale.RejectedBy = rejectedBy
	rejectedAt := at
	sale.RejectedAt = &rejectedAt
	return sale, nil
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadSaleItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, storeID string, status string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at ASC
		LIMIT $3
	`, storeID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales, ids, err := collectSales(rows, limit)
	if err != nil {
		return nil, err
	}
	return s.attachSaleItems(ctx, sales, ids)
}

func (s *Store) ListUnpaidCreditSales(ctx context.Context, clientID string) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE client_id = $1
			AND payment_method = $2
			AND status = $3
			AND remaining_cents > 0
		ORDER BY created_at ASC
	`, clientID, domain.PayCredit, domain.SaleStatusApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales, ids, err := collectSales(rows, 32)
	if err != nil {
		return nil, err
	}
	return s.attachSaleItems(ctx, sales, ids)
}

func (s *Store) ListCreditSales(ctx context.Context, storeID string, since time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE payment_method = $1
			AND ($2 = '' OR store_id = $2)
			AND created_at >= $3
		ORDER BY created_at ASC
	`, domain.PayCredit, storeID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales, ids, err := collectSales(rows, 64)
	if err != nil {
		return nil, err
	}
	return s.attachSaleItems(ctx, sales, ids)
}

func (s *Store) ApplyPayment(ctx context.Context, payment domain.Payment) (*domain.Payment, *domain.Sale, error) {
	if payment.AmountCents < 1 {
		return nil, nil, store.ErrInvalid
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := lockSale(ctx, pgTx, payment.SaleID)
	if err != nil {
		return nil, nil, classify(err)
	}
	if sale.Status != domain.SaleStatusApproved {
		return nil, nil, fmt.Errorf("%w: sale is %s, not payable", store.ErrInvalid, sale.Status)
	}
	if payment.AmountCents > sale.RemainingCents {
		return nil, nil, fmt.Errorf("%w: amount %d exceeds remaining %d", store.ErrInvalid, payment.AmountCents, sale.RemainingCents)
	}
	if payment.ClientID == "" {
		payment.ClientID = sale.ClientID
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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO payments (id, sale_id, client_id, amount_cents, method, notes, received_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, payment.ID, payment.SaleID, nullIfEmpty(payment.ClientID), payment.AmountCents, payment.Method,
		nullIfEmpty(payment.Notes), nullIfEmpty(payment.ReceivedBy), payment.CreatedAt)
	if err != nil {
		return nil, nil, classify(err)
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET amount_paid_cents = $2, remaining_cents = $3, payment_status = $4
		WHERE id = $1
	`, sale.ID, sale.AmountPaidCents, sale.RemainingCents, sale.PaymentStatus)
	if err != nil {
		return nil, nil, classify(err)
	}

	if payment.ClientID != "" {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE clients
			SET balance_cents = balance_cents - $2
			WHERE id = $1
		`, payment.ClientID, payment.AmountCents)
		if err != nil {
			return nil, nil, classify(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, nil, err
		}
		if affected == 0 {
			return nil, nil, fmt.Errorf("%w: client %s", store.ErrNotFound, payment.ClientID)
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, nil, classify(err)
	}

	saved := payment
	return &saved, sale, nil
}

func (s *Store) ListPaymentsBySale(ctx context.Context, saleID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, COALESCE(client_id,''), amount_cents, method, COALESCE(notes,''), COALESCE(received_by,''), created_at
		FROM payments
		WHERE sale_id = $1
		ORDER BY created_at ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 8)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.ClientID, &p.AmountCents, &p.Method, &p.Notes, &p.ReceivedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) ListStockMovements(ctx context.Context, storeID string, sku string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, sku, qty_delta, type, reason, COALESCE(sale_id,''), COALESCE(purchase_order_id,''), COALESCE(created_by,''), created_at
		FROM stock_movements
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR sku = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, storeID, sku, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var mv domain.StockMovement
		if err := rows.Scan(&mv.ID, &mv.StoreID, &mv.SKU, &mv.QtyDelta, &mv.Type, &mv.Reason,
			&mv.SaleID, &mv.PurchaseOrderID, &mv.CreatedBy, &mv.CreatedAt); err != nil {
			return nil, err
		}
		mv.CreatedAt = mv.CreatedAt.UTC()
		movements = append(movements, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) AdjustStock(ctx context.Context, storeID string, sku string, countedQty int, reason string, actor string) (*domain.StockMovement, error) {
	if countedQty < 0 {
		return nil, store.ErrInvalid
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var exists bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE sku = $1)
	`, sku).Scan(&exists)
	if err != nil {
		return nil, classify(err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	stockMap, err := lockStock(ctx, pgTx, storeID, []string{sku})
	if err != nil {
		return nil, classify(err)
	}
	delta := countedQty - stockMap[sku]
	if delta == 0 {
		return nil, nil
	}

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
	if err := applyStockDelta(ctx, pgTx, movement); err != nil {
		return nil, classify(err)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, classify(err)
	}

	return &movement, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Phone = strings.TrimSpace(supplier.Phone)
	if supplier.Name == "" {
		return nil, store.ErrInvalid
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalid
		}
		return nil, err
	}
	saved := supplier
	return &saved, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), created_at
		FROM suppliers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 64)
	for rows.Next() {
		var item domain.Supplier
		if err := rows.Scan(&item.ID, &item.Name, &item.Phone, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		suppliers = append(suppliers, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = time.Now().UTC()
	}
	if po.Status == "" {
		po.Status = domain.PurchaseOrderDraft
	}
	if po.StoreID == "" || po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrInvalid
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, store_id, supplier_id, status, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, po.ID, po.StoreID, po.SupplierID, po.Status, po.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items := make([]domain.PurchaseOrderItem, 0, len(po.Items))
	for _, item := range po.Items {
		item.SKU = strings.ToUpper(strings.TrimSpace(item.SKU))
		if item.SKU == "" || item.Qty < 1 || item.CostCents < 1 {
			return nil, store.ErrInvalid
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (purchase_order_id, sku, qty, cost_cents)
			VALUES ($1,$2,$3,$4)
		`, po.ID, item.SKU, item.Qty, item.CostCents)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		items = append(items, item)
	}
	po.Items = items

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := po
	return &saved, nil
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, purchaseOrderID string) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var receivedAt sql.NullTime
	var receivedBy sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, supplier_id, status, created_at, received_at, received_by
		FROM purchase_orders
		WHERE id = $1
	`, purchaseOrderID).Scan(
		&po.ID,
		&po.StoreID,
		&po.SupplierID,
		&po.Status,
		&po.CreatedAt,
		&receivedAt,
		&receivedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	po.CreatedAt = po.CreatedAt.UTC()
	if receivedAt.Valid {
		at := receivedAt.Time.UTC()
		po.ReceivedAt = &at
	}
	if receivedBy.Valid {
		po.ReceivedBy = receivedBy.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, qty, cost_cents
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id ASC
	`, po.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.SKU, &item.Qty, &item.CostCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	po.Items = items
	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, storeID string, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, supplier_id, status, created_at, received_at, received_by
		FROM purchase_orders
		WHERE ($1 = '' OR store_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, storeID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.PurchaseOrder, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var po domain.PurchaseOrder
		var receivedAt sql.NullTime
		var receivedBy sql.NullString
		if err := rows.Scan(&po.ID, &po.StoreID, &po.SupplierID, &po.Status, &po.CreatedAt, &receivedAt, &receivedBy); err != nil {
			return nil, err
		}
		po.CreatedAt = po.CreatedAt.UTC()
		if receivedAt.Valid {
			at := receivedAt.Time.UTC()
			po.ReceivedAt = &at
		}
		if receivedBy.Valid {
			po.ReceivedBy = receivedBy.String
		}
		result = append(result, po)
		ids = append(ids, po.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return result, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT purchase_order_id, sku, qty, cost_cents
		FROM purchase_order_items
		WHERE purchase_order_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemMap := make(map[string][]domain.PurchaseOrderItem, len(ids))
	for itemRows.Next() {
		var poID string
		var item domain.PurchaseOrderItem
		if err := itemRows.Scan(&poID, &item.SKU, &item.Qty, &item.CostCents); err != nil {
			return nil, err
		}
		itemMap[poID] = append(itemMap[poID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		result[i].Items = itemMap[result[i].ID]
	}
	return result, nil
}

func (s *Store) ReceivePurchaseOrder(ctx context.Context, purchaseOrderID string, receivedBy string, receivedAt time.Time) (*domain.PurchaseOrder, error) {
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	receivedBy = strings.TrimSpace(receivedBy)
	if receivedBy == "" {
		receivedBy = "system"
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var po domain.PurchaseOrder
	err = tx.QueryRowContext(ctx, `
		SELECT id, store_id, supplier_id, status, created_at
		FROM purchase_orders
		WHERE id = $1
		FOR UPDATE
	`, purchaseOrderID).Scan(&po.ID, &po.StoreID, &po.SupplierID, &po.Status, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}
	po.CreatedAt = po.CreatedAt.UTC()
	if po.Status == domain.PurchaseOrderReceived {
		return nil, fmt.Errorf("%w: purchase order already received", store.ErrInvalid)
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT sku, qty, cost_cents
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id ASC
	`, purchaseOrderID)
	if err != nil {
		return nil, classify(err)
	}
	items := make([]domain.PurchaseOrderItem, 0, 8)
	for itemRows.Next() {
		var item domain.PurchaseOrderItem
		if err := itemRows.Scan(&item.SKU, &item.Qty, &item.CostCents); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()
	if len(items) == 0 {
		return nil, store.ErrInvalid
	}
	po.Items = items

	for _, item := range items {
		movement := domain.StockMovement{
			StoreID:         po.StoreID,
			SKU:             item.SKU,
			QtyDelta:        item.Qty,
			Type:            domain.MovementPurchase,
			Reason:          "purchase order receipt",
			PurchaseOrderID: po.ID,
			CreatedBy:       receivedBy,
			CreatedAt:       receivedAt,
		}
		if err := applyStockDelta(ctx, tx, movement); err != nil {
			return nil, classify(err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE purchase_orders
		SET status = $2, received_by = $3, received_at = $4
		WHERE id = $1
	`, purchaseOrderID, domain.PurchaseOrderReceived, receivedBy, receivedAt)
	if err != nil {
		return nil, classify(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}

	po.Status = domain.PurchaseOrderReceived
	po.ReceivedBy = receivedBy
	at := receivedAt
	po.ReceivedAt = &at
	return &po, nil
}

func (s *Store) GetDailyReport(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	var report domain.DailyReport

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $4),
			COALESCE(SUM(subtotal_cents) FILTER (WHERE status = $4), 0),
			COALESCE(SUM(discount_cents) FILTER (WHERE status = $4), 0),
			COALESCE(SUM(total_cents) FILTER (WHERE status = $4), 0),
			COALESCE(SUM(amount_paid_cents) FILTER (WHERE status = $4), 0),
			COALESCE(SUM(remaining_cents) FILTER (WHERE status = $4 AND payment_method = $5), 0),
			COUNT(*) FILTER (WHERE status = $6)
		FROM sales
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3
	`, storeID, from, to, domain.SaleStatusApproved, domain.PayCredit, domain.SaleStatusPendingApproval).Scan(
		&report.Sales,
		&report.GrossSalesCents,
		&report.DiscountCents,
		&report.NetSalesCents,
		&report.CollectedCents,
		&report.CreditIssuedCents,
		&report.PendingApprovals,
	)
	if err != nil {
		return domain.DailyReport{}, err
	}

	// amount_paid and remaining on a sale drift as payments land; backing the
	// recorded payments out recovers the commit-time figures.
	var paidOnWindowSales, paidOnWindowCredit int64
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(p.amount_cents), 0),
			COALESCE(SUM(p.amount_cents) FILTER (WHERE s.payment_method = $4), 0)
		FROM payments p
		JOIN sales s ON s.id = p.sale_id
		WHERE s.store_id = $1 AND s.created_at >= $2 AND s.created_at < $3
	`, storeID, from, to, domain.PayCredit).Scan(&paidOnWindowSales, &paidOnWindowCredit)
	if err != nil {
		return domain.DailyReport{}, err
	}
	report.CollectedCents -= paidOnWindowSales
	report.CreditIssuedCents += paidOnWindowCredit

	var collectedLater int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(p.amount_cents), 0)
		FROM payments p
		JOIN sales s ON s.id = p.sale_id
		WHERE s.store_id = $1 AND p.created_at >= $2 AND p.created_at < $3
	`, storeID, from, to).Scan(&collectedLater)
	if err != nil {
		return domain.DailyReport{}, err
	}
	report.CollectedCents += collectedLater

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*), COALESCE(SUM(total_cents), 0)
		FROM sales
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3 AND status = $4
		GROUP BY payment_method
		ORDER BY payment_method ASC
	`, storeID, from, to, domain.SaleStatusApproved)
	if err != nil {
		return domain.DailyReport{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.DailyReportPayment
		if err := rows.Scan(&entry.PaymentMethod, &entry.Sales, &entry.TotalCents); err != nil {
			return domain.DailyReport{}, err
		}
		report.ByPayment = append(report.ByPayment, entry)
	}
	if err := rows.Err(); err != nil {
		return domain.DailyReport{}, err
	}
	return report, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, COALESCE(entity_id,''), COALESCE(detail,''), created_at
		FROM audit_logs
		WHERE store_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalid
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username taken", store.ErrInvalid)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalid
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const saleColumns = `id, number, store_id, client_id, customer_name, payment_method, payment_reference,
	subtotal_cents, discount_cents, total_cents, amount_paid_cents, remaining_cents,
	due_date, status, payment_status, requires_approval,
	approved_by, approved_at, rejected_by, rejected_at, cashier_username, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var clientID, customerName, paymentReference sql.NullString
	var approvedBy, rejectedBy, cashier sql.NullString
	var dueDate, approvedAt, rejectedAt sql.NullTime
	err := row.Scan(
		&sale.ID, &sale.Number, &sale.StoreID, &clientID, &customerName,
		&sale.PaymentMethod, &paymentReference,
		&sale.SubtotalCents, &sale.DiscountCents, &sale.TotalCents,
		&sale.AmountPaidCents, &sale.RemainingCents,
		&dueDate, &sale.Status, &sale.PaymentStatus, &sale.RequiresApproval,
		&approvedBy, &approvedAt, &rejectedBy, &rejectedAt, &cashier, &sale.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	sale.ClientID = clientID.String
	sale.CustomerName = customerName.String
	sale.PaymentReference = paymentReference.String
	sale.ApprovedBy = approvedBy.String
	sale.RejectedBy = rejectedBy.String
	sale.CashierUsername = cashier.String
	sale.CreatedAt = sale.CreatedAt.UTC()
	if dueDate.Valid {
		at := dueDate.Time.UTC()
		sale.DueDate = &at
	}
	if approvedAt.Valid {
		at := approvedAt.Time.UTC()
		sale.ApprovedAt = &at
	}
	if rejectedAt.Valid {
		at := rejectedAt.Time.UTC()
		sale.RejectedAt = &at
	}
	return &sale, nil
}

func collectSales(rows *sql.Rows, sizeHint int) ([]domain.Sale, []string, error) {
	sales := make([]domain.Sale, 0, sizeHint)
	ids := make([]string, 0, sizeHint)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, nil, err
		}
		sales = append(sales, *sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return sales, ids, nil
}

func (s *Store) loadSaleItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleItem, error) {
	itemMap := make(map[string][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return itemMap, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, sku, qty, unit_price_cents, discount_cents, line_total_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id ASC
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var item domain.SaleItem
		if err := rows.Scan(&saleID, &item.SKU, &item.Qty, &item.UnitPriceCents, &item.DiscountCents, &item.LineTotalCents); err != nil {
			return nil, err
		}
		itemMap[saleID] = append(itemMap[saleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return itemMap, nil
}

func (s *Store) attachSaleItems(ctx context.Context, sales []domain.Sale, ids []string) ([]domain.Sale, error) {
	itemMap, err := s.loadSaleItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = itemMap[sales[i].ID]
	}
	return sales, nil
}

// lockSale reads the full sale row with its lines under FOR UPDATE.
func lockSale(ctx context.Context, tx *sql.Tx, saleID string) (*domain.Sale, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT sku, qty, unit_price_cents, discount_cents, line_total_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.SKU, &item.Qty, &item.UnitPriceCents, &item.DiscountCents, &item.LineTotalCents); err != nil {
			_ = rows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	sale.Items = items
	return sale, nil
}

// lockStock reads on-hand quantities under FOR UPDATE. SKUs without a stock
// row come back as zero.
func lockStock(ctx context.Context, tx *sql.Tx, storeID string, skus []string) (map[string]int, error) {
	stockMap := make(map[string]int, len(skus))
	if len(skus) == 0 {
		return stockMap, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT sku, qty
		FROM inventory_stocks
		WHERE store_id = $1 AND sku = ANY($2)
		FOR UPDATE
	`, storeID, skus)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sku string
		var qty int
		if err := rows.Scan(&sku, &qty); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stockMap[sku] = qty
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	return stockMap, nil
}

// applyStockDelta mutates one stock row and records the matching ledger entry
// inside the caller's transaction. Every on-hand change in the system goes
// through here, so the movement ledger always sums to the stock level.
func applyStockDelta(ctx context.Context, tx *sql.Tx, movement domain.StockMovement) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_stocks (store_id, sku, qty, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (store_id, sku)
		DO UPDATE SET qty = inventory_stocks.qty + EXCLUDED.qty, updated_at = now()
	`, movement.StoreID, movement.SKU, movement.QtyDelta)
	if err != nil {
		return err
	}

	if movement.ID == "" {
		movement.ID = xid.New("mv")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, store_id, sku, qty_delta, type, reason, sale_id, purchase_order_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, movement.ID, movement.StoreID, movement.SKU, movement.QtyDelta, movement.Type, movement.Reason,
		nullIfEmpty(movement.SaleID), nullIfEmpty(movement.PurchaseOrderID), nullIfEmpty(movement.CreatedBy), movement.CreatedAt)
	return err
}

func uniqueSKUs(items []domain.SaleItem) []string {
	if len(items) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.SKU == "" {
			continue
		}
		set[item.SKU] = struct{}{}
	}

	skus := make([]string, 0, len(set))
	for sku := range set {
		skus = append(skus, sku)
	}
	sort.Strings(skus)
	return skus
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// classify maps Postgres serialization failures (40001) and deadlocks (40P01)
// to ErrConflict so callers can retry the whole operation.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Code)
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
