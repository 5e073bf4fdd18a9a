package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/YAOSTEPHANE/batim-sub000/internal/domain"
	"github.com/YAOSTEPHANE/batim-sub000/internal/service"
	"github.com/YAOSTEPHANE/batim-sub000/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

// generateCSRFToken returns a token valid for the current hour bucket.
func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current or
// previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, "cashier", "admin"))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/clients", a.requireAuth(a.handleClients, "cashier", "admin"))
	mux.HandleFunc("/api/v1/clients/", a.requireAuth(a.handleClientActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales, "cashier", "admin"))
	mux.HandleFunc("/api/v1/sales/", a.requireAuth(a.handleSaleActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/payments", a.requireAuth(a.handlePayments, "cashier", "admin"))
	mux.HandleFunc("/api/v1/stock-movements", a.requireAuth(a.handleStockMovements, "cashier", "admin"))

	mux.HandleFunc("/api/v1/inventory/adjustments", a.requireAuth(a.handleStockAdjustments, "admin"))
	mux.HandleFunc("/api/v1/suppliers", a.requireAuth(a.handleSuppliers, "admin"))
	mux.HandleFunc("/api/v1/purchase-orders", a.requireAuth(a.handlePurchaseOrders, "admin"))
	mux.HandleFunc("/api/v1/purchase-orders/", a.requireAuth(a.handlePurchaseOrderActions, "admin"))
	mux.HandleFunc("/api/v1/reports/daily", a.requireAuth(a.handleDailyReport, "admin"))
	mux.HandleFunc("/api/v1/reports/credit", a.requireAuth(a.handleCreditReport, "admin"))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "admin"))
	mux.HandleFunc("/api/v1/users/cashiers", a.requireAuth(a.handleCashiers, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless CSRF token valid for the current hour bucket.
// Clients must include this token in the X-CSRF-Token header for all mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// csrfExemptPaths lists paths that are exempt from CSRF validation.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces CSRF token validation for state-changing methods (POST/PUT/PATCH).
// Returns false and writes an error response if validation fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/products/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("product sku required"))
		return
	}

	if strings.HasSuffix(tail, "/price-history") {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		sku := strings.Trim(strings.TrimSuffix(tail, "/price-history"), "/")
		if sku == "" {
			writeError(w, http.StatusBadRequest, errors.New("product sku required"))
			return
		}

		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
		history, err := a.service.ListProductPriceHistory(r.Context(), sku, limit)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": history})
		return
	}

	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := a.service.UpdateProduct(r.Context(), tail, req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": updated})
}

func (a *API) handleClients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		clients, err := a.service.ListClients(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
	case http.MethodPost:
		var req domain.ClientCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		client, err := a.service.CreateClient(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"client": client})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleClientActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/clients/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("client id required"))
		return
	}

	if strings.HasSuffix(tail, "/status") {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		clientID := strings.Trim(strings.TrimSuffix(tail, "/status"), "/")
		if clientID == "" {
			writeError(w, http.StatusBadRequest, errors.New("client id required"))
			return
		}

		var req domain.ClientStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		client, err := a.service.SetClientStatus(r.Context(), clientID, req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"client": client})
		return
	}

	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	client, err := a.service.GetClient(r.Context(), tail)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client": client})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		query := r.URL.Query()
		limit := parsePositiveLimit(query.Get("limit"), 100, 500)
		resp, err := a.service.ListSales(r.Context(), query.Get("store_id"), query.Get("status"), limit)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req domain.SaleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		resp, err := a.service.CommitSale(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/sales/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}

	saleID, action := tail, ""
	if idx := strings.Index(tail, "/"); idx > 0 {
		saleID, action = tail[:idx], strings.Trim(tail[idx+1:], "/")
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		sale, err := a.service.GetSale(r.Context(), saleID)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
	case "approve":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		sale, err := a.service.ApproveSale(r.Context(), saleID)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
	case "reject":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		sale, err := a.service.RejectSale(r.Context(), saleID)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
	case "payments":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		payments, err := a.service.ListPayments(r.Context(), saleID)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown sale action"))
	}
}

func (a *API) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ApplyPayment(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleStockMovements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 200, 1000)
	resp, err := a.service.ListStockMovements(r.Context(), query.Get("store_id"), query.Get("sku"), limit)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStockAdjustments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.StockAdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.AdjustStocks(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		suppliers, err := a.service.ListSuppliers(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
	case http.MethodPost:
		var req domain.SupplierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		supplier, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchaseOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp, err := a.service.ListPurchaseOrders(r.Context(), r.URL.Query().Get("status"))
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req domain.PurchaseOrderCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		resp, err := a.service.CreatePurchaseOrder(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePurchaseOrderActions(w http.ResponseWriter, r *http.Request) {
	tail := pathTail(r.URL.Path, "/api/v1/purchase-orders/")
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("purchase order id required"))
		return
	}

	if strings.HasSuffix(tail, "/receive") {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		poID := strings.Trim(strings.TrimSuffix(tail, "/receive"), "/")
		if poID == "" {
			writeError(w, http.StatusBadRequest, errors.New("purchase order id required"))
			return
		}

		var req domain.PurchaseOrderReceiveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		resp, err := a.service.ReceivePurchaseOrder(r.Context(), poID, req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeError(w, http.StatusNotFound, errors.New("unknown purchase order action"))
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	report, err := a.service.DailyReport(r.Context(), query.Get("store_id"), query.Get("date"))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(query.Get("format"))) {
	case "", "json":
		writeJSON(w, http.StatusOK, report)
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=daily-report-%s.csv", report.Date))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(dailyReportToCSV(report)))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(dailyReportToPrintableHTML(report)))
	default:
		writeError(w, http.StatusBadRequest, errors.New("format must be json, csv, or html"))
	}
}

func (a *API) handleCreditReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	report, err := a.service.CreditReport(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("store_id"), query.Get("date"), limit)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) handleCashiers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers()})
	case http.MethodPost:
		var req domain.CashierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		cashier, err := a.auth.CreateCashier(req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Enforce CSRF protection for all state-changing requests.
		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// statusForError maps service and store errors to HTTP status codes. Stock
// shortfalls and write conflicts both come back as 409: the request was valid
// but lost against concurrent state, and a conflict is safe to resubmit.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalid), errors.Is(err, store.ErrCreditLimit), errors.Is(err, store.ErrClientBlocked):
		return http.StatusBadRequest
	case strings.Contains(strings.ToLower(err.Error()), "admin role required"):
		return http.StatusForbidden
	}
	return http.StatusUnprocessableEntity
}

func dailyReportToCSV(report domain.DailyReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,date,%s", report.Date),
		fmt.Sprintf("summary,store_id,%s", report.StoreID),
		fmt.Sprintf("summary,sales,%d", report.Sales),
		fmt.Sprintf("summary,gross_sales_cents,%d", report.GrossSalesCents),
		fmt.Sprintf("summary,discount_cents,%d", report.DiscountCents),
		fmt.Sprintf("summary,net_sales_cents,%d", report.NetSalesCents),
		fmt.Sprintf("summary,collected_cents,%d", report.CollectedCents),
		fmt.Sprintf("summary,credit_issued_cents,%d", report.CreditIssuedCents),
		fmt.Sprintf("summary,pending_approvals,%d", report.PendingApprovals),
	}
	for _, payment := range report.ByPayment {
		lines = append(lines, fmt.Sprintf("payment,%s_sales,%d", payment.PaymentMethod, payment.Sales))
		lines = append(lines, fmt.Sprintf("payment,%s_total_cents,%d", payment.PaymentMethod, payment.TotalCents))
	}
	return strings.Join(lines, "\n") + "\n"
}

// dailyReportHTMLTmpl is the html/template used to render printable daily reports.
// All user-controlled fields are auto-escaped by html/template to prevent XSS.
var dailyReportHTMLTmpl = template.Must(template.New("daily-report").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Daily Report {{.Date}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Daily Report {{.Date}}</h2>
  <p>Store: {{.StoreID}}</p>
  <p>Sales: {{.Sales}} | Pending approvals: {{.PendingApprovals}}</p>
  <p>Gross: {{.GrossSalesCents}} | Discount: {{.DiscountCents}} | Net: {{.NetSalesCents}} | Collected: {{.CollectedCents}} | Credit issued: {{.CreditIssuedCents}}</p>

  <h3>By Payment</h3>
  <table>
    <thead><tr><th>Payment</th><th>Sales</th><th>Total Cents</th></tr></thead>
    <tbody>{{range .ByPayment}}<tr><td>{{.PaymentMethod}}</td><td style="text-align:right;">{{.Sales}}</td><td style="text-align:right;">{{.TotalCents}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func dailyReportToPrintableHTML(report domain.DailyReport) string {
	var buf bytes.Buffer
	if err := dailyReportHTMLTmpl.Execute(&buf, report); err != nil {
		// Fallback: return a plain-text error page rather than leaking internal details.
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

func pathTail(path string, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(strings.TrimPrefix(path, prefix), "/"))
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (stack traces, SQL errors, file paths, etc.).
	// 4xx responses are user-facing so we return the original error message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
