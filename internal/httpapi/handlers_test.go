package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"posledger/backend/internal/cache"
	"posledger/backend/internal/domain"
	"posledger/backend/internal/ledger"
	"posledger/backend/internal/metrics"
	"posledger/backend/internal/service"
	"posledger/backend/internal/store/memory"
)

type testAPI struct {
	*API
	repo *memory.Store
}

// newTestAPI builds a full API over a seeded in-memory store so handler
// tests exercise the complete request path.
func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	t.Setenv("SEED_MANAGER_PASSWORD", "manager123")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier123")

	repo := memory.NewSeeded()
	m := metrics.New()
	l := ledger.New(repo, ledger.WithMetrics(m))
	svc := service.New(repo, l, cache.NewMemoryOrderCache(), service.WithMetrics(m))
	auth := NewAuthManager(context.Background(), "test-secret-key", time.Hour, "482913", repo, zap.NewNop())

	return testAPI{API: New(svc, auth, m, zap.NewNop(), "*"), repo: repo}
}

func login(t *testing.T, api testAPI, username, password string) string {
	t.Helper()

	body, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("%s login failed, status %d (body: %s)", username, res.Code, res.Body.String())
	}

	var payload domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode login response failed: %v", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.AccessToken
}

func loginAsManager(t *testing.T, api testAPI) string {
	return login(t, api, "manager", "manager123")
}

func loginAsCashier(t *testing.T, api testAPI) string {
	return login(t, api, "cashier", "cashier123")
}

func doJSON(t *testing.T, api testAPI, method, path, token string, payload any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func decodeInto(t *testing.T, res *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, res.Body.String())
	}
}

func startShift(t *testing.T, api testAPI, token string) domain.Shift {
	t.Helper()
	float := decimal.RequireFromString("100")
	res := doJSON(t, api, http.MethodPost, "/api/v1/shifts/start", token, domain.ShiftStartRequest{StartingFloat: &float})
	if res.Code != http.StatusCreated {
		t.Fatalf("start shift: expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	var payload struct {
		Shift domain.Shift `json:"shift"`
	}
	decodeInto(t, res, &payload)
	return payload.Shift
}

func placeOrder(t *testing.T, api testAPI, token string, shiftID int64, qty int, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, api, http.MethodPost, "/api/v1/orders", token, domain.PlaceOrderRequest{
		Items:       []domain.OrderLine{{ProductID: 1, Quantity: qty}},
		ShiftID:     shiftID,
		PaymentKind: domain.PaymentCard,
	}, headers...)
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var body map[string]any
	decodeInto(t, res, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "manager", Password: "wrongpassword"})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", res.Code, res.Body.String())
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/api/v1/products", "", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/products", "not-a-jwt", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", res.Code)
	}
}

func TestCashierCannotUseManagerRoutes(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)

	for _, path := range []string{"/api/v1/purchase-orders", "/api/v1/audit-logs", "/api/v1/users", "/api/v1/suppliers"} {
		res := doJSON(t, api, http.MethodGet, path, token, nil)
		if res.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for cashier, got %d", path, res.Code)
		}
	}

	res := doJSON(t, api, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		SKU: "TEA-20", Name: "Tea", Kind: domain.ProductNonPerishable,
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier product create, got %d", res.Code)
	}
}

func TestPlaceOrderFlow(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)
	shift := startShift(t, api, token)

	res := placeOrder(t, api, token, shift.ID, 2)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	var placed domain.PlaceOrderResponse
	decodeInto(t, res, &placed)
	if !placed.Order.TotalAmount.Equal(decimal.RequireFromString("3.78")) {
		t.Fatalf("expected total 3.78, got %s", placed.Order.TotalAmount)
	}
	if len(placed.Order.Items) != 1 {
		t.Fatalf("expected one order item, got %d", len(placed.Order.Items))
	}

	res = doJSON(t, api, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", placed.Order.ID), token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/products/1", token, nil)
	var got struct {
		Product domain.Product `json:"product"`
	}
	decodeInto(t, res, &got)
	if got.Product.QuantityInStock != 38 {
		t.Fatalf("expected stock 38 after sale, got %d", got.Product.QuantityInStock)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/orders?payment_kind=Card", token, nil)
	var listed struct {
		Orders []domain.Order `json:"orders"`
	}
	decodeInto(t, res, &listed)
	if len(listed.Orders) != 1 {
		t.Fatalf("expected one card order, got %d", len(listed.Orders))
	}
}

func TestPlaceOrderInsufficientStockIsConflict(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)
	shift := startShift(t, api, token)

	res := placeOrder(t, api, token, shift.ID, 41)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", res.Code, res.Body.String())
	}
	var body map[string]any
	decodeInto(t, res, &body)
	if body["available"] != float64(40) {
		t.Fatalf("expected available 40 in body, got %v", body["available"])
	}
}

func TestPlaceOrderValidationReportsField(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)
	shift := startShift(t, api, token)

	res := placeOrder(t, api, token, shift.ID, 0)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var body map[string]any
	decodeInto(t, res, &body)
	if body["field"] != "items[0].quantity" {
		t.Fatalf("expected field items[0].quantity, got %v", body["field"])
	}
}

func TestPlaceOrderRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/orders", token, map[string]any{"items": []any{}, "discount": 5})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}
}

func TestIdempotencyKeyHeaderReplays(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)
	shift := startShift(t, api, token)

	first := placeOrder(t, api, token, shift.ID, 1, "Idempotency-Key", "till-4-0001")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", first.Code, first.Body.String())
	}
	second := placeOrder(t, api, token, shift.ID, 1, "Idempotency-Key", "till-4-0001")
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", second.Code)
	}

	var a, b domain.PlaceOrderResponse
	decodeInto(t, first, &a)
	decodeInto(t, second, &b)
	if !b.Duplicate || a.Order.ID != b.Order.ID {
		t.Fatalf("expected replay of order %d, got %+v", a.Order.ID, b)
	}
}

func TestReturnNeedsManagerApproval(t *testing.T) {
	api := newTestAPI(t)
	cashier := loginAsCashier(t, api)
	shift := startShift(t, api, cashier)

	res := placeOrder(t, api, cashier, shift.ID, 3)
	var placed domain.PlaceOrderResponse
	decodeInto(t, res, &placed)
	itemID := placed.Order.Items[0].ID

	ret := domain.ReturnRequest{OrderItemID: itemID, Quantity: 1, Restock: true, ShiftID: shift.ID}
	res = doJSON(t, api, http.MethodPost, "/api/v1/returns", cashier, ret)
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without pin, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/returns", cashier, ret, managerPINHeader, "482913")
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201 with pin, got %d (body: %s)", res.Code, res.Body.String())
	}

	ret.Quantity = 3
	manager := loginAsManager(t, api)
	res = doJSON(t, api, http.MethodPost, "/api/v1/returns", manager, ret)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 returning more than sold, got %d", res.Code)
	}
	var body map[string]any
	decodeInto(t, res, &body)
	if body["already_returned"] != float64(1) {
		t.Fatalf("expected already_returned 1, got %v", body["already_returned"])
	}

	res = doJSON(t, api, http.MethodGet, fmt.Sprintf("/api/v1/order-items/%d/returns", itemID), manager, nil)
	var listed struct {
		Returns []domain.SalesReturn `json:"returns"`
	}
	decodeInto(t, res, &listed)
	if len(listed.Returns) != 1 {
		t.Fatalf("expected one recorded return, got %d", len(listed.Returns))
	}
}

func TestPurchaseOrderReceiving(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsManager(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/purchase-orders", token, domain.PurchaseOrderCreateRequest{
		SupplierID: 1,
		Lines: []domain.PurchaseOrderLine{
			{ProductID: 1, QuantityOrdered: 10, CostPricePerUnit: decimal.RequireFromString("1.15")},
		},
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("create po: expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	var created struct {
		PurchaseOrder domain.PurchaseOrder `json:"purchase_order"`
	}
	decodeInto(t, res, &created)
	po := created.PurchaseOrder
	lineID := po.Items[0].ID

	res = doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/purchase-orders/%d/receive", po.ID), token,
		domain.ReceiveRequest{Lines: []domain.ReceiveLine{{LineID: lineID, Quantity: 11}}})
	if res.Code != http.StatusConflict {
		t.Fatalf("over-receipt: expected 409, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/purchase-orders/%d/receive", po.ID), token,
		domain.ReceiveRequest{Lines: []domain.ReceiveLine{{LineID: lineID, Quantity: 4}}})
	if res.Code != http.StatusOK {
		t.Fatalf("receive: expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var received struct {
		PurchaseOrder domain.PurchaseOrder `json:"purchase_order"`
	}
	decodeInto(t, res, &received)
	if received.PurchaseOrder.Status != domain.POStatusPartiallyReceived {
		t.Fatalf("expected PartiallyReceived, got %s", received.PurchaseOrder.Status)
	}

	res = doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/purchase-orders/%d/receive-remainder", po.ID), token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("receive remainder: expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	decodeInto(t, res, &received)
	if received.PurchaseOrder.Status != domain.POStatusReceived {
		t.Fatalf("expected Received, got %s", received.PurchaseOrder.Status)
	}

	product, err := api.repo.GetProduct(context.Background(), 1)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.QuantityInStock != 50 {
		t.Fatalf("expected stock 50 after receiving, got %d", product.QuantityInStock)
	}
}

func TestStockAdjustmentAndHistory(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsManager(t, api)
	shift := startShift(t, api, token)

	res := doJSON(t, api, http.MethodPost, "/api/v1/stock-adjustments", token, domain.StockAdjustmentRequest{
		ProductID: 1, ShiftID: shift.ID, Delta: 0, Reason: "count",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("zero delta: expected 400, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodPost, "/api/v1/stock-adjustments", token, domain.StockAdjustmentRequest{
		ProductID: 1, ShiftID: shift.ID, Delta: -5, Reason: "damaged",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	var adjusted domain.StockAdjustmentResponse
	decodeInto(t, res, &adjusted)
	if adjusted.QuantityInStock != 35 {
		t.Fatalf("expected 35 in stock, got %d", adjusted.QuantityInStock)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/products/1/adjustments", token, nil)
	var history struct {
		Adjustments []domain.StockAdjustment `json:"adjustments"`
	}
	decodeInto(t, res, &history)
	if len(history.Adjustments) != 1 || history.Adjustments[0].QuantityChange != -5 {
		t.Fatalf("unexpected adjustment history %+v", history.Adjustments)
	}
}

func TestShiftEndReconciles(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)
	shift := startShift(t, api, token)

	ending := decimal.RequireFromString("95")
	res := doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/shifts/%d/end", shift.ID), token, domain.ShiftEndRequest{EndingFloat: &ending})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var result domain.ShiftReconciliation
	decodeInto(t, res, &result)
	if !result.ExpectedCash.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected cash 100, got %s", result.ExpectedCash)
	}
	if !result.Shift.CashDiscrepancy.Equal(decimal.RequireFromString("-5")) {
		t.Fatalf("expected discrepancy -5, got %s", result.Shift.CashDiscrepancy)
	}

	res = doJSON(t, api, http.MethodPost, fmt.Sprintf("/api/v1/shifts/%d/end", shift.ID), token, domain.ShiftEndRequest{EndingFloat: &ending})
	if res.Code != http.StatusConflict {
		t.Fatalf("second end: expected 409, got %d", res.Code)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/shifts/open", token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("open shift after end: expected 404, got %d", res.Code)
	}
}

func TestNotFoundAndBadPathIDs(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsManager(t, api)

	res := doJSON(t, api, http.MethodGet, "/api/v1/orders/999", token, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	res = doJSON(t, api, http.MethodGet, "/api/v1/orders/abc", token, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric id, got %d", res.Code)
	}
	res = doJSON(t, api, http.MethodDelete, "/api/v1/products/1", token, nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestProductLookupBySKUAndLowStock(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsCashier(t, api)

	res := doJSON(t, api, http.MethodGet, "/api/v1/products?sku=milk-1l", token, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", res.Code, res.Body.String())
	}
	var bySKU struct {
		Products []domain.Product `json:"products"`
	}
	decodeInto(t, res, &bySKU)
	if len(bySKU.Products) != 1 || bySKU.Products[0].SKU != "MILK-1L" {
		t.Fatalf("unexpected sku lookup result %+v", bySKU.Products)
	}

	res = doJSON(t, api, http.MethodGet, "/api/v1/products/low-stock", token, nil)
	var low struct {
		Products []domain.Product `json:"products"`
	}
	decodeInto(t, res, &low)
	if len(low.Products) != 1 || low.Products[0].SKU != "COFFEE-250" {
		t.Fatalf("expected only COFFEE-250 below reorder level, got %+v", low.Products)
	}
}

func TestManagerCreatesUser(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsManager(t, api)

	res := doJSON(t, api, http.MethodPost, "/api/v1/users", token, domain.UserCreateRequest{
		Username: "till-two", Password: "secret99", Role: RoleCashier,
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", res.Code, res.Body.String())
	}
	res = doJSON(t, api, http.MethodPost, "/api/v1/users", token, domain.UserCreateRequest{
		Username: "till-two", Password: "secret99", Role: RoleCashier,
	})
	if res.Code != http.StatusConflict {
		t.Fatalf("duplicate user: expected 409, got %d", res.Code)
	}

	login(t, api, "till-two", "secret99")
}

func TestRequestIDIsEchoed(t *testing.T) {
	api := newTestAPI(t)

	res := doJSON(t, api, http.MethodGet, "/healthz", "", nil, requestIDHeader, "abc-123")
	if got := res.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	res = doJSON(t, api, http.MethodGet, "/healthz", "", nil)
	if got := res.Header().Get(requestIDHeader); len(got) != 36 {
		t.Fatalf("expected generated uuid request id, got %q", got)
	}
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	api := newTestAPI(t)
	doJSON(t, api, http.MethodGet, "/healthz", "", nil)

	res := doJSON(t, api, http.MethodGet, "/metrics", "", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "http_requests_total") {
		t.Fatalf("expected http request counter in scrape output")
	}
}
