package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"swift-coupons/internal/cache"
	"swift-coupons/internal/cart"
	"swift-coupons/internal/database"
	"swift-coupons/internal/models"
	"swift-coupons/internal/service"
)

func setupRouter(t *testing.T) *chi.Mux {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test_handler.db"), nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := service.NewService(service.Options{
		DB:    db,
		Carts: cart.NewStore(cache.NewInMemoryCache(), time.Hour),
	})
	h := NewHandler(svc)

	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeCart(t *testing.T, rr *httptest.ResponseRecorder) models.CartResponse {
	t.Helper()
	var resp models.CartResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode cart response: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp.Error
}

func seedProduct(t *testing.T, r http.Handler) {
	t.Helper()
	product := models.Product{ID: "p1", Name: "Green tea", Price: decimal.NewFromInt(20), Stock: 5, Categories: []string{"tea"}}
	if rr := doJSON(t, r, "POST", "/products", product, nil); rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 for product, got %d: %s", rr.Code, rr.Body.String())
	}
}

func createCart(t *testing.T, r http.Handler) string {
	t.Helper()
	req := httptest.NewRequest("POST", "/carts", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 for cart, got %d: %s", rr.Code, rr.Body.String())
	}
	id := rr.Header().Get(HeaderCartID)
	if id == "" {
		t.Fatal("Expected X-Cart-ID header")
	}
	return id
}

func TestHealthCheck(t *testing.T) {
	r := setupRouter(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	if rr.Body.String() != "OK" {
		t.Errorf("Expected body 'OK', got '%s'", rr.Body.String())
	}
}

func TestCouponCRUD(t *testing.T) {
	r := setupRouter(t)

	coupon := models.Coupon{DiscountType: models.DiscountPercent, Amount: decimal.NewFromInt(10)}
	rr := doJSON(t, r, "PUT", "/coupons/Summer", coupon, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var saved models.Coupon
	if err := json.NewDecoder(rr.Body).Decode(&saved); err != nil {
		t.Fatalf("Failed to decode coupon: %v", err)
	}
	if saved.Code != "summer" {
		t.Errorf("Expected code summer, got %s", saved.Code)
	}

	if rr := doJSON(t, r, "GET", "/coupons/summer", nil, nil); rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if rr := doJSON(t, r, "DELETE", "/coupons/summer", nil, nil); rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}
	if rr := doJSON(t, r, "GET", "/coupons/summer", nil, nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestUpsertCoupon_BadRequests(t *testing.T) {
	r := setupRouter(t)

	req := httptest.NewRequest("PUT", "/coupons/x", bytes.NewBufferString("{invalid json}"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid JSON, got %d", rr.Code)
	}

	req = httptest.NewRequest("PUT", "/coupons/x", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing body, got %d", rr.Code)
	}

	coupon := models.Coupon{DiscountType: "bogus", Amount: decimal.NewFromInt(10)}
	rr = doJSON(t, r, "PUT", "/coupons/x", coupon, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid coupon, got %d", rr.Code)
	}
}

func TestCheckoutFlow(t *testing.T) {
	r := setupRouter(t)
	seedProduct(t, r)

	coupon := models.Coupon{
		DiscountType: models.DiscountFixedCart,
		Amount:       decimal.NewFromInt(5),
		Qualifiers: models.QualifierConfig{Enabled: true, Data: []models.GroupNode{
			{Type: models.NodeGroup, Rules: []models.RuleNode{{
				Type:     models.NodeRule,
				ID:       "Cart_Quantity",
				Data:     map[string]any{"logic": "mt", "amount": 1},
				Settings: models.Settings{ErrorMessage: "Add more items."},
			}}},
		}},
	}
	if rr := doJSON(t, r, "PUT", "/coupons/five", coupon, nil); rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	cartID := createCart(t, r)

	rr := doJSON(t, r, "POST", "/carts/"+cartID+"/items", models.AddItemRequest{ProductID: "p1", Quantity: 1}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	key := decodeCart(t, rr).Cart.Lines[0].Key

	rr = doJSON(t, r, "POST", "/carts/"+cartID+"/coupons", models.ApplyCouponRequest{Code: "five"}, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}
	if msg := decodeError(t, rr); msg != "Add more items." {
		t.Errorf("Expected qualifier message, got %q", msg)
	}

	rr = doJSON(t, r, "PUT", "/carts/"+cartID+"/items/"+key, models.UpdateQuantityRequest{Quantity: 2}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, r, "POST", "/carts/"+cartID+"/coupons", models.ApplyCouponRequest{Code: "FIVE"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeCart(t, rr)
	if !resp.Totals.Total.Equal(decimal.NewFromInt(35)) {
		t.Errorf("Expected total 35, got %s", resp.Totals.Total)
	}

	rr = doJSON(t, r, "DELETE", "/carts/"+cartID+"/coupons/five", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeCart(t, rr); len(resp.Cart.AppliedCoupons) != 0 {
		t.Errorf("Expected no coupons, got %v", resp.Cart.AppliedCoupons)
	}

	rr = doJSON(t, r, "PUT", "/carts/"+cartID+"/shipping", models.Address{Country: "usa"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad country, got %d", rr.Code)
	}

	rr = doJSON(t, r, "DELETE", "/carts/"+cartID+"/items/"+key, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeCart(t, rr); len(resp.Cart.Lines) != 0 {
		t.Errorf("Expected empty cart, got %d lines", len(resp.Cart.Lines))
	}
}

func TestGetCart_NotFound(t *testing.T) {
	r := setupRouter(t)

	rr := doJSON(t, r, "GET", "/carts/does-not-exist", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestCustomerHeader(t *testing.T) {
	r := setupRouter(t)
	seedProduct(t, r)

	customer := models.Customer{ID: "c1", Email: "c1@example.com", Roles: []string{"vip"}, RegisteredAt: time.Now().AddDate(0, -1, 0)}
	if rr := doJSON(t, r, "POST", "/customers", customer, nil); rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	coupon := models.Coupon{
		DiscountType: models.DiscountPercent,
		Amount:       decimal.NewFromInt(20),
		Qualifiers: models.QualifierConfig{Enabled: true, Data: []models.GroupNode{
			{Type: models.NodeGroup, Rules: []models.RuleNode{{
				Type: models.NodeRule,
				ID:   "Customer_User_Roles",
				Data: map[string]any{"logic": "has", "user_roles": []any{"vip"}, "match": "any"},
			}}},
		}},
	}
	if rr := doJSON(t, r, "PUT", "/coupons/vip20", coupon, nil); rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	cartID := createCart(t, r)
	doJSON(t, r, "POST", "/carts/"+cartID+"/items", models.AddItemRequest{ProductID: "p1", Quantity: 1}, nil)

	rr := doJSON(t, r, "POST", "/carts/"+cartID+"/coupons", models.ApplyCouponRequest{Code: "vip20"}, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected guest to be refused, got %d", rr.Code)
	}

	rr = doJSON(t, r, "POST", "/carts/"+cartID+"/coupons", models.ApplyCouponRequest{Code: "vip20"}, map[string]string{HeaderCustomerID: "c1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for vip customer, got %d: %s", rr.Code, rr.Body.String())
	}
	if resp := decodeCart(t, rr); !resp.Totals.Discount.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Expected discount 4, got %s", resp.Totals.Discount)
	}
}

func TestCreateOrders(t *testing.T) {
	r := setupRouter(t)

	orders := models.CreateOrdersRequest{Orders: []models.Order{
		{ID: "o1", CustomerID: "c1", Total: decimal.NewFromInt(30), PlacedAt: time.Now().Add(-time.Hour),
			Items: []models.OrderItem{{ProductID: "p1", Quantity: 1, Total: decimal.NewFromInt(30)}}},
	}}
	rr := doJSON(t, r, "POST", "/orders", orders, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp models.CreateOrdersResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Inserted != 1 {
		t.Errorf("Expected 1 inserted, got %d", resp.Inserted)
	}

	rr = doJSON(t, r, "POST", "/orders", models.CreateOrdersRequest{}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty orders, got %d", rr.Code)
	}
}

func TestApplyFromURL_Redirects(t *testing.T) {
	r := setupRouter(t)

	coupon := models.Coupon{
		DiscountType: models.DiscountPercent,
		Amount:       decimal.NewFromInt(10),
		URLApply:     models.URLApplyConfig{Enabled: true, CodeOverride: "spring-sale", RedirectToURL: "/checkout"},
	}
	if rr := doJSON(t, r, "PUT", "/coupons/spring", coupon, nil); rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	cartID := createCart(t, r)

	req := httptest.NewRequest("GET", "/coupon/spring-sale?cart_id="+cartID, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusFound {
		t.Fatalf("Expected status 302, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/checkout" {
		t.Errorf("Expected redirect to /checkout, got %s", loc)
	}
	if rr.Header().Get(HeaderCartID) != cartID {
		t.Errorf("Expected cart id %s, got %s", cartID, rr.Header().Get(HeaderCartID))
	}

	req = httptest.NewRequest("GET", "/coupon/spring", nil)
	req.Header.Set(HeaderCartID, cartID)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if loc := rr.Header().Get("Location"); loc != "/cart" {
		t.Errorf("Expected already-applied coupon to redirect to /cart, got %s", loc)
	}
}
