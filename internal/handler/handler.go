package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"swift-coupons/internal/models"
	"swift-coupons/internal/qualifier"
	"swift-coupons/internal/service"
	"swift-coupons/internal/validation"
)

// Request headers identifying the shopper and their cart.
const (
	HeaderCustomerID = "X-Customer-ID"
	HeaderCartID     = "X-Cart-ID"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
	logger      *slog.Logger
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
	Logger      *slog.Logger
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 10 << 20, // 10MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
		logger:      opts.Logger,
	}
}

// Routes registers every API route on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(h.identify)

		r.Route("/coupons/{code}", func(r chi.Router) {
			r.Put("/", h.UpsertCoupon)
			r.Get("/", h.GetCoupon)
			r.Delete("/", h.DeleteCoupon)
		})

		r.Post("/products", h.CreateProduct)
		r.Post("/customers", h.CreateCustomer)
		r.Post("/orders", h.CreateOrders)

		r.Post("/carts", h.CreateCart)
		r.Route("/carts/{cart_id}", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{key}", h.UpdateQuantity)
			r.Delete("/items/{key}", h.RemoveItem)
			r.Put("/shipping", h.SetShipping)
			r.Post("/coupons", h.ApplyCoupon)
			r.Delete("/coupons/{code}", h.RemoveCoupon)
		})

		r.Get("/coupon/{code}", h.ApplyFromURL)
	})
}

// identify binds the X-Customer-ID header to the request context.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := validation.SanitizeString(r.Header.Get(HeaderCustomerID)); id != "" {
			r = r.WithContext(service.WithCustomerID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// UpsertCoupon handles PUT /coupons/{code}
func (h *Handler) UpsertCoupon(w http.ResponseWriter, r *http.Request) {
	var req models.Coupon
	if !h.decode(w, r, &req, true) {
		return
	}

	coupon, err := h.service.UpsertCoupon(r.Context(), chi.URLParam(r, "code"), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, coupon)
}

// GetCoupon handles GET /coupons/{code}
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	coupon, err := h.service.GetCoupon(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, coupon)
}

// DeleteCoupon handles DELETE /coupons/{code}
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCoupon(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateProduct handles POST /products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req models.Product
	if !h.decode(w, r, &req, true) {
		return
	}

	req.ID = validation.SanitizeString(req.ID)
	req.Name = validation.SanitizeString(req.Name)
	for i := range req.Categories {
		req.Categories[i] = validation.SanitizeString(req.Categories[i])
	}

	if err := h.service.CreateProduct(r.Context(), req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, req)
}

// CreateCustomer handles POST /customers
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req models.Customer
	if !h.decode(w, r, &req, true) {
		return
	}

	req.ID = validation.SanitizeString(req.ID)
	req.Email = validation.SanitizeString(req.Email)
	for i := range req.Roles {
		req.Roles[i] = validation.SanitizeString(req.Roles[i])
	}

	if err := h.service.CreateCustomer(r.Context(), req); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, req)
}

// CreateOrders handles POST /orders
func (h *Handler) CreateOrders(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrdersRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	// Sanitize all order fields
	for i := range req.Orders {
		o := &req.Orders[i]
		o.ID = validation.SanitizeString(o.ID)
		o.CustomerID = validation.SanitizeString(o.CustomerID)
		for j := range o.Items {
			o.Items[j].ProductID = validation.SanitizeString(o.Items[j].ProductID)
		}
	}

	inserted, err := h.service.CreateOrders(r.Context(), req.Orders)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, models.CreateOrdersResponse{
		Inserted: inserted,
	})
}

// CreateCart handles POST /carts
func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCartRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	resp, err := h.service.CreateCart(r.Context(), validation.SanitizeString(req.CustomerID))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	w.Header().Set(HeaderCartID, resp.Cart.ID)
	h.respondJSON(w, http.StatusCreated, resp)
}

// GetCart handles GET /carts/{cart_id}
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GetCart(r.Context(), chi.URLParam(r, "cart_id"))
	h.respondCart(w, r, resp, err)
}

// AddItem handles POST /carts/{cart_id}/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req models.AddItemRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	req.ProductID = validation.SanitizeString(req.ProductID)

	resp, err := h.service.AddItem(r.Context(), chi.URLParam(r, "cart_id"), req)
	h.respondCart(w, r, resp, err)
}

// UpdateQuantity handles PUT /carts/{cart_id}/items/{key}
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateQuantityRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	resp, err := h.service.UpdateQuantity(r.Context(), chi.URLParam(r, "cart_id"), chi.URLParam(r, "key"), req.Quantity)
	h.respondCart(w, r, resp, err)
}

// RemoveItem handles DELETE /carts/{cart_id}/items/{key}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.RemoveItem(r.Context(), chi.URLParam(r, "cart_id"), chi.URLParam(r, "key"))
	h.respondCart(w, r, resp, err)
}

// SetShipping handles PUT /carts/{cart_id}/shipping
func (h *Handler) SetShipping(w http.ResponseWriter, r *http.Request) {
	var req models.Address
	if !h.decode(w, r, &req, true) {
		return
	}

	resp, err := h.service.SetShipping(r.Context(), chi.URLParam(r, "cart_id"), req)
	h.respondCart(w, r, resp, err)
}

// ApplyCoupon handles POST /carts/{cart_id}/coupons
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req models.ApplyCouponRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	resp, err := h.service.ApplyCoupon(r.Context(), chi.URLParam(r, "cart_id"), validation.SanitizeString(req.Code))
	h.respondCart(w, r, resp, err)
}

// RemoveCoupon handles DELETE /carts/{cart_id}/coupons/{code}
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.RemoveCoupon(r.Context(), chi.URLParam(r, "cart_id"), chi.URLParam(r, "code"))
	h.respondCart(w, r, resp, err)
}

// ApplyFromURL handles GET /coupon/{code}
func (h *Handler) ApplyFromURL(w http.ResponseWriter, r *http.Request) {
	cartID := validation.SanitizeString(r.Header.Get(HeaderCartID))
	if cartID == "" {
		cartID = validation.SanitizeString(r.URL.Query().Get("cart_id"))
	}

	result, err := h.service.ApplyFromURL(r.Context(), service.URLApplyRequest{
		CartID:  cartID,
		Code:    validation.SanitizeString(chi.URLParam(r, "code")),
		Referer: r.Referer(),
		Host:    r.Host,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	w.Header().Set(HeaderCartID, result.CartID)
	http.Redirect(w, r, result.Location, http.StatusFound)
}

// decode reads a JSON body into dest. With required unset an empty body is
// accepted and leaves dest untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest interface{}, required bool) bool {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if err == io.EOF {
			if !required {
				return true
			}
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, resp *models.CartResponse, err error) {
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// respondServiceError maps service errors to status codes. Unexpected errors
// are logged and hidden from the client.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *validation.ValidationError
	var qe *qualifier.QualificationError
	switch {
	case errors.As(err, &ve):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &qe):
		h.respondError(w, http.StatusUnprocessableEntity, qe.Message)
	case errors.Is(err, service.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
