package models

// AddItemRequest is the request body for adding a product to a cart.
type AddItemRequest struct {
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// UpdateQuantityRequest is the request body for changing a line quantity.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// ApplyCouponRequest is the request body for applying a coupon code.
type ApplyCouponRequest struct {
	Code string `json:"code"`
}

// CreateCartRequest optionally binds the new cart to a customer.
type CreateCartRequest struct {
	CustomerID string `json:"customer_id,omitempty"`
}

// CartResponse is returned by every cart endpoint.
type CartResponse struct {
	Cart    Cart     `json:"cart"`
	Totals  Totals   `json:"totals"`
	Notices []string `json:"notices,omitempty"`
}

// CreateOrdersRequest is the request body for ingesting order history.
type CreateOrdersRequest struct {
	Orders []Order `json:"orders"`
}

// CreateOrdersResponse reports how many orders were stored.
type CreateOrdersResponse struct {
	Inserted int `json:"inserted"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
