package order

// CreateOrderItem is one requested line.
// swagger:model CreateOrderItem
type CreateOrderItem struct {
	ProductID int64 `json:"product_id" example:"1"`
	Quantity  int   `json:"quantity"   example:"2"`
}

// CreateOrderRequest is the order-creation payload. The user id comes from
// the auth gateway header, not the body.
// swagger:model CreateOrderRequest
type CreateOrderRequest struct {
	Items []CreateOrderItem `json:"items"`
}

// UpdateOrderStatusRequest payload for the direct status transition.
// swagger:model UpdateOrderStatusRequest
type UpdateOrderStatusRequest struct {
	Status string `json:"status" example:"completed"`
}
