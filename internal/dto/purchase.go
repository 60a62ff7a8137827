package dto

import "time"

// PurchaseRequest creates an order for the authenticated buyer.
type PurchaseRequest struct {
	ProductID       int64  `json:"product_id" validate:"required,gt=0"`
	Quantity        int    `json:"quantity" validate:"required,gt=0"`
	DeliveryMethod  string `json:"delivery_method" validate:"required,oneof=pickup delivery"`
	DeliveryAddress string `json:"delivery_address" validate:"required_if=DeliveryMethod delivery"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID              int64      `json:"id"`
	Code            string     `json:"code"`
	BuyerID         int64      `json:"buyer_id"`
	ProductID       int64      `json:"product_id"`
	Quantity        int        `json:"quantity"`
	UnitPrice       string     `json:"unit_price"`
	PurchasePrice   string     `json:"purchase_price"`
	DeliveryMethod  string     `json:"delivery_method"`
	DeliveryFee     string     `json:"delivery_fee"`
	DeliveryAddress string     `json:"delivery_address,omitempty"`
	Status          string     `json:"status"`
	SellerAmount    *string    `json:"seller_amount,omitempty"`
	PlatformAmount  *string    `json:"platform_amount,omitempty"`
	DispatchedBy    *int64     `json:"dispatched_by,omitempty"`
	AgentID         *int64     `json:"fulfillment_agent_id,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
