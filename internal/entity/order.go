package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending          OrderStatus = "pending"
	StatusAwaitingPickup   OrderStatus = "awaiting_pickup"
	StatusAwaitingDelivery OrderStatus = "awaiting_delivery"
	StatusOutForDelivery   OrderStatus = "out_for_delivery"
	StatusCompleted        OrderStatus = "completed"
	StatusCancelled        OrderStatus = "cancelled"
)

// DeliveryMethod is chosen by the buyer at purchase time.
type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryDelivery DeliveryMethod = "delivery"
)

// Valid reports whether m is a known method.
func (m DeliveryMethod) Valid() bool {
	return m == DeliveryPickup || m == DeliveryDelivery
}

// Order is one purchase of one product. Rows are never deleted.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID              int64               `bun:",pk,autoincrement"`
	Code            string              `bun:"code,notnull,unique"`
	BuyerID         int64               `bun:"buyer_id,notnull"`
	ProductID       int64               `bun:"product_id,notnull"`
	Quantity        int                 `bun:"quantity,notnull"`
	UnitPrice       decimal.Decimal     `bun:"unit_price,type:numeric(12,2),notnull"`
	PurchasePrice   decimal.Decimal     `bun:"purchase_price,type:numeric(12,2),notnull"`
	DeliveryMethod  DeliveryMethod      `bun:"delivery_method,notnull"`
	DeliveryFee     decimal.Decimal     `bun:"delivery_fee,type:numeric(12,2),notnull"`
	DeliveryAddress string              `bun:"delivery_address,nullzero"`
	Status          OrderStatus         `bun:"status,notnull"`
	SellerAmount    decimal.NullDecimal `bun:"seller_amount,type:numeric(12,2)"`
	PlatformAmount  decimal.NullDecimal `bun:"platform_amount,type:numeric(12,2)"`
	DispatchedBy    *int64              `bun:"dispatched_by_id"`
	AgentID         *int64              `bun:"fulfillment_agent_id"`
	CompletedAt     *time.Time          `bun:"completed_at"`
	CreatedAt       time.Time           `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time           `bun:"updated_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`

	Product *Product `bun:"rel:belongs-to,join:product_id=id"`
	Buyer   *User    `bun:"rel:belongs-to,join:buyer_id=id"`
}

// Settled reports whether the split has already been recorded.
func (o *Order) Settled() bool {
	return o.SellerAmount.Valid || o.PlatformAmount.Valid
}
