package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Product is the slice of the catalog the purchase flow needs.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID            int64           `bun:",pk,autoincrement"`
	SellerID      int64           `bun:"seller_id,notnull"`
	Title         string          `bun:"title,notnull"`
	Price         decimal.Decimal `bun:"price,type:numeric(12,2),notnull"`
	Inventory     int             `bun:"inventory,notnull"`
	PurchaseCount int             `bun:"purchase_count,notnull,default:0"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`

	Seller *User `bun:"rel:belongs-to,join:seller_id=id"`
}
