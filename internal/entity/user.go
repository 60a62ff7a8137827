package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// User is any account: buyer, seller, fulfillment agent or admin.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID             int64           `bun:",pk,autoincrement"`
	Username       string          `bun:"username,notnull,unique"`
	Email          string          `bun:"email,notnull"`
	PasswordHash   string          `bun:"password_hash,notnull"`
	Role           string          `bun:"role,notnull"`
	TotalSales     decimal.Decimal `bun:"total_sales,type:numeric(14,2),notnull,default:0"`
	TotalPurchases decimal.Decimal `bun:"total_purchases,type:numeric(14,2),notnull,default:0"`
	CreatedAt      time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time       `bun:"updated_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
