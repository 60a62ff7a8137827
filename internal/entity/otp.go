package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// OTPChallenge is a single-use numeric code scoped to (user, purpose).
type OTPChallenge struct {
	bun.BaseModel `bun:"table:otp_challenges,alias:c"`

	ID        int64      `bun:",pk,autoincrement"`
	UserID    int64      `bun:"user_id,notnull"`
	Purpose   string     `bun:"purpose,notnull"`
	Code      string     `bun:"code,notnull"`
	Used      bool       `bun:"used,notnull,default:false"`
	UsedAt    *time.Time `bun:"used_at"`
	ExpiresAt time.Time  `bun:"expires_at,notnull"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
