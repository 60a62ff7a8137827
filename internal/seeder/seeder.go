package seeder

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/auth"
	"github.com/Additional-Code/handoff/internal/database"
	"github.com/Additional-Code/handoff/internal/entity"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Run seeds one account per role and two products owned by the seller.
// Every account gets password. Existing rows are left alone.
func (s *Seeder) Run(ctx context.Context, password string) error {
	if err := s.Users(ctx, password); err != nil {
		return err
	}
	return s.Products(ctx)
}

// Users inserts the demo accounts if they are missing.
func (s *Seeder) Users(ctx context.Context, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	samples := []entity.User{
		{Username: "buyer", Email: "buyer@example.com", Role: string(auth.RoleBuyer)},
		{Username: "seller", Email: "seller@example.com", Role: string(auth.RoleSeller)},
		{Username: "agent", Email: "agent@example.com", Role: string(auth.RoleAgent)},
		{Username: "admin", Email: "admin@example.com", Role: string(auth.RoleAdmin)},
	}

	for _, sample := range samples {
		user := sample
		user.PasswordHash = hash
		user.TotalSales = decimal.Zero
		user.TotalPurchases = decimal.Zero
		user.CreatedAt = now
		user.UpdatedAt = now
		// Ignore renders as ON CONFLICT DO NOTHING or INSERT IGNORE per dialect.
		if _, err := s.db.NewInsert().Model(&user).Ignore().Exec(ctx); err != nil {
			return fmt.Errorf("seed user %s: %w", user.Username, err)
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded users", zap.Int("count", len(samples)))
	}
	return nil
}

// Products gives the seller two products unless they already have some.
func (s *Seeder) Products(ctx context.Context) error {
	var seller entity.User
	if err := s.db.NewSelect().Model(&seller).Where("username = ?", "seller").Scan(ctx); err != nil {
		return fmt.Errorf("load seller: %w", err)
	}

	existing, err := s.db.NewSelect().Model((*entity.Product)(nil)).Where("seller_id = ?", seller.ID).Count(ctx)
	if err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	now := time.Now().UTC()
	products := []entity.Product{
		{SellerID: seller.ID, Title: "Desk lamp", Price: decimal.RequireFromString("10000.00"), Inventory: 5, CreatedAt: now, UpdatedAt: now},
		{SellerID: seller.ID, Title: "Notebook", Price: decimal.RequireFromString("12.50"), Inventory: 40, CreatedAt: now, UpdatedAt: now},
	}
	if _, err := s.db.NewInsert().Model(&products).Exec(ctx); err != nil {
		return fmt.Errorf("seed products: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("seeded products", zap.Int("count", len(products)))
	}
	return nil
}
