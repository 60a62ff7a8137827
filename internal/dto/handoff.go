package dto

import "time"

// DecodeRequest carries the scanned buyer token.
type DecodeRequest struct {
	Token string `json:"token" validate:"required"`
}

// AuthenticateRequest re-authenticates the buyer for one order.
type AuthenticateRequest struct {
	Ticket   string `json:"ticket" validate:"required"`
	OrderID  int64  `json:"order_id" validate:"required,gt=0"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// OTPRequest asks for a confirmation code to be sent to the buyer.
type OTPRequest struct {
	Ticket string `json:"ticket" validate:"required"`
	UserID int64  `json:"user_id" validate:"required,gt=0"`
}

// OTPVerifyRequest submits the code the buyer read out.
type OTPVerifyRequest struct {
	Ticket string `json:"ticket" validate:"required"`
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
}

// CompleteRequest finalises the order selected at authentication.
type CompleteRequest struct {
	Ticket  string `json:"ticket" validate:"required"`
	OrderID int64  `json:"order_id" validate:"required,gt=0"`
}

// OrderSummary is one pending order as listed in a buyer token.
type OrderSummary struct {
	OrderID        int64  `json:"order_id"`
	OrderCode      string `json:"order_code"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	SellerUsername string `json:"seller_username"`
}

// DecodeResponse is the verified token content plus the ticket for the
// next step. Ticket is empty when NothingPending is set.
type DecodeResponse struct {
	BuyerID         int64          `json:"buyer_id"`
	Username        string         `json:"username"`
	IssuedAt        time.Time      `json:"issued_at"`
	Orders          []OrderSummary `json:"orders"`
	NothingPending  bool           `json:"nothing_pending"`
	Ticket          string         `json:"ticket,omitempty"`
	TicketExpiresAt *time.Time     `json:"ticket_expires_at,omitempty"`
}

// StepResponse carries the ticket for the next step.
type StepResponse struct {
	Ticket          string    `json:"ticket"`
	TicketExpiresAt time.Time `json:"ticket_expires_at"`
}

// OTPResponse reports a dispatched code.
type OTPResponse struct {
	ExpiresAt  time.Time `json:"expires_at"`
	Dispatched bool      `json:"dispatched"`
}

// CompleteResponse is the receipt shown to the agent.
type CompleteResponse struct {
	OrderID        int64     `json:"order_id"`
	OrderCode      string    `json:"order_code"`
	SellerAmount   string    `json:"seller_amount"`
	PlatformAmount string    `json:"platform_amount"`
	CompletedAt    time.Time `json:"completed_at"`
	TokenRefreshed bool      `json:"token_refreshed"`
}

// TokenResponse is the buyer's current pickup token.
type TokenResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Orders    []OrderSummary `json:"orders"`
}
