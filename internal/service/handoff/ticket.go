package handoff

import (
	"errors"
	"slices"
	"time"

	"github.com/Additional-Code/handoff/internal/signer"
)

// TicketAudience separates tickets from buyer tokens and sessions.
const TicketAudience = "handoff-ticket"

// Stage is how far a handoff has progressed.
type Stage string

const (
	StageDecoded       Stage = "decoded"
	StageAuthenticated Stage = "authenticated"
	StageVerified      Stage = "verified"
)

// Ticket is the signed state passed between handoff steps so the server
// keeps no session. Each step accepts exactly one stage.
type Ticket struct {
	AgentID       int64   `json:"agent_id" validate:"required"`
	BuyerID       int64   `json:"buyer_id" validate:"required"`
	BuyerUsername string  `json:"buyer_username" validate:"required"`
	OrderIDs      []int64 `json:"order_ids" validate:"required,min=1"`
	OrderID       int64   `json:"order_id,omitempty"`
	Stage         Stage   `json:"stage" validate:"required,oneof=decoded authenticated verified"`
}

func (t Ticket) lists(orderID int64) bool {
	return slices.Contains(t.OrderIDs, orderID)
}

func (s *Service) signTicket(t Ticket) (string, time.Time, error) {
	return s.signer.Sign(TicketAudience, t, s.ticketTTL)
}

// openTicket verifies raw and checks it belongs to agentID and is at want.
func (s *Service) openTicket(raw string, agentID int64, want Stage) (Ticket, error) {
	var t Ticket
	if err := s.signer.Verify(raw, TicketAudience, &t); err != nil {
		if errors.Is(err, signer.ErrExpired) {
			return Ticket{}, ErrTicketExpired
		}
		return Ticket{}, ErrTicketInvalid
	}
	if t.AgentID != agentID {
		return Ticket{}, ErrTicketInvalid
	}
	if t.Stage != want {
		return Ticket{}, ErrStepOutOfOrder
	}
	return t, nil
}
