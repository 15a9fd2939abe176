package settlement

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/halldesk/halldesk/core"
)

// Settlement types
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// Change request types
const (
	RequestEdit   = "edit"
	RequestDelete = "delete"
)

// Change request statuses. Approved and rejected are terminal.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"

	// StatusAll disables the status filter of ListRequests.
	StatusAll = "all"
)

// Settlement is a daily ledger entry.
type Settlement struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Source      string          `json:"source"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type NewSettlement struct {
	Date        core.Date       `json:"date"`
	Type        string          `json:"type" validate:"required,oneof=income expense"`
	Amount      decimal.Decimal `json:"amount"`
	Source      string          `json:"source" validate:"omitempty,max=100"`
	Category    string          `json:"category" validate:"required,max=100"`
	Description string          `json:"description" validate:"omitempty,max=500"`
}

func (ns *NewSettlement) Clean() {
	ns.Type = core.CleanString(ns.Type, true /* lower */)
	ns.Source = core.CleanString(ns.Source)
	ns.Category = core.CleanString(ns.Category)
	ns.Description = core.CleanString(ns.Description)
}

// Changes are proposed new values for the fields of a settlement; nil fields are left unchanged.
type Changes struct {
	Date        *core.Date       `json:"date,omitempty"`
	Type        *string          `json:"type,omitempty" validate:"omitempty,oneof=income expense"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Source      *string          `json:"source,omitempty" validate:"omitempty,max=100"`
	Category    *string          `json:"category,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=500"`
}

func cleanPtr(s *string, lower ...bool) *string {
	if s == nil {
		return nil
	}
	v := core.CleanString(*s, lower...)
	return &v
}

// Clean trims the string fields and lowercases Type, without touching the caller's values.
func (c *Changes) Clean() {
	c.Type = cleanPtr(c.Type, true /* lower */)
	c.Source = cleanPtr(c.Source)
	c.Category = cleanPtr(c.Category)
	c.Description = cleanPtr(c.Description)
}

func (c Changes) IsEmpty() bool {
	return c.Date == nil && c.Type == nil && c.Amount == nil &&
		c.Source == nil && c.Category == nil && c.Description == nil
}

// Apply copies the set fields onto s.
func (c Changes) Apply(s *Settlement) {
	if c.Date != nil {
		s.Date = core.TruncateDate(c.Date.Time)
	}
	if c.Type != nil {
		s.Type = *c.Type
	}
	if c.Amount != nil {
		s.Amount = *c.Amount
	}
	if c.Source != nil {
		s.Source = *c.Source
	}
	if c.Category != nil {
		s.Category = *c.Category
	}
	if c.Description != nil {
		s.Description = *c.Description
	}
}

// Payload is the stored body of a change request: the proposed changes (none for a
// delete) and the display name of the requester when it could be resolved.
type Payload struct {
	Changes
	RequestedByName string `json:"requested_by_name,omitempty"`
}

type ChangeRequest struct {
	ID             string      `json:"id"`
	SettlementID   string      `json:"settlement_id"`
	SettlementDate time.Time   `json:"settlement_date"`
	RequestedBy    string      `json:"requested_by"`
	RequestType    string      `json:"request_type"`
	Payload        Payload     `json:"payload"`
	Reason         string      `json:"reason"`
	Status         string      `json:"status"`
	ReviewedBy     null.String `json:"reviewed_by"`
	ReviewedAt     null.Time   `json:"reviewed_at"`
	CreatedAt      time.Time   `json:"created_at"`

	// NameResolved tells whether the requester name lookup succeeded when the request was made.
	NameResolved bool `json:"name_resolved"`
}

// Review is the outcome of approving or rejecting a change request.
type Review struct {
	Request ChangeRequest `json:"request"`
	Applied bool          `json:"applied"`
}

// Filter selects settlements; From/To bound the date (inclusive).
type Filter struct {
	From      core.Date `query:"from"`
	To        core.Date `query:"to"`
	Type      string    `query:"type"`
	CreatedBy string    `query:"created_by"`
}

// RequestFilter selects change requests. Date filters on the settlement date;
// an empty Status means pending, StatusAll means any status.
type RequestFilter struct {
	Date   core.Date `query:"date"`
	UserID string    `query:"user_id"`
	Status string    `query:"status"`
}

type CategoryTotal struct {
	Type     string          `json:"type"`
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

type DayTotal struct {
	Date    time.Time       `json:"date"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

// Summary aggregates the settlements of a period.
type Summary struct {
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Income     decimal.Decimal `json:"income"`
	Expense    decimal.Decimal `json:"expense"`
	Net        decimal.Decimal `json:"net"`
	ByDay      []DayTotal      `json:"by_day"`
	ByCategory []CategoryTotal `json:"by_category"`
}
