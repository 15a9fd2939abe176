package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/settlement"
)

const (
	settlementsTable = "daily_settlements"
	requestsTable    = "settlement_change_requests"
)

type settlementRepository struct {
	db *sqlx.DB
}

var _ settlement.Repository = (*settlementRepository)(nil)

func NewSettlementRepository(db *sqlx.DB) settlement.Repository {
	return &settlementRepository{db: db}
}

type settlementRow struct {
	ID          string          `db:"id"`
	Date        time.Time       `db:"date"`
	Type        string          `db:"type"`
	Amount      decimal.Decimal `db:"amount"`
	Source      string          `db:"source"`
	Category    string          `db:"category"`
	Description string          `db:"description"`
	CreatedBy   null.String     `db:"created_by"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

var settlementColumns = []string{
	"id", "date", "type", "amount", "source", "category", "description", "created_by", "created_at", "updated_at",
}

func unboilSettlement(r settlementRow) settlement.Settlement {
	return settlement.Settlement{
		ID:          r.ID,
		Date:        core.TruncateDate(r.Date),
		Type:        r.Type,
		Amount:      r.Amount,
		Source:      r.Source,
		Category:    r.Category,
		Description: r.Description,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// liveSettlements selects the settlements that are not soft-deleted.
func liveSettlements() sq.SelectBuilder {
	return psql.Select(settlementColumns...).From(settlementsTable).Where(sq.Eq{"deleted_at": nil})
}

func (repo *settlementRepository) CreateSettlement(ctx context.Context, s settlement.Settlement) (settlement.Settlement, error) {
	b := psql.Insert(settlementsTable).Columns(settlementColumns...).Values(
		s.ID, s.Date, s.Type, s.Amount, s.Source, s.Category, s.Description, nullID(s.CreatedBy),
		s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if _, err := execQuery(ctx, repo.db, b); err != nil {
		return settlement.Settlement{}, errors.Wrap(err, "inserting settlement")
	}
	return s, nil
}

func (repo *settlementRepository) GetSettlement(ctx context.Context, id string) (settlement.Settlement, error) {
	if !isUUID(id) {
		return settlement.Settlement{}, settlement.ErrNotFound
	}
	var row settlementRow
	if err := getRow(ctx, repo.db, &row, liveSettlements().Where(sq.Eq{"id": id})); err != nil {
		return settlement.Settlement{}, trapNoRowsErr(err, settlement.ErrNotFound, "finding settlement")
	}
	return unboilSettlement(row), nil
}

func settlementsQuery(filter settlement.Filter) sq.SelectBuilder {
	b := liveSettlements()
	if !filter.From.IsZero() {
		b = b.Where(sq.GtOrEq{"date": core.TruncateDate(filter.From.Time)})
	}
	if !filter.To.IsZero() {
		b = b.Where(sq.LtOrEq{"date": core.TruncateDate(filter.To.Time)})
	}
	if filter.Type != "" {
		b = b.Where(sq.Eq{"type": filter.Type})
	}
	if filter.CreatedBy != "" {
		b = b.Where(sq.Eq{"created_by": filter.CreatedBy})
	}
	return b.OrderBy("date DESC", "created_at DESC")
}

func (repo *settlementRepository) QuerySettlements(ctx context.Context, filter settlement.Filter) ([]settlement.Settlement, error) {
	var rows []settlementRow
	if err := selectRows(ctx, repo.db, &rows, settlementsQuery(filter)); err != nil {
		return nil, errors.Wrap(err, "querying settlements")
	}
	list := make([]settlement.Settlement, len(rows))
	for i, r := range rows {
		list[i] = unboilSettlement(r)
	}
	return list, nil
}

func (repo *settlementRepository) UpdateSettlement(ctx context.Context, s settlement.Settlement) (settlement.Settlement, error) {
	b := psql.Update(settlementsTable).SetMap(map[string]interface{}{
		"date":        s.Date,
		"type":        s.Type,
		"amount":      s.Amount,
		"source":      s.Source,
		"category":    s.Category,
		"description": s.Description,
		"updated_at":  s.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": s.ID, "deleted_at": nil})
	n, err := execQuery(ctx, repo.db, b)
	if err != nil {
		return settlement.Settlement{}, errors.Wrap(err, "updating settlement")
	}
	if n == 0 {
		return settlement.Settlement{}, settlement.ErrNotFound
	}
	return s, nil
}

func (repo *settlementRepository) DeleteSettlement(ctx context.Context, id string, at time.Time) error {
	if !isUUID(id) {
		return settlement.ErrNotFound
	}
	b := psql.Update(settlementsTable).Set("deleted_at", at.UTC()).Where(sq.Eq{"id": id, "deleted_at": nil})
	n, err := execQuery(ctx, repo.db, b)
	if err != nil {
		return errors.Wrap(err, "deleting settlement")
	}
	if n == 0 {
		return settlement.ErrNotFound
	}
	return nil
}

// Change requests

type requestRow struct {
	ID             string      `db:"id"`
	SettlementID   string      `db:"settlement_id"`
	SettlementDate time.Time   `db:"settlement_date"`
	RequestedBy    string      `db:"requested_by"`
	RequestType    string      `db:"request_type"`
	Payload        []byte      `db:"payload"`
	Reason         string      `db:"reason"`
	Status         string      `db:"status"`
	ReviewedBy     null.String `db:"reviewed_by"`
	ReviewedAt     null.Time   `db:"reviewed_at"`
	CreatedAt      time.Time   `db:"created_at"`
}

func unboilRequest(r requestRow) (settlement.ChangeRequest, error) {
	cr := settlement.ChangeRequest{
		ID:             r.ID,
		SettlementID:   r.SettlementID,
		SettlementDate: core.TruncateDate(r.SettlementDate),
		RequestedBy:    r.RequestedBy,
		RequestType:    r.RequestType,
		Reason:         r.Reason,
		Status:         r.Status,
		ReviewedBy:     r.ReviewedBy,
		ReviewedAt:     r.ReviewedAt,
		CreatedAt:      r.CreatedAt,
	}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &cr.Payload); err != nil {
			return settlement.ChangeRequest{}, errors.Wrapf(err, "decoding payload of request %s", r.ID)
		}
	}
	return cr, nil
}

// requestsQuery joins the parent settlement, deleted or not, for its date.
func requestsQuery() sq.SelectBuilder {
	return psql.Select(
		"r.id", "r.settlement_id", "s.date AS settlement_date", "r.requested_by", "r.request_type", "r.payload",
		"r.reason", "r.status", "r.reviewed_by", "r.reviewed_at", "r.created_at",
	).From(requestsTable + " r").Join(settlementsTable + " s ON s.id = r.settlement_id")
}

func (repo *settlementRepository) CreateRequest(ctx context.Context, r settlement.ChangeRequest) (settlement.ChangeRequest, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return settlement.ChangeRequest{}, errors.Wrap(err, "encoding payload")
	}
	b := psql.Insert(requestsTable).
		Columns("id", "settlement_id", "requested_by", "request_type", "payload", "reason", "status", "created_at").
		Values(r.ID, r.SettlementID, r.RequestedBy, r.RequestType, payload, r.Reason, r.Status, r.CreatedAt.UTC())
	if _, err = execQuery(ctx, repo.db, b); err != nil {
		return settlement.ChangeRequest{}, errors.Wrap(err, "inserting change request")
	}
	r.NameResolved = false
	return r, nil
}

func (repo *settlementRepository) GetRequest(ctx context.Context, id string) (settlement.ChangeRequest, error) {
	if !isUUID(id) {
		return settlement.ChangeRequest{}, settlement.ErrRequestNotFound
	}
	var row requestRow
	if err := getRow(ctx, repo.db, &row, requestsQuery().Where(sq.Eq{"r.id": id})); err != nil {
		return settlement.ChangeRequest{}, trapNoRowsErr(err, settlement.ErrRequestNotFound, "finding change request")
	}
	return unboilRequest(row)
}

func requestsFilterQuery(filter settlement.RequestFilter) sq.SelectBuilder {
	b := requestsQuery()
	if filter.Status != "" {
		b = b.Where(sq.Eq{"r.status": filter.Status})
	}
	if filter.UserID != "" {
		b = b.Where(sq.Eq{"r.requested_by": filter.UserID})
	}
	if !filter.Date.IsZero() {
		b = b.Where(sq.Eq{"s.date": core.TruncateDate(filter.Date.Time)})
	}
	return b.OrderBy("r.created_at DESC")
}

func (repo *settlementRepository) QueryRequests(ctx context.Context, filter settlement.RequestFilter) ([]settlement.ChangeRequest, error) {
	if filter.UserID != "" && !isUUID(filter.UserID) {
		return make([]settlement.ChangeRequest, 0), nil
	}
	var rows []requestRow
	if err := selectRows(ctx, repo.db, &rows, requestsFilterQuery(filter)); err != nil {
		return nil, errors.Wrap(err, "querying change requests")
	}
	list := make([]settlement.ChangeRequest, 0, len(rows))
	for _, r := range rows {
		cr, err := unboilRequest(r)
		if err != nil {
			return nil, err
		}
		list = append(list, cr)
	}
	return list, nil
}

// CloseRequest only updates a request that is still pending, so concurrent reviews
// cannot both succeed.
func (repo *settlementRepository) CloseRequest(ctx context.Context, id, status, reviewedBy string, at time.Time) (settlement.ChangeRequest, error) {
	if !isUUID(id) {
		return settlement.ChangeRequest{}, settlement.ErrRequestNotFound
	}
	b := psql.Update(requestsTable).
		Set("status", status).
		Set("reviewed_by", nullID(reviewedBy)).
		Set("reviewed_at", at.UTC()).
		Where(sq.Eq{"id": id, "status": settlement.StatusPending})
	n, err := execQuery(ctx, repo.db, b)
	if err != nil {
		return settlement.ChangeRequest{}, errors.Wrap(err, "closing change request")
	}

	cr, err := repo.GetRequest(ctx, id)
	if err != nil {
		return settlement.ChangeRequest{}, err
	}
	if n == 0 {
		return settlement.ChangeRequest{}, settlement.ErrRequestClosed
	}
	return cr, nil
}
