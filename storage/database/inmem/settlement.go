package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/settlement"
)

type storedSettlement struct {
	settlement.Settlement
	DeletedAt null.Time
}

type settlementRepository struct {
	settlements *table[storedSettlement]
	requests    *table[settlement.ChangeRequest]
}

var _ settlement.Repository = (*settlementRepository)(nil)

func NewSettlementRepository(db *DB) settlement.Repository {
	return &settlementRepository{
		settlements: db.settlements,
		requests:    db.requests,
	}
}

func (repo *settlementRepository) CreateSettlement(_ context.Context, s settlement.Settlement) (settlement.Settlement, error) {
	repo.settlements.mutex.Lock()
	defer repo.settlements.mutex.Unlock()
	repo.settlements.rows[s.ID] = storedSettlement{Settlement: s}
	return s, nil
}

func (repo *settlementRepository) GetSettlement(_ context.Context, id string) (settlement.Settlement, error) {
	repo.settlements.mutex.RLock()
	defer repo.settlements.mutex.RUnlock()
	if s, ok := repo.settlements.rows[id]; ok && !s.DeletedAt.Valid {
		return s.Settlement, nil
	}
	return settlement.Settlement{}, settlement.ErrNotFound
}

func (repo *settlementRepository) QuerySettlements(_ context.Context, filter settlement.Filter) ([]settlement.Settlement, error) {
	repo.settlements.mutex.RLock()
	defer repo.settlements.mutex.RUnlock()

	list := make([]settlement.Settlement, 0)
	for _, s := range repo.settlements.all() {
		if s.DeletedAt.Valid {
			continue
		}
		if !filter.From.IsZero() && s.Date.Before(core.TruncateDate(filter.From.Time)) {
			continue
		}
		if !filter.To.IsZero() && s.Date.After(core.TruncateDate(filter.To.Time)) {
			continue
		}
		if filter.Type != "" && s.Type != filter.Type {
			continue
		}
		if filter.CreatedBy != "" && s.CreatedBy != filter.CreatedBy {
			continue
		}
		list = append(list, s.Settlement)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].Date.Equal(list[j].Date) {
			return list[i].Date.After(list[j].Date)
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (repo *settlementRepository) UpdateSettlement(_ context.Context, s settlement.Settlement) (settlement.Settlement, error) {
	repo.settlements.mutex.Lock()
	defer repo.settlements.mutex.Unlock()
	orig, ok := repo.settlements.rows[s.ID]
	if !ok || orig.DeletedAt.Valid {
		return settlement.Settlement{}, settlement.ErrNotFound
	}
	repo.settlements.rows[s.ID] = storedSettlement{Settlement: s}
	return s, nil
}

func (repo *settlementRepository) DeleteSettlement(_ context.Context, id string, at time.Time) error {
	repo.settlements.mutex.Lock()
	defer repo.settlements.mutex.Unlock()
	s, ok := repo.settlements.rows[id]
	if !ok || s.DeletedAt.Valid {
		return settlement.ErrNotFound
	}
	s.DeletedAt = null.TimeFrom(at)
	repo.settlements.rows[id] = s
	return nil
}

// Change requests

func (repo *settlementRepository) CreateRequest(_ context.Context, r settlement.ChangeRequest) (settlement.ChangeRequest, error) {
	repo.requests.mutex.Lock()
	defer repo.requests.mutex.Unlock()
	r.NameResolved = false
	repo.requests.rows[r.ID] = r
	return r, nil
}

// withSettlementDate fills the date of the parent settlement, deleted or not.
func (repo *settlementRepository) withSettlementDate(r settlement.ChangeRequest) settlement.ChangeRequest {
	repo.settlements.mutex.RLock()
	defer repo.settlements.mutex.RUnlock()
	if s, ok := repo.settlements.rows[r.SettlementID]; ok {
		r.SettlementDate = s.Date
	}
	return r
}

func (repo *settlementRepository) GetRequest(_ context.Context, id string) (settlement.ChangeRequest, error) {
	repo.requests.mutex.RLock()
	r, ok := repo.requests.rows[id]
	repo.requests.mutex.RUnlock()
	if !ok {
		return settlement.ChangeRequest{}, settlement.ErrRequestNotFound
	}
	return repo.withSettlementDate(r), nil
}

func (repo *settlementRepository) QueryRequests(_ context.Context, filter settlement.RequestFilter) ([]settlement.ChangeRequest, error) {
	repo.requests.mutex.RLock()
	all := repo.requests.all()
	repo.requests.mutex.RUnlock()

	list := make([]settlement.ChangeRequest, 0)
	for _, r := range all {
		r = repo.withSettlementDate(r)
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && r.RequestedBy != filter.UserID {
			continue
		}
		if !filter.Date.IsZero() && !r.SettlementDate.Equal(core.TruncateDate(filter.Date.Time)) {
			continue
		}
		list = append(list, r)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (repo *settlementRepository) CloseRequest(_ context.Context, id, status, reviewedBy string, at time.Time) (settlement.ChangeRequest, error) {
	repo.requests.mutex.Lock()
	r, ok := repo.requests.rows[id]
	if !ok {
		repo.requests.mutex.Unlock()
		return settlement.ChangeRequest{}, settlement.ErrRequestNotFound
	}
	if r.Status != settlement.StatusPending {
		repo.requests.mutex.Unlock()
		return settlement.ChangeRequest{}, settlement.ErrRequestClosed
	}
	r.Status = status
	r.ReviewedBy = null.StringFrom(reviewedBy)
	r.ReviewedAt = null.TimeFrom(at)
	repo.requests.rows[id] = r
	repo.requests.mutex.Unlock()

	return repo.withSettlementDate(r), nil
}
