package settlement

import (
	"context"
	"net/mail"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("settlement not found")
	ErrRequestNotFound = errors.New("change request not found")
	ErrRequestClosed   = errors.New("change request already reviewed")
	ErrNoChanges       = errors.New("no changes requested")
)

const reviewedTemplate = "change_request_reviewed"

type (
	Repository interface {
		CreateSettlement(ctx context.Context, s Settlement) (Settlement, error)
		GetSettlement(ctx context.Context, id string) (Settlement, error)
		QuerySettlements(ctx context.Context, filter Filter) ([]Settlement, error)
		UpdateSettlement(ctx context.Context, s Settlement) (Settlement, error)
		// DeleteSettlement soft-deletes a settlement so its change requests stay listable.
		DeleteSettlement(ctx context.Context, id string, at time.Time) error

		CreateRequest(ctx context.Context, r ChangeRequest) (ChangeRequest, error)
		GetRequest(ctx context.Context, id string) (ChangeRequest, error)
		QueryRequests(ctx context.Context, filter RequestFilter) ([]ChangeRequest, error)
		// CloseRequest moves a pending request to status. It returns ErrRequestClosed
		// when the request is no longer pending.
		CloseRequest(ctx context.Context, id, status, reviewedBy string, at time.Time) (ChangeRequest, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo     Repository
		users    UserGetter
		mailer   core.EmailService
		conf     *core.Config
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(repo Repository, users UserGetter, mailer core.EmailService, conf *core.Config, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		mailer:   mailer,
		conf:     conf,
		validate: validate,
		logger:   logger,
	}
}

// Ledger

func (svc *Service) Create(ctx context.Context, sess user.Session, ns NewSettlement) (Settlement, error) {
	if err := sess.Require(user.ActionManageSettlements); err != nil {
		return Settlement{}, err
	}
	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Settlement{}, err
	}
	if !ns.Amount.IsPositive() {
		return Settlement{}, core.NewFieldValidationError("amount", "amount must be greater than 0")
	}

	date := sess.Today()
	if !ns.Date.IsZero() {
		date = core.TruncateDate(ns.Date.Time)
	}
	now := time.Now().UTC()
	s, err := svc.repo.CreateSettlement(ctx, Settlement{
		ID:          uuid.New().String(),
		Date:        date,
		Type:        ns.Type,
		Amount:      ns.Amount,
		Source:      ns.Source,
		Category:    ns.Category,
		Description: ns.Description,
		CreatedBy:   sess.User.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return s, errors.Wrap(err, "creating settlement")
}

func (svc *Service) Get(ctx context.Context, id string) (Settlement, error) {
	return svc.repo.GetSettlement(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter Filter) ([]Settlement, error) {
	return svc.repo.QuerySettlements(ctx, filter)
}

// canModify reports whether the session may change s directly, without a change request.
func canModify(sess user.Session, s Settlement) bool {
	if sess.Can(user.ActionReviewChangeRequests) {
		return true
	}
	return sess.Can(user.ActionManageSettlements) && s.CreatedBy == sess.User.ID
}

func (svc *Service) validateChanges(c Changes) error {
	if c.IsEmpty() {
		return core.NewValidationError(ErrNoChanges, core.FieldError{Field: "changes", Error: ErrNoChanges.Error()})
	}
	if c.Type != nil && *c.Type == "" {
		return core.NewFieldValidationError("type", "type is required")
	}
	if c.Category != nil && *c.Category == "" {
		return core.NewFieldValidationError("category", "category is required")
	}
	if err := svc.validate.Struct(c); err != nil {
		return err
	}
	if c.Amount != nil && !c.Amount.IsPositive() {
		return core.NewFieldValidationError("amount", "amount must be greater than 0")
	}
	if c.Date != nil && c.Date.IsZero() {
		return core.NewFieldValidationError("date", "invalid date")
	}
	return nil
}

// Update changes a settlement directly. Other users' settlements need a change request.
func (svc *Service) Update(ctx context.Context, sess user.Session, id string, c Changes) (Settlement, error) {
	s, err := svc.repo.GetSettlement(ctx, id)
	if err != nil {
		return Settlement{}, err
	}
	if !canModify(sess, s) {
		return Settlement{}, core.ErrForbidden
	}
	c.Clean()
	if err = svc.validateChanges(c); err != nil {
		return Settlement{}, err
	}
	c.Apply(&s)
	s.UpdatedAt = time.Now().UTC()

	s, err = svc.repo.UpdateSettlement(ctx, s)
	return s, errors.Wrap(err, "updating settlement")
}

// Delete removes a settlement directly. Other users' settlements need a change request.
func (svc *Service) Delete(ctx context.Context, sess user.Session, id string) error {
	s, err := svc.repo.GetSettlement(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(sess, s) {
		return core.ErrForbidden
	}
	return errors.Wrap(svc.repo.DeleteSettlement(ctx, id, time.Now().UTC()), "deleting settlement")
}

// Summary totals the settlements between from and to, per day and per category.
func (svc *Service) Summary(ctx context.Context, from, to time.Time) (Summary, error) {
	list, err := svc.repo.QuerySettlements(ctx, Filter{From: core.DateOf(from), To: core.DateOf(to)})
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying settlements")
	}
	return Summarize(list, from, to), nil
}

// Summarize aggregates settlements in memory.
func Summarize(list []Settlement, from, to time.Time) Summary {
	sum := Summary{
		From:       core.TruncateDate(from),
		To:         core.TruncateDate(to),
		ByDay:      []DayTotal{},
		ByCategory: []CategoryTotal{},
	}
	days := make(map[time.Time]*DayTotal)
	cats := make(map[[2]string]*CategoryTotal)
	for _, s := range list {
		day, ok := days[s.Date]
		if !ok {
			day = &DayTotal{Date: s.Date}
			days[s.Date] = day
		}
		key := [2]string{s.Type, s.Category}
		cat, ok := cats[key]
		if !ok {
			cat = &CategoryTotal{Type: s.Type, Category: s.Category}
			cats[key] = cat
		}
		cat.Total = cat.Total.Add(s.Amount)

		if s.Type == TypeIncome {
			sum.Income = sum.Income.Add(s.Amount)
			day.Income = day.Income.Add(s.Amount)
		} else {
			sum.Expense = sum.Expense.Add(s.Amount)
			day.Expense = day.Expense.Add(s.Amount)
		}
	}
	sum.Net = sum.Income.Sub(sum.Expense)

	for _, day := range days {
		day.Net = day.Income.Sub(day.Expense)
		sum.ByDay = append(sum.ByDay, *day)
	}
	sort.Slice(sum.ByDay, func(i, j int) bool { return sum.ByDay[i].Date.Before(sum.ByDay[j].Date) })

	for _, cat := range cats {
		sum.ByCategory = append(sum.ByCategory, *cat)
	}
	sort.Slice(sum.ByCategory, func(i, j int) bool {
		if sum.ByCategory[i].Type != sum.ByCategory[j].Type {
			return sum.ByCategory[i].Type < sum.ByCategory[j].Type
		}
		return sum.ByCategory[i].Category < sum.ByCategory[j].Category
	})
	return sum
}

// Change requests

// RequestEdit asks for changes on a settlement. The requester's display name is added
// to the payload when it can be looked up; a failed lookup does not block the request.
func (svc *Service) RequestEdit(ctx context.Context, sess user.Session, settlementID string, c Changes, reason string) (ChangeRequest, error) {
	c.Clean()
	if err := svc.validateChanges(c); err != nil {
		return ChangeRequest{}, err
	}
	return svc.request(ctx, sess, settlementID, RequestEdit, c, reason)
}

// RequestDelete asks for the removal of a settlement.
func (svc *Service) RequestDelete(ctx context.Context, sess user.Session, settlementID, reason string) (ChangeRequest, error) {
	return svc.request(ctx, sess, settlementID, RequestDelete, Changes{}, reason)
}

func (svc *Service) request(ctx context.Context, sess user.Session, settlementID, reqType string, c Changes, reason string) (ChangeRequest, error) {
	if err := sess.Require(user.ActionView); err != nil {
		return ChangeRequest{}, err
	}
	reason = core.CleanString(reason)
	if len(reason) > 500 {
		return ChangeRequest{}, core.NewFieldValidationError("reason", "reason must be a maximum of 500 characters in length")
	}
	s, err := svc.repo.GetSettlement(ctx, settlementID)
	if err != nil {
		return ChangeRequest{}, err
	}

	payload := Payload{Changes: c}
	resolved := false
	if usr, err := svc.users.GetByID(ctx, sess.User.ID); err != nil {
		svc.logger.Warn("resolving requester name of "+sess.User.ID, err)
	} else {
		payload.RequestedByName = usr.DisplayName()
		resolved = true
	}

	req, err := svc.repo.CreateRequest(ctx, ChangeRequest{
		ID:             uuid.New().String(),
		SettlementID:   s.ID,
		SettlementDate: s.Date,
		RequestedBy:    sess.User.ID,
		RequestType:    reqType,
		Payload:        payload,
		Reason:         reason,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return ChangeRequest{}, errors.Wrap(err, "creating change request")
	}
	req.NameResolved = resolved
	return req, nil
}

// ListRequests lists change requests, pending ones unless filter.Status says otherwise.
func (svc *Service) ListRequests(ctx context.Context, filter RequestFilter) ([]ChangeRequest, error) {
	switch filter.Status {
	case "":
		filter.Status = StatusPending
	case StatusAll:
		filter.Status = ""
	case StatusPending, StatusApproved, StatusRejected:
	default:
		return nil, core.NewFieldValidationError("status", "invalid status")
	}
	return svc.repo.QueryRequests(ctx, filter)
}

func (svc *Service) GetRequest(ctx context.Context, id string) (ChangeRequest, error) {
	return svc.repo.GetRequest(ctx, id)
}

// Approve closes a pending request as approved. When settlements.applyOnApprove is set,
// the requested edit is applied to the settlement, or the settlement is deleted.
func (svc *Service) Approve(ctx context.Context, sess user.Session, id string) (Review, error) {
	return svc.review(ctx, sess, id, StatusApproved)
}

// Reject closes a pending request as rejected.
func (svc *Service) Reject(ctx context.Context, sess user.Session, id string) (Review, error) {
	return svc.review(ctx, sess, id, StatusRejected)
}

func (svc *Service) review(ctx context.Context, sess user.Session, id, status string) (Review, error) {
	if err := sess.Require(user.ActionReviewChangeRequests); err != nil {
		return Review{}, err
	}
	req, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		return Review{}, err
	}
	if req.Status != StatusPending {
		return Review{Request: req}, ErrRequestClosed
	}

	// conditional on the request still being pending
	req, err = svc.repo.CloseRequest(ctx, id, status, sess.User.ID, time.Now().UTC())
	if err != nil {
		return Review{}, err
	}
	rev := Review{Request: req}

	if status == StatusApproved && svc.conf.Settlements.ApplyOnApprove {
		if rev.Applied, err = svc.apply(ctx, req); err != nil {
			return rev, err
		}
	}
	svc.notify(ctx, sess, rev)
	return rev, nil
}

// apply carries out an approved request. A settlement deleted meanwhile is not an error.
func (svc *Service) apply(ctx context.Context, req ChangeRequest) (bool, error) {
	s, err := svc.repo.GetSettlement(ctx, req.SettlementID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			svc.logger.Warn("applying change request " + req.ID + ": settlement is gone")
			return false, nil
		}
		return false, errors.Wrap(err, "loading settlement")
	}

	switch req.RequestType {
	case RequestEdit:
		req.Payload.Changes.Apply(&s)
		s.UpdatedAt = time.Now().UTC()
		if _, err = svc.repo.UpdateSettlement(ctx, s); err != nil {
			return false, errors.Wrap(err, "applying settlement changes")
		}
	case RequestDelete:
		if err = svc.repo.DeleteSettlement(ctx, s.ID, time.Now().UTC()); err != nil {
			return false, errors.Wrap(err, "deleting settlement")
		}
	default:
		return false, errors.Errorf("unknown request type %q", req.RequestType)
	}
	return true, nil
}

type reviewedEmailData struct {
	RequesterName string
	ReviewerName  string
	Request       ChangeRequest
	Applied       bool
}

// notify emails the requester about the review outcome. Failures are only logged.
func (svc *Service) notify(ctx context.Context, sess user.Session, rev Review) {
	requester, err := svc.users.GetByID(ctx, rev.Request.RequestedBy)
	if err != nil {
		svc.logger.Warn("loading requester "+rev.Request.RequestedBy+" for notification", err)
		return
	}
	if requester.Email == "" {
		return
	}
	svc.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: requester.DisplayName(), Address: requester.Email}},
		Subject:      "Your settlement " + rev.Request.RequestType + " request was " + rev.Request.Status,
		TemplateName: reviewedTemplate,
		TemplateData: reviewedEmailData{
			RequesterName: requester.DisplayName(),
			ReviewerName:  sess.User.DisplayName(),
			Request:       rev.Request,
			Applied:       rev.Applied,
		},
	})
}
