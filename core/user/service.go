package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/halldesk/halldesk/core"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrUserExists         = errors.New("a user with this username or email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")

	errNoPermsToSetRole = "not enough rights to set this role"
)

type (
	Repository interface {
		CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) (int, error)
	}

	// AccountStore is the identity provider holding credentials.
	AccountStore interface {
		CreateAccount(ctx context.Context, acc Account) (Account, error)
		GetAccount(ctx context.Context, id string) (Account, error)
		UpdateAccount(ctx context.Context, acc Account) error
		DeleteAccount(ctx context.Context, id string) error
	}

	Service struct {
		repo     Repository
		accounts AccountStore
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(repo Repository, accounts AccountStore, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		validate: validate,
		logger:   logger,
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string, exclIDs ...string) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, exclIDs...); err != nil {
		if err == ErrUserExists {
			return core.NewValidationError(err, core.FieldError{Field: "username", Error: err.Error()})
		}
		return errors.Wrap(err, "checking user uniqueness")
	}
	return nil
}

// Create creates the identity account then the profile of a new user.
// Only elevated users may create users, and never with a role above their own.
// If the profile cannot be stored the account is removed again.
func (svc *Service) Create(ctx context.Context, sess Session, nu NewUser) (User, error) {
	if !sess.User.IsActive || !sess.User.IsElevated() {
		return User{}, core.ErrForbidden
	}

	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, err
	}
	if RolePriority(nu.Role) > sess.User.Priority() {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "user_role", Error: errNoPermsToSetRole})
	}
	if nu.Email == "" {
		nu.Email = DefaultEmail(nu.Username)
	}
	if err := svc.checkUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	acc := Account{
		ID:        uuid.New().String(),
		Email:     nu.Email,
		CreatedAt: now,
	}
	if err := acc.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	acc, err := svc.accounts.CreateAccount(ctx, acc)
	if err != nil {
		return User{}, errors.Wrap(err, "creating account")
	}

	usr, err := svc.repo.CreateUser(ctx, User{
		ID:        acc.ID,
		Username:  nu.Username,
		Email:     nu.Email,
		FullName:  nu.FullName,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		// do not leave an orphan account behind
		if delErr := svc.accounts.DeleteAccount(ctx, acc.ID); delErr != nil {
			svc.logger.Error("removing orphan account "+acc.ID, delErr)
		}
		return User{}, errors.Wrap(err, "creating profile")
	}
	return usr, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

// Update modifies a user. Users may change their own name and password;
// everything else (and other users) requires elevated rights.
func (svc *Service) Update(ctx context.Context, sess Session, id string, uu UpdateUser) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}

	self := sess.User.ID == usr.ID
	elevated := sess.User.IsActive && sess.User.IsElevated()
	if !(self || elevated) {
		return User{}, core.ErrForbidden
	}
	if !elevated && (uu.Role != "" || uu.IsActive != nil || uu.Email != "") {
		return User{}, core.ErrForbidden
	}

	uu.Clean()
	if err = svc.validate.Struct(uu); err != nil {
		return User{}, err
	}
	if uu.Role != "" && (RolePriority(uu.Role) > sess.User.Priority() || usr.Priority() > sess.User.Priority()) {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "user_role", Error: errNoPermsToSetRole})
	}
	if uu.Email != "" && uu.Email != usr.Email {
		if err = svc.checkUniqueness(ctx, "", uu.Email, usr.ID); err != nil {
			return User{}, err
		}
		usr.Email = uu.Email
	}
	if uu.FullName != "" {
		usr.FullName = uu.FullName
	}
	if uu.Role != "" {
		usr.Role = uu.Role
	}
	if uu.IsActive != nil {
		if self && !*uu.IsActive {
			return User{}, core.NewFieldValidationError("is_active", "you cannot deactivate yourself")
		}
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err = svc.SetPassword(ctx, usr.ID, uu.Password); err != nil {
			return User{}, err
		}
	}
	usr.UpdatedAt = time.Now().UTC()

	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

// Delete removes users and their accounts. Users cannot delete themselves.
func (svc *Service) Delete(ctx context.Context, sess Session, ids ...string) (int, error) {
	if !sess.User.IsActive || !sess.User.IsElevated() {
		return 0, core.ErrForbidden
	}
	for _, id := range ids {
		if id == sess.User.ID {
			return 0, core.ErrForbidden
		}
	}

	cnt, err := svc.repo.DeleteUsersByID(ctx, ids...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	for _, id := range ids {
		if err = svc.accounts.DeleteAccount(ctx, id); err != nil && errors.Cause(err) != ErrNotFound {
			svc.logger.Warn("deleting account "+id, err)
		}
	}
	return cnt, nil
}

// Authenticate checks the credentials of a username (or email) and records the login.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by username or email")
	}
	acc, err := svc.accounts.GetAccount(ctx, usr.ID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding account")
	}
	if err = acc.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	usr.LastLogin = null.TimeFrom(time.Now().UTC())
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}

// SetPassword replaces the password of the account of user `id`.
func (svc *Service) SetPassword(ctx context.Context, id, pwd string) error {
	acc, err := svc.accounts.GetAccount(ctx, id)
	if err != nil {
		return errors.Wrap(err, "finding account")
	}
	if err = acc.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	return errors.Wrap(svc.accounts.UpdateAccount(ctx, acc), "updating account")
}

// DisplayName resolves the name shown for user `id`.
func (svc *Service) DisplayName(ctx context.Context, id string) (string, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return usr.DisplayName(), nil
}
