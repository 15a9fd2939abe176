package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/user"
)

const profilesTable = "profiles"

var profileColumns = []string{
	"id", "username", "email", "full_name", "role", "is_admin", "is_active", "created_at", "updated_at", "last_login",
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func uniquenessQuery(username, email string, excludedIDs []string) sq.SelectBuilder {
	var or sq.Or
	if username != "" {
		or = append(or, sq.Eq{"username": username})
	}
	if email != "" {
		or = append(or, sq.Eq{"email": email})
	}
	b := psql.Select("COUNT(*)").From(profilesTable).Where(or)
	if len(excludedIDs) > 0 {
		b = b.Where(sq.NotEq{"id": excludedIDs})
	}
	return b
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	if username == "" && email == "" {
		return nil
	}
	var cnt int
	if err := getRow(ctx, repo.db, &cnt, uniquenessQuery(username, email, excludedIDs)); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if cnt > 0 {
		return user.ErrUserExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	b := psql.Insert(profilesTable).Columns(profileColumns...).Values(
		usr.ID, usr.Username, usr.Email, usr.FullName, usr.Role, usr.IsAdmin, usr.IsActive,
		usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(), usr.LastLogin,
	)
	if _, err := execQuery(ctx, repo.db, b); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func usersQuery(filter *user.QueryFilter, ordering []core.DBOrdering) sq.SelectBuilder {
	b := psql.Select(profileColumns...).From(profilesTable)
	if filter != nil {
		// users with FullName, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			b = b.Where(sq.Or{
				sq.ILike{"full_name": val},
				sq.ILike{"username": val},
				sq.ILike{"email": val},
			})
		}
		if len(filter.Roles) > 0 {
			b = b.Where(sq.Eq{"role": filter.Roles})
		}
		if filter.IsActive != nil {
			b = b.Where(sq.Eq{"is_active": *filter.IsActive})
		}
	}

	if len(ordering) == 0 {
		return b.OrderBy("username ASC")
	}
	for _, ord := range ordering {
		b = b.OrderBy(ord.String())
	}
	return b
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	users := make([]user.User, 0)
	if err := selectRows(ctx, repo.db, &users, usersQuery(filter, ordering)); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	b := psql.Select(profileColumns...).From(profilesTable).Limit(1)
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		b = b.Where(sq.Eq{"id": filter.ID})
	case filter.Username != "":
		b = b.Where(sq.Eq{"username": filter.Username})
	case filter.Email != "":
		b = b.Where(sq.Eq{"email": filter.Email})
	case filter.UsernameOrEmail != "":
		b = b.Where(sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}})
	default:
		return user.User{}, user.ErrNotFound
	}

	var usr user.User
	if err := getRow(ctx, repo.db, &usr, b); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return usr, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	b := psql.Update(profilesTable).SetMap(map[string]interface{}{
		"email":      usr.Email,
		"full_name":  usr.FullName,
		"role":       usr.Role,
		"is_admin":   usr.IsAdmin,
		"is_active":  usr.IsActive,
		"updated_at": usr.UpdatedAt.UTC(),
		"last_login": usr.LastLogin,
	}).Where(sq.Eq{"id": usr.ID})

	n, err := execQuery(ctx, repo.db, b)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	n, err := execQuery(ctx, repo.db, psql.Delete(profilesTable).Where(sq.Eq{"id": valid}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return n, nil
}

const accountsTable = "accounts"

type accountStore struct {
	db *sqlx.DB
}

var _ user.AccountStore = (*accountStore)(nil)

func NewAccountStore(db *sqlx.DB) user.AccountStore {
	return &accountStore{db: db}
}

func (store *accountStore) CreateAccount(ctx context.Context, acc user.Account) (user.Account, error) {
	b := psql.Insert(accountsTable).
		Columns("id", "email", "password_hash", "created_at").
		Values(acc.ID, acc.Email, acc.PasswordHash, acc.CreatedAt.UTC())
	if _, err := execQuery(ctx, store.db, b); err != nil {
		if isUniqueViolation(err) {
			return user.Account{}, user.ErrUserExists
		}
		return user.Account{}, errors.Wrap(err, "inserting account")
	}
	return acc, nil
}

func (store *accountStore) GetAccount(ctx context.Context, id string) (user.Account, error) {
	if !isUUID(id) {
		return user.Account{}, user.ErrNotFound
	}
	b := psql.Select("id", "email", "password_hash", "created_at").From(accountsTable).Where(sq.Eq{"id": id})
	var acc user.Account
	if err := getRow(ctx, store.db, &acc, b); err != nil {
		return user.Account{}, trapNoRowsErr(err, user.ErrNotFound, "finding account")
	}
	return acc, nil
}

func (store *accountStore) UpdateAccount(ctx context.Context, acc user.Account) error {
	b := psql.Update(accountsTable).
		Set("email", acc.Email).
		Set("password_hash", acc.PasswordHash).
		Where(sq.Eq{"id": acc.ID})
	n, err := execQuery(ctx, store.db, b)
	if err != nil {
		return errors.Wrap(err, "updating account")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (store *accountStore) DeleteAccount(ctx context.Context, id string) error {
	if !isUUID(id) {
		return user.ErrNotFound
	}
	n, err := execQuery(ctx, store.db, psql.Delete(accountsTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting account")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}
