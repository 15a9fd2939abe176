package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/user"
)

type userRepository struct {
	db *table[user.User]
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.users}
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedIDs ...string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.rows {
		if containsStr(excludedIDs, usr.ID) {
			continue
		}
		if (username != "" && usr.Username == username) || (email != "" && usr.Email == email) {
			return user.ErrUserExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, u := range repo.db.rows {
		if u.Username == usr.Username || u.Email == usr.Email {
			return user.User{}, user.ErrUserExists
		}
	}
	repo.db.rows[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.rows))
	for _, usr := range repo.db.all() {
		if filter != nil {
			if filter.Search != "" {
				s := strings.ToLower(filter.Search)
				if !strings.Contains(usr.Username, s) && !strings.Contains(usr.Email, s) &&
					!strings.Contains(strings.ToLower(usr.FullName), s) {
					continue
				}
			}
			if len(filter.Roles) > 0 && !containsStr(filter.Roles, usr.Role) {
				continue
			}
			if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
				continue
			}
		}
		users = append(users, usr)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "username", Ascending: true}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, o := range ordering {
			a, b := userField(users[i], o.Field), userField(users[j], o.Field)
			if a == b {
				continue
			}
			if o.Ascending {
				return a < b
			}
			return a > b
		}
		return false
	})
	return users, nil
}

func userField(usr user.User, field string) string {
	switch field {
	case "email":
		return usr.Email
	case "full_name":
		return usr.FullName
	case "role":
		return usr.Role
	case "created_at":
		return usr.CreatedAt.Format("20060102150405.000000000")
	default:
		return usr.Username
	}
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.rows[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.rows {
		switch {
		case filter.Username != "" && usr.Username == filter.Username,
			filter.Email != "" && usr.Email == filter.Email,
			filter.UsernameOrEmail != "" && (usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail):
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.rows[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.rows[id]; ok {
			delete(repo.db.rows, id)
			cnt++
		}
	}
	return cnt, nil
}

type accountStore struct {
	db *table[user.Account]
}

var _ user.AccountStore = (*accountStore)(nil)

func NewAccountStore(db *DB) user.AccountStore {
	return &accountStore{db: db.accounts}
}

func (store *accountStore) CreateAccount(_ context.Context, acc user.Account) (user.Account, error) {
	store.db.mutex.Lock()
	defer store.db.mutex.Unlock()

	for _, a := range store.db.rows {
		if a.Email == acc.Email {
			return user.Account{}, user.ErrUserExists
		}
	}
	store.db.rows[acc.ID] = acc
	return acc, nil
}

func (store *accountStore) GetAccount(_ context.Context, id string) (user.Account, error) {
	store.db.mutex.RLock()
	defer store.db.mutex.RUnlock()

	if acc, ok := store.db.rows[id]; ok {
		return acc, nil
	}
	return user.Account{}, user.ErrNotFound
}

func (store *accountStore) UpdateAccount(_ context.Context, acc user.Account) error {
	store.db.mutex.Lock()
	defer store.db.mutex.Unlock()

	if _, ok := store.db.rows[acc.ID]; !ok {
		return user.ErrNotFound
	}
	store.db.rows[acc.ID] = acc
	return nil
}

func (store *accountStore) DeleteAccount(_ context.Context, id string) error {
	store.db.mutex.Lock()
	defer store.db.mutex.Unlock()

	if _, ok := store.db.rows[id]; !ok {
		return user.ErrNotFound
	}
	delete(store.db.rows, id)
	return nil
}
