package user

import (
	"time"

	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/halldesk/halldesk/core"
)

// Roles
const (
	RoleOwner        = "owner"
	RoleManager      = "manager"
	RoleSpaceManager = "space_manager"
	RoleTeacher      = "teacher"
	RoleReadOnly     = "read_only"
)

var (
	AllRoles      = []string{RoleOwner, RoleManager, RoleSpaceManager, RoleTeacher, RoleReadOnly}
	ElevatedRoles = []string{RoleOwner, RoleManager}

	rolePriorities = map[string]int{
		RoleOwner:        50,
		RoleManager:      40,
		RoleSpaceManager: 30,
		RoleTeacher:      20,
		RoleReadOnly:     10,
	}

	Roles = []Role{
		{Name: "Owner", Value: RoleOwner},
		{Name: "Manager", Value: RoleManager},
		{Name: "Space Manager", Value: RoleSpaceManager},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Read Only", Value: RoleReadOnly},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func IsValidRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is the application profile attached to an identity Account.
type User struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	FullName  string    `json:"full_name" db:"full_name"`
	Role      string    `json:"role" db:"role"`
	IsAdmin   bool      `json:"is_admin" db:"is_admin"` // legacy elevated flag
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
	LastLogin null.Time `json:"last_login" db:"last_login"` // UTC
}

// IsElevated reports whether the user may administer other users.
func (u User) IsElevated() bool {
	return u.IsAdmin || u.Role == RoleOwner || u.Role == RoleManager
}

// Priority is the priority of the user's role; the legacy admin flag counts as owner.
func (u User) Priority() int {
	if u.IsAdmin {
		return RolePriority(RoleOwner)
	}
	return RolePriority(u.Role)
}

// DisplayName is the name shown to other users.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Account holds the credentials of an identity. Its ID is shared with the User profile.
type Account struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func (a *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum_"`
	Email    string `json:"email" validate:"omitempty,email"`
	FullName string `json:"full_name" validate:"required,max=120"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"user_role" validate:"required,userrole"`
}

func (nu *NewUser) Clean() {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FullName = core.CleanString(nu.FullName)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
}

// DefaultEmail is the address used for users created without one.
func DefaultEmail(username string) string {
	return username + "@local.app"
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	FullName string `json:"full_name" validate:"omitempty,max=120"`
	Email    string `json:"email" validate:"omitempty,email"`
	Role     string `json:"user_role" validate:"omitempty,userrole"`
	IsActive *bool  `json:"is_active"`
	Password string `json:"password"`
}

func (uu *UpdateUser) Clean() {
	uu.FullName = core.CleanString(uu.FullName)
	uu.Email = core.CleanString(uu.Email, true /* lower */)
	uu.Role = core.CleanString(uu.Role, true /* lower */)
}

type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
