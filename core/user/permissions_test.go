package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/halldesk/halldesk/core"
)

func TestCan(t *testing.T) {
	tests := []struct {
		name    string
		usr     User
		allowed []Action
		denied  []Action
	}{
		{
			name:    "owner",
			usr:     User{Role: RoleOwner, IsActive: true},
			allowed: []Action{ActionManageUsers, ActionReviewChangeRequests, ActionManageFees, ActionViewReports},
		},
		{
			name:    "manager",
			usr:     User{Role: RoleManager, IsActive: true},
			allowed: []Action{ActionManageUsers, ActionReviewChangeRequests, ActionRunRollover},
		},
		{
			name:    "space manager",
			usr:     User{Role: RoleSpaceManager, IsActive: true},
			allowed: []Action{ActionManageBookings, ActionRecordPayments, ActionManageSettlements, ActionRunRollover},
			denied:  []Action{ActionManageUsers, ActionReviewChangeRequests, ActionManageFees, ActionViewReports},
		},
		{
			name:    "teacher",
			usr:     User{Role: RoleTeacher, IsActive: true},
			allowed: []Action{ActionView, ActionMarkAttendance},
			denied:  []Action{ActionManageBookings, ActionRecordPayments},
		},
		{
			name:    "read only",
			usr:     User{Role: RoleReadOnly, IsActive: true},
			allowed: []Action{ActionView},
			denied:  []Action{ActionMarkAttendance},
		},
		{
			name:   "inactive owner",
			usr:    User{Role: RoleOwner},
			denied: []Action{ActionView, ActionManageUsers},
		},
		{
			name:    "legacy admin flag",
			usr:     User{Role: RoleReadOnly, IsAdmin: true, IsActive: true},
			allowed: []Action{ActionManageUsers, ActionReviewChangeRequests},
		},
		{
			name:   "unknown role",
			usr:    User{Role: "janitor", IsActive: true},
			denied: []Action{ActionView},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, a := range tt.allowed {
				assert.True(t, Can(tt.usr, a), "should be allowed to %s", a)
			}
			for _, a := range tt.denied {
				assert.False(t, Can(tt.usr, a), "should not be allowed to %s", a)
			}
		})
	}
}

func TestSession(t *testing.T) {
	sess := SystemSession()
	assert.True(t, sess.User.IsElevated())
	assert.NoError(t, sess.Require(ActionRunRollover))

	ro := Session{User: User{Role: RoleReadOnly, IsActive: true}, Now: time.Date(2024, time.May, 3, 23, 30, 0, 0, time.UTC)}
	assert.Equal(t, core.ErrForbidden, ro.Require(ActionRecordPayments))
	assert.True(t, time.Date(2024, time.May, 3, 0, 0, 0, 0, time.UTC).Equal(ro.Today()))
}

func TestUser_Priority(t *testing.T) {
	assert.Greater(t, User{Role: RoleOwner}.Priority(), User{Role: RoleManager}.Priority())
	assert.Greater(t, User{Role: RoleManager}.Priority(), User{Role: RoleSpaceManager}.Priority())
	assert.Equal(t, RolePriority(RoleOwner), User{Role: RoleTeacher, IsAdmin: true}.Priority())
	assert.Zero(t, RolePriority("janitor"))
}

func TestCheckPasswordPolicy(t *testing.T) {
	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "too short", pwd: "Ab1!", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcd 123!", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", wantTag: pwdNotAllNumTag},
		{name: "no special", pwd: "Abcd1234", wantTag: pwdComplexityTag},
		{name: "no upper", pwd: "abcd123!", wantTag: pwdComplexityTag},
		{name: "similar to username", pwd: "Samsp4ce!", wantTag: pwdAttrSimTag},
		{name: "valid", pwd: "L3tM3!nPl3as3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTag, passwordPolicyViolation(tt.pwd, "", "samspace", ""))

			err := CheckPasswordPolicy(tt.pwd, "samspace", "")
			if tt.wantTag == "" {
				assert.NoError(t, err)
			} else {
				assert.True(t, core.IsValidationError(err))
			}
		})
	}
}
