package user

import (
	"time"

	"github.com/halldesk/halldesk/core"
)

// Action is something a user may be allowed to do.
type Action string

const (
	ActionView                 Action = "view"
	ActionManageUsers          Action = "users:manage"
	ActionManageBookings       Action = "bookings:manage"
	ActionManageFees           Action = "fees:manage"
	ActionManageEnrollment     Action = "enrollment:manage"
	ActionRecordPayments       Action = "payments:record"
	ActionMarkAttendance       Action = "attendance:mark"
	ActionManageSettlements    Action = "settlements:manage"
	ActionReviewChangeRequests Action = "settlements:review"
	ActionRunRollover          Action = "rollover:run"
	ActionViewReports          Action = "reports:view"
)

var roleActions = map[string][]Action{
	RoleOwner: {
		ActionView, ActionManageUsers, ActionManageBookings, ActionManageFees, ActionManageEnrollment,
		ActionRecordPayments, ActionMarkAttendance, ActionManageSettlements, ActionReviewChangeRequests,
		ActionRunRollover, ActionViewReports,
	},
	RoleManager: {
		ActionView, ActionManageUsers, ActionManageBookings, ActionManageFees, ActionManageEnrollment,
		ActionRecordPayments, ActionMarkAttendance, ActionManageSettlements, ActionReviewChangeRequests,
		ActionRunRollover, ActionViewReports,
	},
	RoleSpaceManager: {
		ActionView, ActionManageBookings, ActionManageEnrollment, ActionRecordPayments,
		ActionMarkAttendance, ActionManageSettlements, ActionRunRollover,
	},
	RoleTeacher: {
		ActionView, ActionMarkAttendance,
	},
	RoleReadOnly: {
		ActionView,
	},
}

// Can reports whether usr may perform a. Inactive users can do nothing; the legacy admin flag can do everything.
func Can(usr User, a Action) bool {
	if !usr.IsActive {
		return false
	}
	if usr.IsAdmin {
		return true
	}
	for _, allowed := range roleActions[usr.Role] {
		if allowed == a {
			return true
		}
	}
	return false
}

// Session is the acting user of a business operation, passed explicitly to services.
type Session struct {
	User User
	Now  time.Time
}

func NewSession(usr User) Session {
	return Session{User: usr, Now: core.NowFunc()}
}

// SystemSession acts on behalf of operators (CLI, scheduler).
func SystemSession() Session {
	return NewSession(User{ID: "", Username: "system", Role: RoleOwner, IsAdmin: true, IsActive: true})
}

func (s Session) Can(a Action) bool { return Can(s.User, a) }

// Require returns core.ErrForbidden if the session may not perform a.
func (s Session) Require(a Action) error {
	if !s.Can(a) {
		return core.ErrForbidden
	}
	return nil
}

// Today is the calendar date of the session's reference time.
func (s Session) Today() time.Time {
	if s.Now.IsZero() {
		return core.TruncateDate(core.NowFunc())
	}
	return core.TruncateDate(s.Now)
}
