// Package inmemdb implements the repositories over in-memory tables. It backs the tests
// and the API when database.engine is "inmem".
package inmemdb

import (
	"sort"
	"sync"

	"github.com/halldesk/halldesk/core/booking"
	"github.com/halldesk/halldesk/core/enrollment"
	"github.com/halldesk/halldesk/core/settlement"
	"github.com/halldesk/halldesk/core/user"
)

type (
	table[T any] struct {
		rows  map[string]T
		mutex sync.RWMutex
	}

	DB struct {
		users    *table[user.User]
		accounts *table[user.Account]

		halls    *table[booking.Hall]
		stages   *table[booking.AcademicStage]
		teachers *table[booking.Teacher]
		bookings *table[booking.Booking]

		students      *table[enrollment.Student]
		registrations *table[enrollment.Registration]
		payments      *table[enrollment.Payment]
		attendance    *table[enrollment.AttendanceRecord]

		settlements *table[storedSettlement]
		requests    *table[settlement.ChangeRequest]
	}
)

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

// all returns the rows sorted by id. Callers hold the lock.
func (t *table[T]) all() []T {
	ids := make([]string, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	res := make([]T, 0, len(ids))
	for _, id := range ids {
		res = append(res, t.rows[id])
	}
	return res
}

func Open() *DB {
	return &DB{
		users:         newTable[user.User](),
		accounts:      newTable[user.Account](),
		halls:         newTable[booking.Hall](),
		stages:        newTable[booking.AcademicStage](),
		teachers:      newTable[booking.Teacher](),
		bookings:      newTable[booking.Booking](),
		students:      newTable[enrollment.Student](),
		registrations: newTable[enrollment.Registration](),
		payments:      newTable[enrollment.Payment](),
		attendance:    newTable[enrollment.AttendanceRecord](),
		settlements:   newTable[storedSettlement](),
		requests:      newTable[settlement.ChangeRequest](),
	}
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
