package schedsvc

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/halldesk/halldesk/core"
	"github.com/halldesk/halldesk/core/rollover"
	"github.com/halldesk/halldesk/core/user"
	logsvc "github.com/halldesk/halldesk/services/logger"
)

type fakeRoller struct {
	calls           int
	sess            user.Session
	now             time.Time
	resetAttendance bool
	err             error
}

func (r *fakeRoller) ResetAllToNextMonth(_ context.Context, sess user.Session, now time.Time, resetAttendance bool) (rollover.BatchResult, error) {
	r.calls++
	r.sess = sess
	r.now = now
	r.resetAttendance = resetAttendance
	if r.err != nil {
		return rollover.BatchResult{}, r.err
	}
	return rollover.BatchResult{Year: 2024, Month: time.February, Processed: 2, Created: 5}, nil
}

func TestScheduler_RunRollover(t *testing.T) {
	now := time.Date(2024, time.January, 28, 3, 0, 0, 0, time.UTC)
	conf := &core.Config{Scheduler: core.SchedulerConfig{ResetAttendance: true}}

	t.Run("success", func(t *testing.T) {
		roller := &fakeRoller{}
		s := New(roller, conf, logsvc.NewDiscardLogger())
		s.nowFunc = func() time.Time { return now }

		res, err := s.RunRollover()
		if err != nil {
			t.Fatalf("RunRollover() unexpected error = %v", err)
		}
		if res.Created != 5 {
			t.Errorf("RunRollover() Created = %d; want 5", res.Created)
		}
		if !roller.now.Equal(now) {
			t.Errorf("roller now = %v; want %v", roller.now, now)
		}
		if !roller.resetAttendance {
			t.Errorf("roller resetAttendance = false; want true")
		}
		if !roller.sess.Can(user.ActionRunRollover) {
			t.Errorf("roller session cannot run rollover")
		}
	})

	t.Run("failure", func(t *testing.T) {
		wantErr := errors.New("db down")
		s := New(&fakeRoller{err: wantErr}, conf, logsvc.NewDiscardLogger())
		if _, err := s.RunRollover(); err != wantErr {
			t.Errorf("RunRollover() error = %v; wantErr %v", err, wantErr)
		}
	})
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name    string
		conf    core.SchedulerConfig
		wantErr bool
	}{
		{name: "disabled", conf: core.SchedulerConfig{Enabled: false, RolloverSpec: "lol"}},
		{name: "invalid spec", conf: core.SchedulerConfig{Enabled: true, RolloverSpec: "lol"}, wantErr: true},
		{name: "valid spec", conf: core.SchedulerConfig{Enabled: true, RolloverSpec: "0 3 28 * *"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roller := &fakeRoller{}
			s := New(roller, &core.Config{Scheduler: tt.conf}, logsvc.NewDiscardLogger())
			err := s.Start()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			s.Stop(ctx)
			if roller.calls != 0 {
				t.Errorf("roller called %d times; want 0", roller.calls)
			}
		})
	}
}
