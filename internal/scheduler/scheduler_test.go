package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeSweeper struct {
	mu        sync.Mutex
	reminders int
	reports   int
	err       error
}

func (f *fakeSweeper) SweepInactivityReminders(context.Context, time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminders++
	return []string{"a"}, f.err
}

func (f *fakeSweeper) SweepWeeklyReports(context.Context, time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports++
	return nil, f.err
}

type fakeLocker struct {
	held     map[string]bool
	released []string
	err      error
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	if l.held[key] {
		return "", false, nil
	}
	l.held[key] = true
	return "token-" + key, true, nil
}

func (l *fakeLocker) Release(_ context.Context, key, token string) error {
	l.released = append(l.released, key+":"+token)
	delete(l.held, key)
	return nil
}

func defaultOptions() Options {
	return Options{ReminderSchedule: "0 9 * * *", ReportSchedule: "0 10 * * 1", Timeout: time.Second}
}

func TestNew_RegistersJobs(t *testing.T) {
	s, err := New(&fakeSweeper{}, defaultOptions(), nil, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)

	s, err = New(&fakeSweeper{}, Options{ReportSchedule: "0 10 * * 1"}, nil, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(&fakeSweeper{}, Options{ReminderSchedule: "every day"}, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestRunJob_WithLock(t *testing.T) {
	sw := &fakeSweeper{}
	locker := &fakeLocker{held: map[string]bool{}}
	s, err := New(sw, defaultOptions(), locker, nil, zap.NewNop())
	require.NoError(t, err)

	s.runJob(context.Background(), job{name: JobReminders, run: sw.SweepInactivityReminders})
	assert.Equal(t, 1, sw.reminders)
	assert.Equal(t, []string{"reminders:token-reminders"}, locker.released)

	locker.held[JobReports] = true
	s.runJob(context.Background(), job{name: JobReports, run: sw.SweepWeeklyReports})
	assert.Equal(t, 0, sw.reports, "held lock must skip the sweep")
}

func TestRunJob_LockError(t *testing.T) {
	sw := &fakeSweeper{}
	core, logs := observer.New(zap.InfoLevel)
	s, err := New(sw, defaultOptions(), &fakeLocker{err: errors.New("redis down")}, nil, zap.New(core))
	require.NoError(t, err)

	s.runJob(context.Background(), job{name: JobReports, run: sw.SweepWeeklyReports})
	assert.Equal(t, 0, sw.reports)
	assert.Equal(t, 1, logs.FilterMessage("acquire sweep lock error").Len())
}

func TestRunJob_SweepErrorIsLogged(t *testing.T) {
	sw := &fakeSweeper{err: errors.New("account a: blocked")}
	core, logs := observer.New(zap.InfoLevel)
	s, err := New(sw, defaultOptions(), nil, nil, zap.New(core))
	require.NoError(t, err)

	s.runJob(context.Background(), job{name: JobReminders, run: sw.SweepInactivityReminders})
	assert.Equal(t, 1, sw.reminders)
	assert.Equal(t, 1, logs.FilterMessage("sweep finished with errors").Len())
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, err := New(&fakeSweeper{}, defaultOptions(), nil, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop")
	}
}

type blockingSweeper struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingSweeper) SweepInactivityReminders(ctx context.Context, _ time.Time) ([]string, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingSweeper) SweepWeeklyReports(context.Context, time.Time) ([]string, error) {
	return nil, nil
}

func TestRun_CancelInterruptsRunningSweep(t *testing.T) {
	sw := &blockingSweeper{started: make(chan struct{})}
	s, err := New(sw, Options{ReminderSchedule: "@every 1s", Timeout: time.Minute}, nil, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-sw.started:
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatalf("sweep did not start")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler waited for the sweep timeout instead of cancelling it")
	}
}
