package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	domainBroadcast "github.com/VladKovDev/subgate-bot/internal/domain/broadcast"
	"github.com/VladKovDev/subgate-bot/pkg/logger"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testTemplate = domainBroadcast.Template{ChatID: 500, MessageID: 42}

// fakeDeliverer returns queued results per recipient; an empty queue means success.
type fakeDeliverer struct {
	results map[int64][]error
	calls   []int64
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{results: make(map[int64][]error)}
}

func (f *fakeDeliverer) fail(id int64, errs ...error) {
	f.results[id] = append(f.results[id], errs...)
}

func (f *fakeDeliverer) DeliverCopy(_ context.Context, tmpl domainBroadcast.Template, id int64) error {
	if tmpl != testTemplate {
		return errors.New("unexpected template")
	}
	f.calls = append(f.calls, id)
	queue := f.results[id]
	if len(queue) == 0 {
		return nil
	}
	f.results[id] = queue[1:]
	return queue[0]
}

type fakeStore struct {
	ids       map[int64]bool
	order     []int64
	removeErr error
	listErr   error
	removed   []int64
}

func newFakeStore(ids ...int64) *fakeStore {
	s := &fakeStore{ids: make(map[int64]bool)}
	for _, id := range ids {
		s.ids[id] = true
		s.order = append(s.order, id)
	}
	return s
}

func (s *fakeStore) ListAll(_ context.Context) ([]int64, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]int64, 0, len(s.order))
	for _, id := range s.order {
		if s.ids[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *fakeStore) Remove(_ context.Context, id int64) error {
	s.removed = append(s.removed, id)
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.ids, id)
	return nil
}

type recordingSleeper struct {
	waits []time.Duration
	err   error
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return r.err
}

func newTestDispatcher(d Deliverer, s RecipientStore, opts Options) (*Dispatcher, *recordingSleeper, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	disp := NewDispatcher(d, s, opts, logger.NewWithCore(core))
	sleeper := &recordingSleeper{}
	disp.sleep = sleeper.sleep
	return disp, sleeper, logs
}

func TestDispatch_AllDelivered(t *testing.T) {
	ids := []int64{1, 2, 3, 4, 5}
	deliverer := newFakeDeliverer()
	disp, _, _ := newTestDispatcher(deliverer, newFakeStore(ids...), Options{})

	report, err := disp.Dispatch(context.Background(), testTemplate, ids)
	if err != nil {
		t.Fatalf("Dispatch() returned unexpected error: %v", err)
	}

	want := domainBroadcast.Report{Total: 5, Successful: 5}
	if report != want {
		t.Errorf("Dispatch() report = %+v, want %+v", report, want)
	}
	if len(deliverer.calls) != len(ids) {
		t.Errorf("expected %d delivery calls, got %d", len(ids), len(deliverer.calls))
	}
	for i, id := range ids {
		if deliverer.calls[i] != id {
			t.Errorf("call %d went to %d, want %d (input order)", i, deliverer.calls[i], id)
		}
	}
}

func TestDispatch_EmptyRecipients(t *testing.T) {
	disp, _, _ := newTestDispatcher(newFakeDeliverer(), newFakeStore(), Options{})

	report, err := disp.Dispatch(context.Background(), testTemplate, nil)
	if err != nil {
		t.Fatalf("Dispatch() returned unexpected error: %v", err)
	}
	if report != (domainBroadcast.Report{}) {
		t.Errorf("Dispatch() report = %+v, want zero report", report)
	}
}

func TestDispatch_RemovesUnreachableRecipients(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		want  domainBroadcast.Report
	}{
		{
			name:  "blocked",
			cause: domainBroadcast.ErrRecipientBlocked,
			want:  domainBroadcast.Report{Total: 1, Blocked: 1},
		},
		{
			name:  "deactivated",
			cause: domainBroadcast.ErrRecipientDeactivated,
			want:  domainBroadcast.Report{Total: 1, Deleted: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deliverer := newFakeDeliverer()
			deliverer.fail(7, tt.cause)
			store := newFakeStore(7)
			disp, _, _ := newTestDispatcher(deliverer, store, Options{})

			report, err := disp.Dispatch(context.Background(), testTemplate, []int64{7})
			if err != nil {
				t.Fatalf("Dispatch() returned unexpected error: %v", err)
			}
			if report != tt.want {
				t.Errorf("Dispatch() report = %+v, want %+v", report, tt.want)
			}
			if store.ids[7] {
				t.Error("recipient 7 should have been removed from the store")
			}
		})
	}
}

func TestDispatch_UnclassifiedFailureIsLoggedAndKept(t *testing.T) {
	deliverer := newFakeDeliverer()
	deliverer.fail(9, errors.New("Bad Request: chat not found"))
	store := newFakeStore(9)
	disp, _, logs := newTestDispatcher(deliverer, store, Options{})

	report, err := disp.Dispatch(context.Background(), testTemplate, []int64{9})
	if err != nil {
		t.Fatalf("Dispatch() returned unexpected error: %v", err)
	}

	want := domainBroadcast.Report{Total: 1, Unsuccessful: 1}
	if report != want {
		t.Errorf("Dispatch() report = %+v, want %+v", report, want)
	}
	if !store.ids[9] || len(store.removed) != 0 {
		t.Error("unclassified failure must not remove the recipient")
	}

	failures := logs.FilterMessage("broadcast failed").All()
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure log entry, got %d", len(failures))
	}
	fields := failures[0].ContextMap()
	if fields["user_id"] != int64(9) {
		t.Errorf("failure log user_id = %v, want 9", fields["user_id"])
	}
	if fields["error"] != "Bad Request: chat not found" {
		t.Errorf("failure log error = %v", fields["error"])
	}
}

func TestDispatch_RemoveErrorStillCounts(t *testing.T) {
	deliverer := newFakeDeliverer()
	deliverer.fail(3, domainBroadcast.ErrRecipientBlocked)
	store := newFakeStore(3)
	store.removeErr = errors.New("connection reset")
	disp, _, logs := newTestDispatcher(deliverer, store, Options{})

	report, err := disp.Dispatch(context.Background(), testTemplate, []int64{3})
	if err != nil {
		t.Fatalf("Dispatch() returned unexpected error: %v", err)
	}
	if report.Blocked != 1 || report.Total != 1 {
		t.Errorf("Dispatch() report = %+v, want one blocked", report)
	}
	if logs.FilterMessage("failed to remove unreachable user").Len() != 1 {
		t.Error("expected a warning about the failed removal")
	}
}

func TestDispatch_RateLimitedThenDelivered(t *testing.T) {
	deliverer := newFakeDeliverer()
	deliverer.fail(4, &domainBroadcast.RateLimitError{Wait: 12 * time.Second})
	store := newFakeStore(4)
	disp, sleeper, _ := newTestDispatcher(deliverer, store, Options{})

	report, err := disp.Dispatch(context.Background(), testTemplate, []int64{4})
	if err != nil {
		t.Fatalf("Dispatch() returned unexpected error: %v", err)
	}

	want := domainBroadcast.Report{Total: 1, Successful: 1}
	if report != want {
		t.Errorf("Dispatch() report = %+v, want %+v", report, want)
	}
	if len(sleeper.waits) != 1 || sleeper.waits[0] != 12*time.Second {
		t.Errorf("expected one 12s wait, got %v", sleeper.waits)
	}
	if len(deliverer.calls) != 2 {
		t.Errorf("expected 2 delivery calls (attempt + retry), got %d", len(deliverer.calls))
	}
	if !store.ids[4] {
		t.Error("rate limited recipient must stay in the store")
	}
}

func TestDispatch_FailedRetryAborts(t *testing.T) {
	deliverer := newFakeDeliverer()
	deliverer.fail(2,
		&domainBroadcast.RateLimitError{Wait: time.Second},
		&domainBroadcast.RateLimitError{Wait: time.Second},
	)
	store := newFakeStore(1, 2, 3)
	disp, sleeper, _ := newTestDispatcher(deliverer, store, Options{})

	report, err := disp.Dispatch(context.Background(), testTemplate, []int64{1, 2, 3})

	var abort *domainBroadcast.AbortError
	if !errors.As(err, &abort) {
		t.Fatalf("Dispatch() error = %v, want *AbortError", err)
	}
	if abort.RecipientID != 2 {
		t.Errorf("AbortError.RecipientID = %d, want 2", abort.RecipientID)
	}
	if abort.Partial != (domainBroadcast.Report{Total: 1, Successful: 1}) {
		t.Errorf("AbortError.Partial = %+v, want only recipient 1", abort.Partial)
	}
	if report != (domainBroadcast.Report{}) {
		t.Errorf("aborted job must not produce a report, got %+v", report)
	}
	for _, id := range deliverer.calls {
		if id == 3 {
			t.Error("recipient 3 must not be attempted after the abort")
		}
	}
	if len(sleeper.waits) != 1 {
		t.Errorf("retry must not be retried again, got %d waits", len(sleeper.waits))
	}
	var rl *domainBroadcast.RateLimitError
	if !errors.As(err, &rl) {
		t.Error("abort cause should carry the retry failure")
	}
}

func TestDispatch_FailedRetryDegradesWhenConfigured(t *testing.T) {
	deliverer := newFakeDeliverer()
	deliverer.fail(2,
		&domainBroadcast.RateLimitError{Wait: time.Second},
		domainBroadcast.ErrRecipientBlocked,
	)
	store := newFakeStore(1, 2, 3)
	disp, _, _ := newTestDispatcher(deliverer, store, Options{DegradeFailedRetry: true})

	report, err := disp.Dispatch(context.Background(), testTemplate, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("Dispatch() returned unexpected error: %v", err)
	}

	want := domainBroadcast.Report{Total: 3, Successful: 2, Unsuccessful: 1}
	if report != want {
		t.Errorf("Dispatch() report = %+v, want %+v", report, want)
	}
	if !store.ids[2] {
		t.Error("a failed retry is unclassified and must not remove the recipient")
	}
}

func TestDispatch_CancelledDuringFloodWaitAborts(t *testing.T) {
	deliverer := newFakeDeliverer()
	deliverer.fail(1, &domainBroadcast.RateLimitError{Wait: time.Minute})
	disp, sleeper, _ := newTestDispatcher(deliverer, newFakeStore(1), Options{})
	sleeper.err = context.Canceled

	_, err := disp.Dispatch(context.Background(), testTemplate, []int64{1, 2})

	var abort *domainBroadcast.AbortError
	if !errors.As(err, &abort) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Dispatch() error = %v, want cancelled *AbortError", err)
	}
	if len(deliverer.calls) != 1 {
		t.Errorf("expected only the first attempt, got calls %v", deliverer.calls)
	}
}

func TestDispatch_CancelledWithoutPacingAborts(t *testing.T) {
	deliverer := newFakeDeliverer()
	store := newFakeStore(1, 2, 3)
	disp, _, logs := newTestDispatcher(deliverer, store, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := disp.Dispatch(ctx, testTemplate, []int64{1, 2, 3})

	var abort *domainBroadcast.AbortError
	if !errors.As(err, &abort) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Dispatch() error = %v, want cancelled *AbortError", err)
	}
	if report != (domainBroadcast.Report{}) {
		t.Errorf("Dispatch() report = %+v, want zero report", report)
	}
	if abort.Partial.Unsuccessful != 0 {
		t.Errorf("cancellation must not be counted as failures, partial = %+v", abort.Partial)
	}
	if len(deliverer.calls) != 0 {
		t.Errorf("no delivery may be attempted after cancellation, got calls %v", deliverer.calls)
	}
	if n := logs.FilterMessage("broadcast failed").Len(); n != 0 {
		t.Errorf("expected no failure logs, got %d", n)
	}
}

func TestDispatch_MixedScenario(t *testing.T) {
	deliverer := newFakeDeliverer()
	deliverer.fail(2, domainBroadcast.ErrRecipientBlocked)
	store := newFakeStore(1, 2, 3)
	disp, _, _ := newTestDispatcher(deliverer, store, Options{})

	report, err := disp.Run(context.Background(), testTemplate)
	if err != nil {
		t.Fatalf("Run() returned unexpected error: %v", err)
	}

	want := domainBroadcast.Report{Total: 3, Successful: 2, Blocked: 1}
	if report != want {
		t.Errorf("Run() report = %+v, want %+v", report, want)
	}
	if !report.Consistent() {
		t.Error("report counters must add up to total")
	}
	if store.ids[2] {
		t.Error("store should no longer contain recipient 2")
	}
}

func TestRun_ListError(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("db down")
	deliverer := newFakeDeliverer()
	disp, _, _ := newTestDispatcher(deliverer, store, Options{})

	if _, err := disp.Run(context.Background(), testTemplate); err == nil {
		t.Error("Run() should fail when recipients cannot be listed")
	}
	if len(deliverer.calls) != 0 {
		t.Error("no delivery may happen without a recipient snapshot")
	}
}

func TestNewDispatcher_Pacing(t *testing.T) {
	disp := NewDispatcher(newFakeDeliverer(), newFakeStore(), Options{}, logger.Noop())
	if disp.limiter != nil {
		t.Error("zero rate must disable pacing")
	}

	disp = NewDispatcher(newFakeDeliverer(), newFakeStore(), Options{RatePerSecond: 1000}, logger.Noop())
	if disp.limiter == nil {
		t.Fatal("positive rate must enable pacing")
	}

	report, err := disp.Dispatch(context.Background(), testTemplate, []int64{1, 2, 3})
	if err != nil || report.Successful != 3 {
		t.Errorf("paced Dispatch() = %+v, %v", report, err)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleepContext() returned unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepContext() error = %v, want context.Canceled", err)
	}
}
