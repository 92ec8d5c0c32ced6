package inspection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"dcr/internal/dispatch"
	"dcr/internal/indicator"
	"dcr/internal/ledger"
	"dcr/internal/relay"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// recorder は機器と外部への呼び出しを順に記録する
type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (r *recorder) add(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.fail[call]
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeIndicator struct{ *recorder }

func (f fakeIndicator) SetPattern(p indicator.Pattern) error { return f.add("pattern:" + p.String()) }
func (f fakeIndicator) Close() error                         { return f.add("indicator:close") }

type fakeRelay struct{ *recorder }

func (f fakeRelay) Pulse(_ context.Context, ch relay.Channel, speed int) error {
	return f.add(fmt.Sprintf("pulse:%s:%d", ch, speed))
}
func (f fakeRelay) StopAll() error { return f.add("relay:stop") }
func (f fakeRelay) Close() error   { return f.add("relay:close") }

type fakeNotifier struct{ *recorder }

func (f fakeNotifier) Notify(_ context.Context, command string) error {
	return f.add("notify:" + command)
}

type fakeJournal struct {
	mu      sync.Mutex
	records []ledger.Record
	runIDs  []string
}

func (j *fakeJournal) Insert(_ context.Context, runID string, rec ledger.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	j.runIDs = append(j.runIDs, runID)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *fakePublisher) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

type fixture struct {
	ctrl      *Controller
	devices   *recorder
	peer      *recorder
	journal   *fakeJournal
	publisher *fakePublisher
	disp      *dispatch.Dispatcher
}

// newFixture はワーカー1つのディスパッチャーでControllerを作る（タスクは投入順に実行される）
func newFixture(t *testing.T) *fixture {
	t.Helper()
	devices := &recorder{fail: map[string]error{}}
	peer := &recorder{fail: map[string]error{}}
	f := &fixture{
		devices:   devices,
		peer:      peer,
		journal:   &fakeJournal{},
		publisher: &fakePublisher{},
		disp:      dispatch.New(1, testLogger),
	}
	f.ctrl = NewController(Deps{
		Ledger:     ledger.New(10),
		Dispatcher: f.disp,
		Indicator:  fakeIndicator{devices},
		Relay:      fakeRelay{devices},
		Journal:    f.journal,
		Notifier:   fakeNotifier{peer},
		Publisher:  f.publisher,
		Confidence: FixedConfidence(80),
		Logger:     testLogger,
	})
	return f
}

// drain は投入済みのタスクが全て終わるまで待つ
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	if err := f.ctrl.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestController_JudgeRequiresRunning(t *testing.T) {
	f := newFixture(t)

	if _, err := f.ctrl.Judge(ledger.Mold); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Expected ErrNotRunning, got %v", err)
	}
	if len(f.ctrl.Records()) != 0 {
		t.Error("Expected history to stay empty")
	}

	f.drain(t)
	if calls := f.devices.Calls(); !reflect.DeepEqual(calls, []string{"indicator:close", "relay:close"}) {
		t.Errorf("Expected only shutdown calls, got %v", calls)
	}
}

func TestController_JudgeDispatchesActions(t *testing.T) {
	tests := []struct {
		label ledger.Label
		want  []string
	}{
		{ledger.Mold, []string{"pattern:violet", "pulse:remove:5"}},
		{ledger.Immature, []string{"pattern:yellow", "pulse:remove:5"}},
		{ledger.Healthy, []string{"pattern:white", "pulse:transport:5"}},
		{ledger.StemCrack, []string{"pattern:blue", "pulse:remove:5"}},
	}

	for _, tt := range tests {
		t.Run(tt.label.String(), func(t *testing.T) {
			f := newFixture(t)
			if _, err := f.ctrl.SetRunning(true); err != nil {
				t.Fatalf("SetRunning failed: %v", err)
			}

			rec, err := f.ctrl.Judge(tt.label)
			if err != nil {
				t.Fatalf("Judge failed: %v", err)
			}
			if rec.ID != 1 || rec.Confidence != 80 || rec.Label != tt.label {
				t.Errorf("Unexpected record %+v", rec)
			}

			f.drain(t)

			calls := f.devices.Calls()
			if got := calls[:2]; !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestController_SpeedSnapshot(t *testing.T) {
	f := newFixture(t)

	if got, err := f.ctrl.SetSpeed(8); err != nil || got != 8 {
		t.Fatalf("SetSpeed(8) = %d, %v", got, err)
	}
	if _, err := f.ctrl.SetRunning(true); err != nil {
		t.Fatalf("SetRunning failed: %v", err)
	}
	if _, err := f.ctrl.Judge(ledger.Mold); err != nil {
		t.Fatalf("Judge failed: %v", err)
	}

	// 運転中は速度を変更できない
	if _, err := f.ctrl.SetSpeed(2); !errors.Is(err, ErrSettingsLocked) {
		t.Fatalf("Expected ErrSettingsLocked, got %v", err)
	}
	if f.ctrl.Speed() != 8 {
		t.Errorf("Expected speed 8, got %d", f.ctrl.Speed())
	}

	f.drain(t)

	calls := f.devices.Calls()
	if calls[1] != "pulse:remove:8" {
		t.Errorf("Expected pulse with speed 8, got %v", calls)
	}
	if peer := f.peer.Calls(); !reflect.DeepEqual(peer, []string{"notify:/set_speed/8", "notify:/rotate"}) {
		t.Errorf("Unexpected peer calls %v", peer)
	}
}

func TestController_SetSpeedClamps(t *testing.T) {
	f := newFixture(t)
	defer f.drain(t)

	tests := []struct{ in, want int }{{0, 1}, {11, 10}, {7, 7}}
	for _, tt := range tests {
		got, err := f.ctrl.SetSpeed(tt.in)
		if err != nil {
			t.Fatalf("SetSpeed(%d) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("SetSpeed(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestController_StopTurnsEverythingOff(t *testing.T) {
	f := newFixture(t)

	if _, err := f.ctrl.SetRunning(true); err != nil {
		t.Fatalf("SetRunning(true) failed: %v", err)
	}
	st, err := f.ctrl.SetRunning(false)
	if err != nil {
		t.Fatalf("SetRunning(false) failed: %v", err)
	}
	if st.Running {
		t.Error("Expected stopped state")
	}

	// 同じ状態への切り替えは何もしない
	if _, err := f.ctrl.SetRunning(false); err != nil {
		t.Fatalf("SetRunning(false) again failed: %v", err)
	}

	f.drain(t)

	want := []string{"pattern:off", "relay:stop", "indicator:close", "relay:close"}
	if calls := f.devices.Calls(); !reflect.DeepEqual(calls, want) {
		t.Errorf("Expected %v, got %v", want, calls)
	}
	if peer := f.peer.Calls(); peer[len(peer)-1] != "notify:/stop" {
		t.Errorf("Expected peer stop, got %v", peer)
	}
}

func TestController_DeviceFailureDoesNotStopQueue(t *testing.T) {
	f := newFixture(t)
	f.devices.fail["pattern:violet"] = indicator.ErrNotConnected

	if _, err := f.ctrl.SetRunning(true); err != nil {
		t.Fatalf("SetRunning failed: %v", err)
	}
	if _, err := f.ctrl.Judge(ledger.Mold); err != nil {
		t.Fatalf("Judge failed: %v", err)
	}
	if _, err := f.ctrl.Judge(ledger.Healthy); err != nil {
		t.Fatalf("Judge failed: %v", err)
	}

	f.drain(t)

	calls := f.devices.Calls()
	want := []string{"pattern:violet", "pulse:remove:5", "pattern:white", "pulse:transport:5"}
	if !reflect.DeepEqual(calls[:4], want) {
		t.Errorf("Expected %v, got %v", want, calls)
	}
	if s := f.disp.Stats(); s.Failed != 1 {
		t.Errorf("Expected 1 failed task, got %+v", s)
	}
}

// waitingRelay はctxが終わるまでパルス動作の待機を続ける
type waitingRelay struct {
	*recorder
	started chan struct{}
}

func (r waitingRelay) Pulse(ctx context.Context, ch relay.Channel, speed int) error {
	_ = r.add(fmt.Sprintf("pulse:%s:%d", ch, speed))
	r.started <- struct{}{}
	select {
	case <-ctx.Done():
		_ = r.add("pulse:canceled")
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return errors.New("パルス動作が中断されなかった")
	}
}
func (r waitingRelay) StopAll() error { return r.add("relay:stop") }
func (r waitingRelay) Close() error   { return r.add("relay:close") }

func TestController_StopCancelsPendingActuations(t *testing.T) {
	devices := &recorder{fail: map[string]error{}}
	rly := waitingRelay{recorder: devices, started: make(chan struct{}, 4)}
	disp := dispatch.New(1, testLogger)
	ctrl := NewController(Deps{
		Ledger:     ledger.New(10),
		Dispatcher: disp,
		Indicator:  fakeIndicator{devices},
		Relay:      rly,
		Confidence: FixedConfidence(80),
		Logger:     testLogger,
	})

	if _, err := ctrl.SetRunning(true); err != nil {
		t.Fatalf("SetRunning(true) failed: %v", err)
	}
	if _, err := ctrl.Judge(ledger.Mold); err != nil {
		t.Fatalf("Judge failed: %v", err)
	}
	select {
	case <-rly.started:
	case <-time.After(time.Second):
		t.Fatal("pulse did not start")
	}

	// 待機中のパルスの後ろに次の判定が並んでいる
	if _, err := ctrl.Judge(ledger.Healthy); err != nil {
		t.Fatalf("Judge failed: %v", err)
	}
	if _, err := ctrl.SetRunning(false); err != nil {
		t.Fatalf("SetRunning(false) failed: %v", err)
	}

	if err := ctrl.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	want := []string{"pattern:violet", "pulse:remove:5", "pulse:canceled", "pattern:off", "relay:stop", "indicator:close", "relay:close"}
	if calls := devices.Calls(); !reflect.DeepEqual(calls, want) {
		t.Errorf("Expected %v, got %v", want, calls)
	}
	if s := disp.Stats(); s.Failed != 0 {
		t.Errorf("Expected canceled actuations not to count as failures, got %+v", s)
	}
}

func TestController_JournalAndPublish(t *testing.T) {
	f := newFixture(t)

	st, err := f.ctrl.SetRunning(true)
	if err != nil {
		t.Fatalf("SetRunning failed: %v", err)
	}
	for _, key := range []string{"1", "2", "3"} {
		if _, err := f.ctrl.JudgeKey(key); err != nil {
			t.Fatalf("JudgeKey(%s) failed: %v", key, err)
		}
	}
	if _, err := f.ctrl.JudgeKey("9"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Expected ErrUnknownKey, got %v", err)
	}

	f.drain(t)

	if len(f.journal.records) != 3 {
		t.Fatalf("Expected 3 journal records, got %d", len(f.journal.records))
	}
	for i, rec := range f.journal.records {
		if rec.ID != uint64(i+1) {
			t.Errorf("Journal record %d has id %d", i, rec.ID)
		}
		if f.journal.runIDs[i] != st.RunID {
			t.Errorf("Expected run id %s, got %s", st.RunID, f.journal.runIDs[i])
		}
	}

	var judgments int
	for _, ev := range f.publisher.events {
		if ev.Type == EventJudgment {
			judgments++
			if ev.Row == nil || ev.Record == nil {
				t.Error("Judgment event must carry the record and row")
			}
		}
	}
	if judgments != 3 {
		t.Errorf("Expected 3 judgment events, got %d", judgments)
	}

	rows := f.ctrl.History()
	if rows[0].Label != "カビ" || rows[1].Label != "未熟果" || rows[2].Label != "健全果" {
		t.Errorf("Unexpected history %+v", rows)
	}
}

func TestController_Shutdown(t *testing.T) {
	f := newFixture(t)

	f.drain(t)
	if err := f.ctrl.Shutdown(context.Background()); err != nil {
		t.Fatalf("Second shutdown failed: %v", err)
	}
	if _, err := f.ctrl.SetRunning(true); !errors.Is(err, ErrShutdown) {
		t.Errorf("Expected ErrShutdown, got %v", err)
	}
}

func TestRandomConfidence(t *testing.T) {
	src := RandomConfidence{Min: 60, Max: 95}
	for i := 0; i < 1000; i++ {
		if v := src.Next(); v < 60 || v > 95 {
			t.Fatalf("Confidence %d out of range", v)
		}
	}
}

func TestKeyMap(t *testing.T) {
	km := DefaultKeyMap()
	if err := km.Validate(); err != nil {
		t.Fatalf("Default key map invalid: %v", err)
	}
	if got := km.Keys(); !reflect.DeepEqual(got, []string{"1", "2", "3", "4"}) {
		t.Errorf("Unexpected keys %v", got)
	}

	bad := KeyMap{"5": ledger.Label(42)}
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for unknown label")
	}
}
