package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/coinledger/event"
	"github.com/xraph/coinledger/id"
	"github.com/xraph/coinledger/plugin"
)

type recorder struct {
	name string

	mu    sync.Mutex
	calls []string
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) record(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) OnInit(_ context.Context, _ any) error {
	r.record("init")
	return nil
}

func (r *recorder) OnCoinEmitted(_ context.Context, e *event.Event) error {
	r.record("emitted:" + e.ObjectUID)
	return nil
}

func (r *recorder) OnEvent(_ context.Context, e *event.Event) error {
	r.record("event:" + e.Kind.String())
	return nil
}

type failing struct{}

func (failing) Name() string { return "failing" }

func (failing) OnCoinEmitted(context.Context, *event.Event) error {
	return errors.New("boom")
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnShutdown(ctx context.Context) error {
	time.Sleep(time.Second)
	return nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := plugin.NewRegistry()
	if err := r.Register(&recorder{name: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&recorder{name: "a"}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 plugin, got %d", r.Count())
	}
	if r.Get("a") == nil || r.Get("b") != nil {
		t.Error("Get returned the wrong plugin")
	}
}

func TestEmitDispatchesByKind(t *testing.T) {
	ctx := context.Background()
	r := plugin.NewRegistry()
	rec := &recorder{name: "rec"}
	if err := r.Register(failing{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(rec); err != nil {
		t.Fatal(err)
	}

	opID := id.NewOperationID()
	emitted := event.New(event.CoinEmitted, opID, "coin/O/C")
	emitted.ObjectUID = "alice"
	burned := event.New(event.CoinBurned, opID, "coin/O/C")

	r.EmitInit(ctx, nil)
	r.Emit(ctx, emitted)
	r.Emit(ctx, burned)

	want := []string{"init", "emitted:alice", "event:coin.emitted", "event:coin.burned"}
	got := rec.got()
	if len(got) != len(want) {
		t.Fatalf("calls: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEmitTimesOut(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(10 * time.Millisecond)
	if err := r.Register(slow{}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	r.EmitShutdown(context.Background())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("EmitShutdown blocked for %v", elapsed)
	}
}
