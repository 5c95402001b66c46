package bus

import (
	"testing"
	"time"
)

func TestEmit_DeliversSynchronouslyInSubscriptionOrder(t *testing.T) {
	b := New(16)
	var order []int
	b.On("inject.applied", func(Event) { order = append(order, 1) })
	b.On("inject.applied", func(Event) { order = append(order, 2) })

	b.Emit("inject.applied", EmitInput{PaneID: "p1"})

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected subscription-order delivery, got %v", order)
	}
}

func TestEmit_HandlerPanicDoesNotBreakOtherHandlers(t *testing.T) {
	b := New(16)
	called := false
	b.On("x", func(Event) { panic("boom") })
	b.On("x", func(Event) { called = true })

	b.Emit("x", EmitInput{})

	if !called {
		t.Fatal("expected second handler to still run after first panics")
	}
}

func TestQuery_FiltersByCorrelationTypeAndPane(t *testing.T) {
	b := New(16)
	b.Emit("inject.requested", EmitInput{PaneID: "p1", CorrelationID: "t1"})
	b.Emit("inject.requested", EmitInput{PaneID: "p2", CorrelationID: "t2"})
	b.Emit("inject.applied", EmitInput{PaneID: "p1", CorrelationID: "t1"})

	got := b.Query(Query{CorrelationID: "t1"})
	if len(got) != 2 {
		t.Fatalf("expected 2 events for t1, got %d", len(got))
	}

	got = b.Query(Query{Type: "inject.requested"})
	if len(got) != 2 {
		t.Fatalf("expected 2 inject.requested events, got %d", len(got))
	}

	got = b.Query(Query{PaneID: "p2"})
	if len(got) != 1 {
		t.Fatalf("expected 1 event for p2, got %d", len(got))
	}
}

func TestQuery_RingBufferDropsOldestBeyondCapacity(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Emit("e", EmitInput{PaneID: "p"})
	}
	got := b.Query(Query{Type: "e"})
	if len(got) != 3 {
		t.Fatalf("expected ring capped at 3 events, got %d", len(got))
	}
}

func TestQuery_OrderingPreservedAfterWrap(t *testing.T) {
	b := New(2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	b.SetNowFunc(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	})
	b.Emit("e", EmitInput{Payload: map[string]any{"n": 1}})
	b.Emit("e", EmitInput{Payload: map[string]any{"n": 2}})
	b.Emit("e", EmitInput{Payload: map[string]any{"n": 3}})

	got := b.Query(Query{Type: "e"})
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Ts >= got[1].Ts {
		t.Fatalf("expected chronological order after wrap, got ts %d then %d", got[0].Ts, got[1].Ts)
	}
}

func TestUpdateStateAndGetState_DeepMergeAndClone(t *testing.T) {
	b := New(16)
	b.UpdateState("p1", map[string]any{"gates": map[string]any{"compacting": false, "focusLocked": true}})
	b.UpdateState("p1", map[string]any{"gates": map[string]any{"compacting": true}})

	state := b.GetState("p1")
	gates, ok := state["gates"].(map[string]any)
	if !ok {
		t.Fatalf("expected gates map, got %#v", state["gates"])
	}
	if gates["compacting"] != true {
		t.Fatalf("expected compacting=true after merge, got %#v", gates["compacting"])
	}
	if gates["focusLocked"] != true {
		t.Fatalf("expected focusLocked to survive merge, got %#v", gates["focusLocked"])
	}

	state["gates"].(map[string]any)["compacting"] = false
	again := b.GetState("p1")
	if again["gates"].(map[string]any)["compacting"] != true {
		t.Fatal("GetState should return a clone, not a live reference")
	}
}

func TestReset_ClearsSubscribersEventsAndState(t *testing.T) {
	b := New(16)
	called := false
	b.On("e", func(Event) { called = true })
	b.UpdateState("p1", map[string]any{"k": "v"})
	b.Emit("e", EmitInput{})

	b.Reset()

	if len(b.Query(Query{Type: "e"})) != 0 {
		t.Fatal("expected events cleared after reset")
	}
	if len(b.GetState("p1")) != 0 {
		t.Fatal("expected state cleared after reset")
	}
	called = false
	b.Emit("e", EmitInput{})
	if called {
		t.Fatal("expected subscribers cleared after reset")
	}
}

func TestOff_RemovesHandler(t *testing.T) {
	b := New(16)
	calls := 0
	h := func(Event) { calls++ }
	b.On("e", h)
	b.Emit("e", EmitInput{})
	b.Off("e", h)
	b.Emit("e", EmitInput{})
	if calls != 1 {
		t.Fatalf("expected handler called once before Off, got %d", calls)
	}
}
