package core

import "testing"

func TestEventBusFireStopsWhenHandled(t *testing.T) {
	bus := NewEventBus()
	var calls []string

	first, second := "first", "second"
	bus.Register(EVENT_CODE_RESIZED, first, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, listener.(string))
		return data.Data.U32[0] == 0
	})
	bus.Register(EVENT_CODE_RESIZED, second, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, listener.(string))
		return true
	})

	ctx := EventContext{}
	ctx.Data.U32[0] = 800
	if !bus.Fire(EVENT_CODE_RESIZED, nil, ctx) {
		t.Fatal("event should be handled by the second listener")
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %v", calls)
	}

	calls = nil
	ctx.Data.U32[0] = 0
	bus.Fire(EVENT_CODE_RESIZED, nil, ctx)
	if len(calls) != 1 || calls[0] != first {
		t.Errorf("first listener should stop propagation, calls = %v", calls)
	}
}

func TestEventBusRegisterTwice(t *testing.T) {
	bus := NewEventBus()
	noop := func(SystemEventCode, interface{}, interface{}, EventContext) bool { return false }
	if !bus.Register(EVENT_CODE_APPLICATION_QUIT, "l", noop) {
		t.Fatal("first registration should succeed")
	}
	if bus.Register(EVENT_CODE_APPLICATION_QUIT, "l", noop) {
		t.Error("duplicate registration should be rejected")
	}
	if !bus.Unregister(EVENT_CODE_APPLICATION_QUIT, "l") {
		t.Error("unregister should find the listener")
	}
	if bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}) {
		t.Error("no listener should be left")
	}
}
