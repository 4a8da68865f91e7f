package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/tandem/internal/api"
)

func TestBus_FanOut(t *testing.T) {
	bus := NewBus()
	a, cancelA := bus.Subscribe()
	b, cancelB := bus.Subscribe()
	defer cancelA()
	defer cancelB()

	bus.Publish(api.Event{Type: api.EventAuthSucceeded, UserID: "u1"})

	for _, ch := range []<-chan api.Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, api.EventAuthSucceeded, ev.Type)
			assert.Equal(t, "u1", ev.UserID)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after unsubscribe must not panic.
	bus.Publish(api.Event{Type: api.EventAuthFailed})
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < DefaultBufferSize*2; i++ {
			bus.Publish(api.Event{Type: api.EventUsersChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestBus_HandlerSeesEveryEvent(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe()
	defer cancel()

	var seen []api.Event
	remove := bus.Handle(func(ev api.Event) {
		seen = append(seen, ev)
	})

	total := DefaultBufferSize * 3
	for i := 0; i < total; i++ {
		bus.Publish(api.Event{Type: api.EventUsersChanged})
	}
	bus.Publish(api.Event{Type: api.EventAuthSucceeded, UserID: "u1"})

	require.Len(t, seen, total+1)
	assert.Equal(t, api.EventAuthSucceeded, seen[total].Type)

	remove()
	bus.Publish(api.Event{Type: api.EventAuthFailed})
	assert.Len(t, seen, total+1)
}

func TestBus_HandlerMayPublish(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Handle(func(ev api.Event) {
		if ev.Type == api.EventAuthSucceeded {
			bus.Publish(api.Event{Type: api.EventUsersChanged, UserID: ev.UserID})
		}
	})

	done := make(chan struct{})
	go func() {
		bus.Publish(api.Event{Type: api.EventAuthSucceeded, UserID: "u1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish deadlocked on a re-entrant handler")
	}

	var types []api.EventType
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	assert.ElementsMatch(t, []api.EventType{api.EventUsersChanged, api.EventAuthSucceeded}, types)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe()
	bus.Close()
	bus.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok)

	called := false
	bus.Handle(func(api.Event) { called = true })
	bus.Publish(api.Event{Type: api.EventAuthFailed})
	assert.False(t, called)
}

func TestMessageTemplateEngine(t *testing.T) {
	e := NewMessageTemplateEngine()

	tests := []struct {
		name string
		ev   api.Event
		want string
	}{
		{
			name: "success with email",
			ev:   api.Event{Type: api.EventAuthSucceeded, Claims: &api.ProfileClaims{Email: "ana@example.com"}},
			want: "Signed in as ana@example.com",
		},
		{
			name: "success without claims",
			ev:   api.Event{Type: api.EventAuthSucceeded},
			want: "Signed in",
		},
		{
			name: "failure",
			ev:   api.Event{Type: api.EventAuthFailed, Message: "ExchangeFailed"},
			want: "Sign-in failed: ExchangeFailed",
		},
		{
			name: "timeout",
			ev:   api.Event{Type: api.EventAuthTimedOut},
			want: "Sign-in timed out, no response from the browser",
		},
		{
			name: "unknown type",
			ev:   api.Event{Type: "other", UserID: "u1"},
			want: "Event: other for user u1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Render(tt.ev))
		})
	}
}

func TestMessageTemplateEngine_SetTemplate(t *testing.T) {
	e := NewMessageTemplateEngine()
	require.NoError(t, e.SetTemplate(api.EventAuthFailed, `{{ .UserID | upper }} failed`))
	assert.Equal(t, "U1 failed", e.Render(api.Event{Type: api.EventAuthFailed, UserID: "u1"}))

	assert.Error(t, e.SetTemplate(api.EventAuthFailed, `{{ .Broken`))
}
