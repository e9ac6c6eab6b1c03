package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnAndOff(t *testing.T) {
	bus := New()
	var got []string
	first := bus.On(Decoded, func(ev Event) { got = append(got, "first:"+ev.Text) })
	bus.On(Decoded, func(ev Event) { got = append(got, "second:"+ev.Text) })
	bus.On(Failed, func(Event) { got = append(got, "failed") })

	bus.Emit(Event{Topic: Decoded, Text: "a"})
	bus.Off(Decoded, first)
	bus.Off(Decoded, first)
	bus.Emit(Event{Topic: Decoded, Text: "b"})

	assert.Equal(t, []string{"first:a", "second:a", "second:b"}, got)
	assert.Equal(t, 1, bus.Len(Decoded))
}

func TestOnceFiresOnce(t *testing.T) {
	bus := New()
	calls := 0
	bus.Once(Cancelled, func(ev Event) {
		calls++
		assert.ErrorIs(t, ev.Err, errCancel)
	})

	bus.Emit(Event{Topic: Cancelled, Err: errCancel})
	bus.Emit(Event{Topic: Cancelled, Err: errCancel})
	assert.Equal(t, 1, calls)
	assert.Zero(t, bus.Len(Cancelled))
}

var errCancel = errors.New("cancelled")

func TestEmitWithoutListeners(t *testing.T) {
	var zero Bus
	assert.NotPanics(t, func() { zero.Emit(Event{Topic: Shown}) })

	var nilBus *Bus
	assert.NotPanics(t, func() { nilBus.Emit(Event{Topic: Shown}) })
}

func TestHandlersMayResubscribe(t *testing.T) {
	bus := New()
	calls := 0
	var sub Subscription
	sub = bus.On(Shown, func(Event) {
		calls++
		bus.Off(Shown, sub)
		bus.On(Hidden, func(Event) { calls += 10 })
	})

	bus.Emit(Event{Topic: Shown})
	bus.Emit(Event{Topic: Shown})
	bus.Emit(Event{Topic: Hidden})
	assert.Equal(t, 11, calls)
}

func TestConcurrentOnceDeliversOnce(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	calls := 0
	bus.Once(Destroyed, func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Emit(Event{Topic: Destroyed})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}
