package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus[Event](BusOptions{Name: "test"})
	defer bus.Close()

	first, cancelFirst := bus.Subscribe()
	defer cancelFirst()
	second, cancelSecond := bus.Subscribe()
	defer cancelSecond()

	ev := New(SessionStarted)
	ev.SessionID = "1077"
	bus.Publish(ev)

	got := <-first
	assert.Equal(t, "1077", got.SessionID)
	got = <-second
	assert.Equal(t, SessionStarted, got.EventType)
	assert.EqualValues(t, 1, bus.Published())
}

func TestBusSubscribeTypesFiltersEvents(t *testing.T) {
	bus := NewBus[Event](BusOptions{})
	defer bus.Close()

	ch, cancel := bus.SubscribeTypes(string(SessionEnded))
	defer cancel()

	bus.Publish(New(PendingSession))
	bus.Publish(New(SessionEnded))

	got := <-ch
	assert.Equal(t, SessionEnded, got.EventType)
	assert.Len(t, ch, 0)
}

func TestBusSubscribeTypesWithoutTypesIsClosed(t *testing.T) {
	bus := NewBus[Event](BusOptions{})
	ch, _ := bus.SubscribeTypes()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus[Event](BusOptions{SubscriberBufferSize: 1})
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(New(Trace))
	bus.Publish(New(Trace))

	assert.Len(t, ch, 1)
	assert.EqualValues(t, 1, bus.Dropped())
}

func TestBusCancelAndClose(t *testing.T) {
	bus := NewBus[Event](BusOptions{})

	ch, cancel := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())
	cancel()
	_, ok := <-ch
	assert.False(t, ok, "канал должен закрыться после отписки")
	assert.Equal(t, 0, bus.SubscriberCount())

	other, _ := bus.Subscribe()
	bus.Close()
	_, ok = <-other
	assert.False(t, ok)

	// после закрытия публикация и подписка безопасны
	bus.Publish(New(Error))
	late, _ := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
