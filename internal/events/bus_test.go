package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treykane/termshare/internal/model"
)

func TestBusFanOutByTopic(t *testing.T) {
	b := NewBus()
	a, cancelA := b.Subscribe("session-status", 4)
	defer cancelA()
	other, cancelOther := b.Subscribe("other", 4)
	defer cancelOther()

	snap := model.StatusSnapshot{Running: true, URL: "https://x.example/t/", Port: 9}
	require.NoError(t, b.Publish("session-status", snap))

	assert.Equal(t, snap, <-a)
	assert.Empty(t, other)
	last, ok := b.Last("session-status")
	assert.True(t, ok)
	assert.Equal(t, snap, last)
}

func TestBusSlowSubscriberKeepsNewest(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("s", 1)
	defer cancel()

	for i := uint16(1); i <= 5; i++ {
		require.NoError(t, b.Publish("s", model.StatusSnapshot{Running: true, Port: i}))
	}
	got := <-ch
	assert.Equal(t, uint16(5), got.Port)
}

func TestBusCancelClosesAndUnsubscribes(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("s", 1)
	assert.Equal(t, 1, b.Subscribers())
	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers())
	require.NoError(t, b.Publish("s", model.StatusSnapshot{}))
}
