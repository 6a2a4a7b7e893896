package api

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/treykane/termshare/internal/events"
	"github.com/treykane/termshare/internal/model"
)

// queueOnly registers a client with no connection or writer, so its queue
// fills up and only the hub ever closes it.
func queueOnly(h *Hub) *client {
	c := &client{send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func TestBroadcastRacingRemoveDoesNotPanic(t *testing.T) {
	for round := 0; round < 5; round++ {
		h := NewHub(events.NewBus(), nil)
		clients := make([]*client, 20000)
		for i := range clients {
			clients[i] = queueOnly(h)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for _, c := range clients {
				h.Remove(c)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < clientBuffer+2; i++ {
				h.broadcast(model.StatusSnapshot{Running: i%2 == 0})
			}
		}()
		wg.Wait()
		assert.Zero(t, h.Clients())
	}
}

func TestSlowClientIsDisconnectedOnce(t *testing.T) {
	h := NewHub(events.NewBus(), nil)
	slow := queueOnly(h)

	for i := 0; i < clientBuffer+1; i++ {
		h.broadcast(model.StatusSnapshot{})
	}
	assert.Zero(t, h.Clients())

	drained := 0
	for range slow.send {
		drained++
	}
	assert.Equal(t, clientBuffer, drained, "queue closed after the last accepted snapshot")
	assert.NotPanics(t, func() { h.Remove(slow) })
}

func TestCloseAllStopsLateClients(t *testing.T) {
	h := NewHub(events.NewBus(), nil)
	c := queueOnly(h)
	h.closeAll()

	_, open := <-c.send
	assert.False(t, open)
	assert.NotPanics(t, func() { h.broadcast(model.StatusSnapshot{}) })
	assert.True(t, h.closed)
}
