package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
)

type fakeConn struct {
	mu       sync.Mutex
	received [][]byte
	err      error
}

func (c *fakeConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.received = append(c.received, data)
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	h := New(logger.NewNop())
	a, b := &fakeConn{}, &fakeConn{}

	h.Register("conv-1", a)
	h.Register("conv-1", b)
	h.Register("conv-2", &fakeConn{})

	h.Broadcast("conv-1", map[string]string{"hello": "world"})

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestBroadcastFailureDoesNotAbortOthersOrUnregister(t *testing.T) {
	h := New(logger.NewNop())
	bad := &fakeConn{err: errors.New("connection reset")}
	good := &fakeConn{}

	h.Register("conv-1", bad)
	h.Register("conv-1", good)

	h.Broadcast("conv-1", map[string]string{"k": "v"})

	assert.Equal(t, 1, good.count())
	// The failed subscriber stays registered until explicit unregister.
	assert.Equal(t, 2, h.Subscribers("conv-1"))
}

func TestUnregisterRemovesOnlyTargetConnection(t *testing.T) {
	h := New(logger.NewNop())
	a, b := &fakeConn{}, &fakeConn{}

	h.Register("conv-1", a)
	h.Register("conv-1", b)
	h.Unregister("conv-1", a)

	assert.Equal(t, 1, h.Subscribers("conv-1"))

	h.Broadcast("conv-1", "payload")
	assert.Equal(t, 0, a.count())
	assert.Equal(t, 1, b.count())

	h.Unregister("conv-1", b)
	assert.Equal(t, 0, h.Subscribers("conv-1"))
}

func TestBroadcastToEmptyRoomIsNoop(t *testing.T) {
	h := New(logger.NewNop())
	h.Broadcast("nobody-home", "payload")
}

func TestConcurrentRegisterBroadcastUnregister(t *testing.T) {
	h := New(logger.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			convID := fmt.Sprintf("conv-%d", i%4)
			conn := &fakeConn{}
			h.Register(convID, conn)
			h.Broadcast(convID, map[string]int{"i": i})
			h.Unregister(convID, conn)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		assert.Equal(t, 0, h.Subscribers(fmt.Sprintf("conv-%d", i)))
	}
}
