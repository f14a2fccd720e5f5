package redisholder

import (
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Source yields the redis client to use for the next command.
type Source interface {
	Get() redis.UniversalClient
}

type box struct {
	client redis.UniversalClient
}

// Holder gives every consumer the current client while the health loop may
// swap in a reconnected one.
type Holder struct {
	p    atomic.Pointer[box]
	once sync.Once
	done chan struct{}
}

func NewHolder(initial redis.UniversalClient) *Holder {
	h := &Holder{done: make(chan struct{})}
	h.p.Store(&box{client: initial})
	return h
}

func (h *Holder) Get() redis.UniversalClient {
	if b := h.p.Load(); b != nil {
		return b.client
	}
	return nil
}

func (h *Holder) swap(newc redis.UniversalClient) redis.UniversalClient {
	old := h.p.Swap(&box{client: newc})
	if old == nil {
		return nil
	}
	return old.client
}

// Close stops the health loop and closes the current client.
func (h *Holder) Close() error {
	h.once.Do(func() { close(h.done) })
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}

func (h *Holder) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
