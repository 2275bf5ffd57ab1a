package mailbox

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMailbox_DrainPreservesOrder(t *testing.T) {
	m := New[int]()
	for i := range 5 {
		assert.True(t, m.Put(i))
	}

	<-m.Ready()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, m.Drain())
	assert.Empty(t, m.Drain())
}

func TestMailbox_PutNeverBlocks(t *testing.T) {
	m := New[int]()
	// Nobody consumes; the notify channel holds one token and the rest coalesce.
	for i := range 10000 {
		m.Put(i)
	}
	assert.Equal(t, 10000, m.Len())
}

func TestMailbox_ConcurrentProducers(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup
	for p := range 4 {
		wg.Go(func() {
			for i := range 100 {
				m.Put(p*100 + i)
			}
		})
	}
	wg.Wait()

	got := m.Drain()
	assert.Len(t, got, 400)
}

func TestMailbox_CloseRejects(t *testing.T) {
	m := New[string]()
	m.Put("a")
	m.Close()

	assert.False(t, m.Put("b"))
	assert.Empty(t, m.Drain())
}
