package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewSessionRegistry()

	reg.Register("alice@example.com", "conn-1")

	connID, ok := reg.Lookup("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, "conn-1", connID)
	assert.Equal(t, 1, reg.Len())

	_, ok = reg.Lookup("bob@example.com")
	assert.False(t, ok, "Lookup of an unknown email should miss")
}

func TestSessionRegistry_ReconnectOverwrites(t *testing.T) {
	reg := NewSessionRegistry()

	reg.Register("alice@example.com", "conn-1")
	reg.Register("alice@example.com", "conn-2")

	connID, ok := reg.Lookup("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, "conn-2", connID, "The newer connection should win")
	assert.Equal(t, 1, reg.Len(), "A reconnect must not add a second entry")
}

func TestSessionRegistry_StaleUnregisterIsNoOp(t *testing.T) {
	reg := NewSessionRegistry()

	// conn-1 is replaced by conn-2 before its disconnect is processed.
	reg.Register("alice@example.com", "conn-1")
	reg.Register("alice@example.com", "conn-2")

	reg.Unregister("conn-1")

	connID, ok := reg.Lookup("alice@example.com")
	require.True(t, ok, "The stale unregister must not clear the newer session")
	assert.Equal(t, "conn-2", connID)
}

func TestSessionRegistry_UnregisterIsIdempotent(t *testing.T) {
	reg := NewSessionRegistry()

	reg.Register("alice@example.com", "conn-1")
	reg.Unregister("conn-1")
	reg.Unregister("conn-1")
	reg.Unregister("never-registered")

	_, ok := reg.Lookup("alice@example.com")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
}

func TestSessionRegistry_ConcurrentUse(t *testing.T) {
	reg := NewSessionRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			email := fmt.Sprintf("user-%d@example.com", n)
			connID := fmt.Sprintf("conn-%d", n)
			reg.Register(email, connID)
			_, _ = reg.Lookup(email)
			if n%2 == 0 {
				reg.Unregister(connID)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, reg.Len())
}
