package helper

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	km := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		counter = map[string]int{}
	)

	for i := 0; i < 100; i++ {
		for _, key := range []string{"a", "b"} {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				unlock := km.Lock(key)
				defer unlock()

				// Map writes for different keys still need a shared guard.
				km.mu.Lock()
				v := counter[key]
				km.mu.Unlock()

				km.mu.Lock()
				counter[key] = v + 1
				km.mu.Unlock()
			}(key)
		}
	}

	wg.Wait()

	assert.Equal(t, 100, counter["a"])
	assert.Equal(t, 100, counter["b"])
	assert.Empty(t, km.locks)
}
