package sync

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	base "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripedLock_HappyPath(t *testing.T) {
	workerCount := 64
	operationCount := 10000

	l := NewStripedLock(4)

	var workerWg base.WaitGroup
	startChan := make(chan struct{})
	data := make([]int, workerCount)

	for i := 0; i < workerCount; i++ {
		workerWg.Add(1)

		go func(workerID int) {
			defer workerWg.Done()

			var opWg base.WaitGroup
			key := []byte(fmt.Sprintf("worker%d", workerID))
			for j := 0; j < operationCount; j++ {
				opWg.Add(1)

				go func() {
					defer opWg.Done()

					<-startChan

					mu := l.Get(key)
					mu.Lock()
					data[workerID]++
					mu.Unlock()
				}()
			}
			opWg.Wait()
		}(i)
	}

	close(startChan)
	workerWg.Wait()

	for _, val := range data {
		assert.EqualValues(t, operationCount, val)
	}
}

func TestStripedLock_CompositeKeyIsStable(t *testing.T) {
	l := NewStripedLock(64)

	depositor, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	mint, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	mu := l.Get(depositor, mint)
	for i := 0; i < 10; i++ {
		assert.Same(t, mu, l.Get(depositor, mint))
	}
}
