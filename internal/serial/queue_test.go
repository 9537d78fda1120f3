package serial

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoReturnsError(t *testing.T) {
	q := NewQueue()

	sentinel := errors.New("boom")
	err := q.Do(func() error { return sentinel })
	require.ErrorIs(t, err, sentinel)

	require.NoError(t, q.Do(func() error { return nil }))
}

func TestFIFOOrdering(t *testing.T) {
	q := NewQueue()

	var mu sync.Mutex
	var order []int

	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Do(func() error {
			close(started)
			<-release
			mu.Lock()
			order = append(order, 1)
			mu.Unlock()
			return nil
		})
	}()
	<-started

	// queue ops 2..5 while op 1 is still blocked
	for i := 2; i <= 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Do(func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// give each goroutine time to take its queue slot in order
		time.Sleep(20 * time.Millisecond)
	}

	close(release)
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3, 4, 5}, order)
}

func TestNeverConcurrent(t *testing.T) {
	q := NewQueue()

	var inFlight, maxInFlight int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Do(func() error {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
}
