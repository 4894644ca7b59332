package userlock

import (
	"sync"
	"testing"
)

func TestDoSerializesSameUser(t *testing.T) {
	reg := NewRegistry()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Do("u1", func() {
				counter++
			})
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
}

func TestLockIsPerUser(t *testing.T) {
	reg := NewRegistry()

	unlockA := reg.Lock("alice")
	// A second user must not be blocked by the first user's held lock.
	done := make(chan struct{})
	go func() {
		reg.Do("bob", func() {})
		close(done)
	}()
	<-done
	unlockA()

	// Same user blocks until released.
	reg.Do("alice", func() {})
}
