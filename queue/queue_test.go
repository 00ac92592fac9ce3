package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestQueueOrderAndDrain(t *testing.T) {
	defer goleak.VerifyNone(t)
	q := New[int]()
	for i := 0; i < 100; i++ {
		q.Put(i)
	}
	q.Close()
	for i := 0; i < 100; i++ {
		v, ok := q.Get()
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.Get()
	assert.False(t, ok)
}

func TestQueueConcurrent(t *testing.T) {
	defer goleak.VerifyNone(t)
	q := New[string]()
	done := make(chan []string)
	go func() {
		var got []string
		for {
			v, ok := q.Get()
			if !ok {
				break
			}
			got = append(got, v)
		}
		done <- got
	}()
	q.Put("a")
	q.Put("b")
	q.Close()
	assert.Equal(t, []string{"a", "b"}, <-done)
}
