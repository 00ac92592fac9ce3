package futures

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMapKeepsOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := NewExecutor(4)
	defer e.Shutdown()
	in := []int{5, 4, 3, 2, 1, 0}
	var got []int
	for r := range Map(e, in, func(i int) (int, error) {
		// Later inputs finish first.
		time.Sleep(time.Duration(i) * time.Millisecond)
		return i * 10, nil
	}) {
		require.NoError(t, r.Err)
		assert.Equal(t, r.Input*10, r.Value)
		got = append(got, r.Value)
	}
	assert.Equal(t, []int{50, 40, 30, 20, 10, 0}, got)
}

func TestMapErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := NewExecutor(2)
	defer e.Shutdown()
	bad := errors.New("bad")
	var errs int
	for r := range Map(e, []string{"a", "", "c"}, func(s string) (int, error) {
		if s == "" {
			return 0, bad
		}
		return len(s), nil
	}) {
		if r.Err != nil {
			assert.ErrorIs(t, r.Err, bad)
			errs++
		}
	}
	assert.Equal(t, 1, errs)
}

func TestShutdownRunsQueued(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := NewExecutor(1)
	var n atomic.Int32
	var futs []*Future[struct{}]
	for i := 0; i < 10; i++ {
		futs = append(futs, Submit(e, func() (struct{}, error) {
			n.Add(1)
			return struct{}{}, nil
		}))
	}
	e.Shutdown()
	assert.EqualValues(t, 10, n.Load())
	for _, f := range futs {
		_, err := f.Result()
		assert.NoError(t, err)
	}
}
