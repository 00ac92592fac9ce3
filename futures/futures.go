package futures

import (
	"sync"

	"github.com/anacrolix/mediabrowse/queue"
)

// Maintains the pool of workers and receives new work.
type Executor struct {
	waiting *queue.Queue[func()]
	wg      sync.WaitGroup
}

// Create a new Executor that does up to maxWorkers tasks in parallel.
func NewExecutor(maxWorkers int) *Executor {
	ret := &Executor{
		waiting: queue.New[func()](),
	}
	for a := 0; a < maxWorkers; a++ {
		ret.wg.Add(1)
		go func() {
			defer ret.wg.Done()
			for {
				run, ok := ret.waiting.Get()
				if !ok {
					return
				}
				run()
			}
		}()
	}
	return ret
}

// Prevents new tasks being submitted, and waits for the workers to finish the futures already queued.
func (me *Executor) Shutdown() {
	me.waiting.Close()
	me.wg.Wait()
}

// Represents some asynchronous execution.
type Future[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// Blocks until the Future completes, and returns the computed value.
func (me *Future[T]) Result() (T, error) {
	<-me.done
	return me.result, me.err
}

// Submit fn to the Executor, returning a Future that represents it.
func Submit[T any](me *Executor, fn func() (T, error)) *Future[T] {
	fut := &Future[T]{
		done: make(chan struct{}),
	}
	me.waiting.Put(func() {
		defer close(fut.done)
		fut.result, fut.err = fn()
	})
	return fut
}

// Result of one Map input.
type Result[T, R any] struct {
	Input T
	Value R
	Err   error
}

// Map calls fn with each of inputs on the Executor, and outputs the results in input order to the
// returned channel, which is closed after the last one.
func Map[T, R any](me *Executor, inputs []T, fn func(T) (R, error)) <-chan Result[T, R] {
	futs := make([]*Future[R], 0, len(inputs))
	for _, in := range inputs {
		in := in
		futs = append(futs, Submit(me, func() (R, error) {
			return fn(in)
		}))
	}
	ret := make(chan Result[T, R])
	go func() {
		defer close(ret)
		for i, fut := range futs {
			v, err := fut.Result()
			ret <- Result[T, R]{Input: inputs[i], Value: v, Err: err}
		}
	}()
	return ret
}
