package queue

import (
	"container/list"
)

// Queue is an unbounded FIFO. Put never blocks for long, Get blocks until a value is available or the
// queue is closed and drained.
type Queue[T any] struct {
	in, out chan T
}

func New[T any]() *Queue[T] {
	ret := &Queue[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go ret.run()
	return ret
}

func (me *Queue[T]) run() {
	in := me.in
	l := list.New()
	for {
		if l.Len() == 0 {
			if in == nil {
				break
			}
			v, ok := <-in
			if !ok {
				break
			}
			l.PushBack(v)
			continue
		}
		select {
		case me.out <- l.Front().Value.(T):
			l.Remove(l.Front())
		case v, ok := <-in:
			if !ok {
				in = nil
			} else {
				l.PushBack(v)
			}
		}
	}
	close(me.out)
}

// Put must not be called after Close.
func (me *Queue[T]) Put(v T) {
	me.in <- v
}

func (me *Queue[T]) Get() (val T, ok bool) {
	val, ok = <-me.out
	return
}

// Close stops accepting values. Values already put are still returned by Get.
func (me *Queue[T]) Close() {
	close(me.in)
}
