// Package worker runs a named task loop on its own goroutine. Senders enqueue
// tasks; the loop hands them to the handler one at a time until it is stopped.
package worker

import "sync"

type TaskStop struct{}

type Task interface{}

// Worker owns one goroutine draining a task channel.
type Worker struct {
	name     string
	sender   chan<- Task
	receiver <-chan Task
	wg       *sync.WaitGroup
}

// TaskHandler consumes tasks in arrival order, on the worker goroutine.
type TaskHandler interface {
	Handle(t Task)
}

// Starter is an optional TaskHandler hook run on the worker goroutine before
// the first task.
type Starter interface {
	Start()
}

func (w *Worker) Start(handler TaskHandler) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if s, ok := handler.(Starter); ok {
			s.Start()
		}
		for {
			task := <-w.receiver
			if _, ok := task.(TaskStop); ok {
				return
			}
			handler.Handle(task)
		}
	}()
}

func (w *Worker) Sender() chan<- Task {
	return w.sender
}

// Stop enqueues the stop marker. Tasks already queued are still handled; wait
// on the worker's WaitGroup for full drain.
func (w *Worker) Stop() {
	w.sender <- TaskStop{}
}

const defaultWorkerCapacity = 128

func NewWorker(name string, wg *sync.WaitGroup) *Worker {
	ch := make(chan Task, defaultWorkerCapacity)
	return &Worker{
		sender:   (chan<- Task)(ch),
		receiver: (<-chan Task)(ch),
		name:     name,
		wg:       wg,
	}
}
