// Package workerpool runs jobs on a fixed set of goroutines and collects
// their results per room.
package workerpool

import (
	"errors"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/cpu"
)

var (
	ErrGlobalBufferFull = errors.New("workerpool: global buffer is full")
	ErrRoomBufferFull   = errors.New("workerpool: room buffer is full")
	ErrClosed           = errors.New("workerpool: pool is closed")
)

type WorkerPool struct {
	config    Config
	taskQueue chan Task
	workers   sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

// Room groups tasks whose results are collected together.
type Room struct {
	bufferSize int
	resultChan chan any
	wg         sync.WaitGroup
	closeOnce  sync.Once
	wp         *WorkerPool
}

type Task struct {
	run  func() any
	room *Room
}

// DefaultWorkerCount is one worker per logical CPU, keeping one for the
// caller when there are more than two.
func DefaultWorkerCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}
	if n > 2 {
		n--
	}
	return n
}

func NewWorkerPool(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		config.WorkerCount = DefaultWorkerCount()
	}
	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 10000
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan Task, config.GlobalBuffer),
	}

	wp.workers.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		go wp.worker()
	}
	return wp
}

func (wp *WorkerPool) WorkerCount() int { return wp.config.WorkerCount }

func (wp *WorkerPool) worker() {
	defer wp.workers.Done()
	for t := range wp.taskQueue {
		t.room.resultChan <- t.run()
		t.room.wg.Done()
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (wp *WorkerPool) Close() {
	wp.closeMu.Lock()
	if wp.closed {
		wp.closeMu.Unlock()
		return
	}
	wp.closed = true
	close(wp.taskQueue)
	wp.closeMu.Unlock()
	wp.workers.Wait()
}

func (wp *WorkerPool) CreateRoom(size int) *Room {
	return &Room{
		bufferSize: size,
		resultChan: make(chan any, size),
		wp:         wp,
	}
}

// NewTaskWaitForFreeSlot queues job, blocking while the global buffer is full.
func (ro *Room) NewTaskWaitForFreeSlot(job func() any) error {
	ro.wp.closeMu.RLock()
	defer ro.wp.closeMu.RUnlock()
	if ro.wp.closed {
		return ErrClosed
	}
	ro.wg.Add(1)
	ro.wp.taskQueue <- Task{run: job, room: ro}
	return nil
}

// NewTask queues job or fails right away when a buffer is full.
func (ro *Room) NewTask(job func() any) error {
	if len(ro.wp.taskQueue) == cap(ro.wp.taskQueue) {
		return ErrGlobalBufferFull
	}
	if len(ro.resultChan) == cap(ro.resultChan) {
		return ErrRoomBufferFull
	}
	return ro.NewTaskWaitForFreeSlot(job)
}

// Collect waits for every task of the room and returns the results in
// completion order. The room must not get new tasks afterwards.
func (ro *Room) Collect() []any {
	go ro.waitAndClose()
	results := make([]any, 0, ro.bufferSize)
	for result := range ro.resultChan {
		results = append(results, result)
	}
	return results
}

func (ro *Room) waitAndClose() {
	ro.wg.Wait()
	ro.closeOnce.Do(func() { close(ro.resultChan) })
}
