package calibration

import (
	"errors"
	"sort"
	"sync"
)

// ModelPool hands each worker its own initialized clone of a prototype model. A clone is
// created on a worker's first Acquire and reused for the rest of the run; workers never
// share clones.
type ModelPool struct {
	// mu serializes first access. It also guards every read of prototype.
	mu        sync.Mutex
	prototype ForwardModel
	models    sync.Map // int -> ForwardModel
	size      int
}

// NewModelPool creates a pool around prototype. The prototype is only read while cloning.
func NewModelPool(prototype ForwardModel) *ModelPool {
	return &ModelPool{prototype: prototype}
}

// Acquire returns the clone owned by workerID, creating it on first use. The returned
// model must only be used by that worker.
func (p *ModelPool) Acquire(workerID int) (ForwardModel, error) {
	if m, ok := p.models.Load(workerID); ok {
		return m.(ForwardModel), nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine using the same id may have won the race to the lock.
	if m, ok := p.models.Load(workerID); ok {
		return m.(ForwardModel), nil
	}
	if workerID < 0 {
		return nil, &PoolInitializationError{WorkerID: workerID, Err: errors.New("worker id cannot be negative")}
	}
	m, err := p.cloneLocked()
	if err != nil {
		return nil, &PoolInitializationError{WorkerID: workerID, Err: err}
	}
	p.models.Store(workerID, m)
	p.size++
	return m, nil
}

// Detached returns an initialized clone that belongs to no worker.
func (p *ModelPool) Detached() (ForwardModel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, err := p.cloneLocked()
	if err != nil {
		return nil, &PoolInitializationError{WorkerID: -1, Err: err}
	}
	return m, nil
}

func (p *ModelPool) cloneLocked() (ForwardModel, error) {
	if p.prototype == nil {
		return nil, errors.New("pool has no prototype model")
	}
	m, err := p.prototype.Clone()
	if err != nil {
		return nil, err
	}
	if err := m.Initialize(); err != nil {
		return nil, err
	}
	return m, nil
}

// inspect runs fn with the prototype under the pool lock
func (p *ModelPool) inspect(fn func(ForwardModel) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prototype == nil {
		return errors.New("pool has no prototype model")
	}
	return fn(p.prototype)
}

// Size returns the number of workers that own a clone
func (p *ModelPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Workers returns the sorted ids of workers that own a clone
func (p *ModelPool) Workers() []int {
	var ids []int
	p.models.Range(func(k, _ any) bool {
		ids = append(ids, k.(int))
		return true
	})
	sort.Ints(ids)
	return ids
}
