// Package memstore provides in-memory stand-ins for the PostgreSQL adapters used in tests.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/odyssey-erp/cashdesk/internal/platform/db"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Snapshotter is state that a failed unit of work must roll back.
type Snapshotter interface {
	// Snapshot captures the branch state and returns the function restoring it.
	Snapshot(branchID int64) (restore func())
}

// UnitOfWork implements db.UnitOfWork in memory. Writers of a branch serialise on a
// per-branch lock and a failing fn restores every tracked Snapshotter.
type UnitOfWork struct {
	mu       sync.Mutex
	branches map[int64]*sync.RWMutex
	states   []Snapshotter
	failures []error
}

var _ db.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork registers the given branches.
func NewUnitOfWork(branchIDs ...int64) *UnitOfWork {
	u := &UnitOfWork{branches: make(map[int64]*sync.RWMutex)}
	for _, id := range branchIDs {
		u.branches[id] = &sync.RWMutex{}
	}
	return u
}

// Track registers state rolled back on failure.
func (u *UnitOfWork) Track(states ...Snapshotter) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.states = append(u.states, states...)
}

// FailNext makes the next unit of work fail with err before fn runs.
func (u *UnitOfWork) FailNext(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failures = append(u.failures, err)
}

// InBranch runs fn holding the branch write lock.
func (u *UnitOfWork) InBranch(ctx context.Context, branchID int64, fn func(context.Context, db.Querier) error) error {
	lock, err := u.lock(branchID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()
	if err := u.preflight(ctx); err != nil {
		return err
	}

	u.mu.Lock()
	restores := make([]func(), 0, len(u.states))
	for _, s := range u.states {
		restores = append(restores, s.Snapshot(branchID))
	}
	u.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		return err
	}
	return nil
}

// Read runs fn holding the branch read lock.
func (u *UnitOfWork) Read(ctx context.Context, branchID int64, fn func(context.Context, db.Querier) error) error {
	lock, err := u.lock(branchID)
	if err != nil {
		return err
	}
	lock.RLock()
	defer lock.RUnlock()
	if err := u.preflight(ctx); err != nil {
		return err
	}
	return fn(ctx, nil)
}

// ReadAll runs fn without any branch lock.
func (u *UnitOfWork) ReadAll(ctx context.Context, fn func(context.Context, db.Querier) error) error {
	if err := u.preflight(ctx); err != nil {
		return err
	}
	return fn(ctx, nil)
}

func (u *UnitOfWork) lock(branchID int64) (*sync.RWMutex, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	lock, ok := u.branches[branchID]
	if !ok {
		return nil, fmt.Errorf("%w: branch %d", shared.ErrNotFound, branchID)
	}
	return lock, nil
}

func (u *UnitOfWork) preflight(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTransientStore, err)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.failures) == 0 {
		return nil
	}
	err := u.failures[0]
	u.failures = u.failures[1:]
	return err
}
