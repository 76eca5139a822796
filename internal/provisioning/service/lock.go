package service

import (
	"context"
	"sync"

	"github.com/shipnology/shipnology-backend/internal/provisioning/domain"
)

// AdvisoryLocker is satisfied by *database.DB
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (release func(), acquired bool, err error)
}

// OrganisationLocks serialises provisioning per organisation. The in-process
// set rejects a second run in this replica; the PostgreSQL advisory lock
// rejects one running in another replica.
type OrganisationLocks struct {
	mu       sync.Mutex
	held     map[int64]struct{}
	advisory AdvisoryLocker
}

// NewOrganisationLocks creates the lock set. advisory may be nil.
func NewOrganisationLocks(advisory AdvisoryLocker) *OrganisationLocks {
	return &OrganisationLocks{
		held:     make(map[int64]struct{}),
		advisory: advisory,
	}
}

// TryLock takes the lock for organisationID without waiting. A held lock
// yields ProvisioningInProgress.
func (l *OrganisationLocks) TryLock(ctx context.Context, organisationID int64) (func(), error) {
	l.mu.Lock()
	if _, busy := l.held[organisationID]; busy {
		l.mu.Unlock()
		return nil, domain.ProvisioningInProgress()
	}
	l.held[organisationID] = struct{}{}
	l.mu.Unlock()

	local := func() {
		l.mu.Lock()
		delete(l.held, organisationID)
		l.mu.Unlock()
	}

	if l.advisory == nil {
		return local, nil
	}

	releaseAdvisory, acquired, err := l.advisory.TryAdvisoryLock(ctx, organisationID)
	if err != nil {
		local()
		return nil, err
	}
	if !acquired {
		local()
		return nil, domain.ProvisioningInProgress()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseAdvisory()
			local()
		})
	}, nil
}
