package store

import (
	"context"
	"sort"
	"sync"

	"fleetmaster/internal/models"
)

// MemoryDelegateStore is a mutex-guarded in-memory DelegateStore. It backs
// unit tests and single-node development runs where MongoDB is not available.
type MemoryDelegateStore struct {
	mu        sync.RWMutex
	delegates map[string]*models.Delegate
}

// NewMemoryDelegateStore creates an empty MemoryDelegateStore.
func NewMemoryDelegateStore() *MemoryDelegateStore {
	return &MemoryDelegateStore{
		delegates: make(map[string]*models.Delegate),
	}
}

func copyDelegate(d *models.Delegate) *models.Delegate {
	cp := *d
	return &cp
}

// Create stores a copy of the delegate record.
func (s *MemoryDelegateStore) Create(ctx context.Context, d *models.Delegate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegates[d.ID] = copyDelegate(d)
	return nil
}

// GetByID retrieves a delegate by id within an account.
func (s *MemoryDelegateStore) GetByID(ctx context.Context, accountID, id string) (*models.Delegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.delegates[id]
	if !ok || d.AccountID != accountID {
		return nil, nil
	}
	return copyDelegate(d), nil
}

// FindBySignature retrieves a delegate by its identity signature.
func (s *MemoryDelegateStore) FindBySignature(ctx context.Context, accountID, hostName, ip string) (*models.Delegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.delegates {
		if d.AccountID == accountID && d.HostName == hostName && d.IP == ip {
			return copyDelegate(d), nil
		}
	}
	return nil, nil
}

// ApplyStatusHeartBeat updates the stored record in place: the status is set
// when non-empty and the heart beat only advances, so concurrent writers can
// never roll a newer beat back to an older one.
func (s *MemoryDelegateStore) ApplyStatusHeartBeat(ctx context.Context, accountID, id string, status models.DelegateStatus, heartBeatMillis int64) (*models.Delegate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.delegates[id]
	if !ok || d.AccountID != accountID {
		return nil, nil
	}
	if status != "" {
		d.Status = status
	}
	if heartBeatMillis > d.LastHeartBeat {
		d.LastHeartBeat = heartBeatMillis
	}
	return copyDelegate(d), nil
}

// DisableStale flips the record to DISABLED only while its current heart beat
// is still older than the cutoff. A beat that lands after the caller's stale
// scan keeps the delegate enabled.
func (s *MemoryDelegateStore) DisableStale(ctx context.Context, accountID, id string, cutoffMillis int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.delegates[id]
	if !ok || d.AccountID != accountID {
		return false, nil
	}
	if d.Status != models.DelegateStatusEnabled || d.LastHeartBeat >= cutoffMillis {
		return false, nil
	}
	d.Status = models.DelegateStatusDisabled
	return true, nil
}

func delegateMatches(d *models.Delegate, filters map[string]string) bool {
	for name, value := range filters {
		switch name {
		case "accountId":
			if d.AccountID != value {
				return false
			}
		case "hostName":
			if d.HostName != value {
				return false
			}
		case "status":
			if string(d.Status) != value {
				return false
			}
		case "ip":
			if d.IP != value {
				return false
			}
		}
	}
	return true
}

// List returns a page of matching delegates with the total match count.
func (s *MemoryDelegateStore) List(ctx context.Context, req models.PageRequest) (*models.DelegatePage, error) {
	s.mu.RLock()
	matched := make([]*models.Delegate, 0)
	for _, d := range s.delegates {
		if delegateMatches(d, req.Filters) {
			matched = append(matched, copyDelegate(d))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := int64(len(matched))
	start := req.Start
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if req.PageSize > 0 && start+req.PageSize < end {
		end = start + req.PageSize
	}

	return &models.DelegatePage{
		PageResponse: models.PageResponse{Start: req.Start, PageSize: req.PageSize, Total: total},
		Delegates:    matched[start:end],
	}, nil
}

// Delete removes the record and reports whether anything was removed.
func (s *MemoryDelegateStore) Delete(ctx context.Context, accountID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.delegates[id]; ok && d.AccountID == accountID {
		delete(s.delegates, id)
		return true, nil
	}
	return false, nil
}

// ListHeartBeatBefore returns ENABLED delegates gone silent before the cutoff.
func (s *MemoryDelegateStore) ListHeartBeatBefore(ctx context.Context, cutoffMillis int64) ([]*models.Delegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []*models.Delegate
	for _, d := range s.delegates {
		if d.Status == models.DelegateStatusEnabled && d.LastHeartBeat < cutoffMillis {
			stale = append(stale, copyDelegate(d))
		}
	}
	return stale, nil
}
