package delay

import "sync"

// SiteLocker serializes work per site inside one process. Entries are
// reference counted and dropped once no goroutine holds or waits on them.
type SiteLocker struct {
	mu    sync.Mutex
	locks map[string]*siteLock
}

type siteLock struct {
	mu   sync.Mutex
	refs int
}

// NewSiteLocker returns an empty locker.
func NewSiteLocker() *SiteLocker {
	return &SiteLocker{locks: make(map[string]*siteLock)}
}

// Lock blocks until the caller holds siteID and returns the release func.
func (l *SiteLocker) Lock(siteID string) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[siteID]
	if !ok {
		sl = &siteLock{}
		l.locks[siteID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, siteID)
		}
		l.mu.Unlock()
	}
}

// Len reports how many sites currently have holders or waiters.
func (l *SiteLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
