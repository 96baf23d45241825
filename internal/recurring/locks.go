package recurring

import "sync"

// TemplateLocks serializes work on one template inside this process. The engine
// and the corrector share one instance so a correction never interleaves with a
// generation of the same template.
type TemplateLocks struct {
	mu    sync.Mutex
	locks map[string]*templateLock
}

type templateLock struct {
	mu   sync.Mutex
	refs int
}

func NewTemplateLocks() *TemplateLocks {
	return &TemplateLocks{locks: make(map[string]*templateLock)}
}

// Lock blocks until the template is free and returns the matching unlock.
func (l *TemplateLocks) Lock(templateID string) func() {
	l.mu.Lock()
	tl, ok := l.locks[templateID]
	if !ok {
		tl = &templateLock{}
		l.locks[templateID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, templateID)
		}
		l.mu.Unlock()
	}
}

func (l *TemplateLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
