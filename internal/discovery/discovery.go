package discovery

import "context"

// Discoverer produces the candidate offer URLs of one source. A non-nil error may
// accompany a partial result.
type Discoverer interface {
	Discover(ctx context.Context) ([]string, error)
}

// Func adapts a function to Discoverer.
type Func func(ctx context.Context) ([]string, error)

// Discover implements Discoverer.
func (f Func) Discover(ctx context.Context) ([]string, error) {
	return f(ctx)
}

// urlSet keeps first-seen order while dropping duplicates.
type urlSet struct {
	seen map[string]struct{}
	list []string
}

func newURLSet() *urlSet {
	return &urlSet{seen: make(map[string]struct{})}
}

func (s *urlSet) add(u string) bool {
	if u == "" {
		return false
	}
	if _, ok := s.seen[u]; ok {
		return false
	}
	s.seen[u] = struct{}{}
	s.list = append(s.list, u)
	return true
}
