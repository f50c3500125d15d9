package describe

import (
	"context"
	"sync"
)

// flight is one in-progress remote describe covering one or more objects.
type flight struct {
	done chan struct{}
	err  error
}

// SharedCache is a process-wide, concurrency-safe read-through cache of
// object metadata. Each object name is fetched from the remote API at most
// once: a caller that needs an object another caller is already fetching
// waits for that flight instead of issuing its own request. Objects nobody
// is fetching yet are claimed together and fetched in one batched call.
//
// Failed flights are not cached; the next caller retries them.
type SharedCache struct {
	remote Describer

	mu       sync.Mutex
	metas    map[string]ObjectMeta
	inflight map[string]*flight
	calls    int
}

// NewSharedCache returns an empty shared cache in front of remote.
func NewSharedCache(remote Describer) *SharedCache {
	return &SharedCache{
		remote:   remote,
		metas:    map[string]ObjectMeta{},
		inflight: map[string]*flight{},
	}
}

var _ Describer = (*SharedCache)(nil)

// DescribeObjects implements Describer.
func (s *SharedCache) DescribeObjects(ctx context.Context, names []string) ([]ObjectMeta, error) {
	names = dedupe(names)

	s.mu.Lock()
	var (
		claimed []string
		waits   = map[*flight]struct{}{}
	)
	for _, n := range names {
		k := Key(n)
		if _, ok := s.metas[k]; ok {
			continue
		}
		if f, ok := s.inflight[k]; ok {
			waits[f] = struct{}{}
			continue
		}
		claimed = append(claimed, n)
	}
	var own *flight
	if len(claimed) > 0 {
		own = &flight{done: make(chan struct{})}
		for _, n := range claimed {
			s.inflight[Key(n)] = own
		}
		s.calls++
	}
	s.mu.Unlock()

	if own != nil {
		s.fetch(ctx, own, claimed)
		if own.err != nil {
			return nil, own.err
		}
	}
	for f := range waits {
		select {
		case <-f.done:
			if f.err != nil {
				return nil, f.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ObjectMeta, 0, len(names))
	for _, n := range names {
		m, ok := s.metas[Key(n)]
		if !ok {
			// The flight that carried this name succeeded without it.
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *SharedCache) fetch(ctx context.Context, f *flight, names []string) {
	metas, err := s.remote.DescribeObjects(ctx, names)
	if err == nil {
		_, err = toEntries(names, metas)
	}

	s.mu.Lock()
	if err == nil {
		for _, m := range metas {
			s.metas[Key(m.Name)] = m
		}
	}
	f.err = err
	for _, n := range names {
		delete(s.inflight, Key(n))
	}
	s.mu.Unlock()
	close(f.done)
}

// Calls reports how many remote describe calls were issued.
func (s *SharedCache) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Forget drops every cached object. In-flight fetches are unaffected.
func (s *SharedCache) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas = map[string]ObjectMeta{}
}
