package describe

import (
	"context"
	"log"
	"time"

	"sfextract/internal/metrics"
)

// Cache memoizes describe entries for one schema-resolution pass. It is not
// safe for concurrent use; each pass owns its own Cache.
type Cache struct {
	remote  Describer
	entries Set
	calls   int
	logger  *log.Logger
}

// NewCache returns an empty per-pass cache in front of remote. remote may be
// a *SharedCache.
func NewCache(remote Describer, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{remote: remote, entries: Set{}, logger: logger}
}

// Describe returns entries for every name. Names already resolved in this
// pass are served from memory; the rest are fetched in exactly one remote
// call. On failure nothing new is cached and a *RemoteDescribeError is
// returned.
func (c *Cache) Describe(ctx context.Context, names []string) (Set, error) {
	var missing []string
	for _, n := range dedupe(names) {
		if _, ok := c.entries.Get(n); !ok {
			missing = append(missing, n)
		}
	}

	if len(missing) > 0 {
		start := time.Now()
		metas, err := c.remote.DescribeObjects(ctx, missing)
		c.calls++
		metrics.RecordDescribeCall(len(missing))
		if err == nil {
			var fetched Set
			fetched, err = toEntries(missing, metas)
			if err == nil {
				for k, e := range fetched {
					c.entries[k] = e
				}
			}
		}
		metrics.RecordStep("describe", err, time.Since(start))
		if err != nil {
			return nil, &RemoteDescribeError{Objects: missing, Err: err}
		}
		c.logger.Printf("describe: fetched %d object(s) %v in %s", len(missing), missing, time.Since(start).Truncate(time.Millisecond))
	}

	out := make(Set, len(names))
	for _, n := range names {
		e, _ := c.entries.Get(n)
		out[Key(n)] = e
	}
	return out, nil
}

// Calls reports how many remote describe calls this cache issued.
func (c *Cache) Calls() int { return c.calls }
