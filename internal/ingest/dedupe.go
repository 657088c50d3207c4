package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/envelope/pkg/envelope"
)

var ErrDuplicate = errors.New("ingest: duplicate message")

// Deduplicator remembers message ids, read from one header, for a TTL.
type Deduplicator struct {
	header string
	seen   *cache.Cache
}

// NewDeduplicator keys messages by the value of header. A cleanup interval
// of zero disables background eviction; expired ids are still ignored.
func NewDeduplicator(header string, ttl, cleanup time.Duration) *Deduplicator {
	return &Deduplicator{
		header: header,
		seen:   cache.New(ttl, cleanup),
	}
}

// Check records the id of msg and returns ErrDuplicate when it was already
// recorded within the TTL. Messages without the header always pass.
func (d *Deduplicator) Check(msg *envelope.Message) error {
	v, ok := msg.Header(d.header)
	if !ok || v == nil {
		return nil
	}
	id := fmt.Sprint(v)
	if err := d.seen.Add(id, struct{}{}, cache.DefaultExpiration); err != nil {
		return fmt.Errorf("%w: %s=%s", ErrDuplicate, d.header, id)
	}
	return nil
}

// Len returns the number of remembered ids, expired ones included until
// the next cleanup.
func (d *Deduplicator) Len() int {
	return d.seen.ItemCount()
}

// Reset forgets all ids.
func (d *Deduplicator) Reset() {
	d.seen.Flush()
}
