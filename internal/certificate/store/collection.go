package store

import (
	"sync"
	"sync/atomic"
	"time"

	"certledger/internal/certificate/models"
	"certledger/pkg/platform/sentinel"
)

// View is an immutable snapshot of the collection. Callers must not modify
// the slices it holds.
type View struct {
	Certificates []models.Certificate
	Visible      []models.Certificate
	Filter       models.Filter
	SelectedID   string
	RefreshedAt  time.Time
	HasMore      bool
}

// Collection is the in-memory certificate set. Readers see whole snapshots;
// writers are serialized and publish a new snapshot atomically.
type Collection struct {
	mu   sync.Mutex
	view atomic.Pointer[View]
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	c := &Collection{}
	c.view.Store(&View{})
	return c
}

// Snapshot returns the current view.
func (c *Collection) Snapshot() *View {
	return c.view.Load()
}

// All returns the full certificate set in fetch order.
func (c *Collection) All() []models.Certificate {
	return clone(c.Snapshot().Certificates)
}

// Visible returns the filtered projection.
func (c *Collection) Visible() []models.Certificate {
	return clone(c.Snapshot().Visible)
}

// Get returns the certificate with id.
func (c *Collection) Get(id string) (models.Certificate, bool) {
	for _, cert := range c.Snapshot().Certificates {
		if cert.ID == id {
			return cert, true
		}
	}
	return models.Certificate{}, false
}

// Selected returns the focused certificate, if any.
func (c *Collection) Selected() (models.Certificate, bool) {
	v := c.Snapshot()
	if v.SelectedID == "" {
		return models.Certificate{}, false
	}
	return c.Get(v.SelectedID)
}

// Stats summarizes the full set.
func (c *Collection) Stats() models.Stats {
	return models.Summarize(c.Snapshot().Certificates)
}

// Replace swaps in a freshly fetched set. Duplicate ids keep their first
// occurrence, and certificates already known revoked stay revoked. The
// visible projection is recomputed with the current filter. The stored set
// is returned.
func (c *Collection) Replace(certs []models.Certificate) []models.Certificate {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.view.Load()
	known := make(map[string]*models.Certificate, len(prev.Certificates))
	for i := range prev.Certificates {
		known[prev.Certificates[i].ID] = &prev.Certificates[i]
	}

	seen := make(map[string]struct{}, len(certs))
	next := make([]models.Certificate, 0, len(certs))
	for _, cert := range certs {
		if _, dup := seen[cert.ID]; dup {
			continue
		}
		seen[cert.ID] = struct{}{}
		next = append(next, models.KeepRevocation(known[cert.ID], cert))
	}

	v := *prev
	v.Certificates = next
	v.Visible = v.Filter.Apply(next)
	c.view.Store(&v)
	return clone(next)
}

// ReplaceOne swaps the entry with cert.ID in place, leaving every other
// entry untouched. It reports sentinel.ErrNotFound when the id is absent.
func (c *Collection) ReplaceOne(cert models.Certificate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.view.Load()
	idx := -1
	for i := range prev.Certificates {
		if prev.Certificates[i].ID == cert.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return sentinel.ErrNotFound
	}

	next := clone(prev.Certificates)
	next[idx] = models.KeepRevocation(&prev.Certificates[idx], cert)

	v := *prev
	v.Certificates = next
	v.Visible = v.Filter.Apply(next)
	c.view.Store(&v)
	return nil
}

// SetFilter recomputes the visible projection.
func (c *Collection) SetFilter(f models.Filter) []models.Certificate {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := *c.view.Load()
	v.Filter = f
	v.Visible = f.Apply(v.Certificates)
	c.view.Store(&v)
	return clone(v.Visible)
}

// Select focuses the certificate with id. An empty id clears the selection.
func (c *Collection) Select(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := *c.view.Load()
	if id != "" && !contains(v.Certificates, id) {
		return sentinel.ErrNotFound
	}
	v.SelectedID = id
	c.view.Store(&v)
	return nil
}

// MarkRefreshed records the time of the last fetch and whether more data
// is available.
func (c *Collection) MarkRefreshed(at time.Time, hasMore bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := *c.view.Load()
	v.RefreshedAt = at
	v.HasMore = hasMore
	c.view.Store(&v)
}

func contains(certs []models.Certificate, id string) bool {
	for _, c := range certs {
		if c.ID == id {
			return true
		}
	}
	return false
}

func clone(certs []models.Certificate) []models.Certificate {
	if certs == nil {
		return nil
	}
	out := make([]models.Certificate, len(certs))
	copy(out, certs)
	return out
}
