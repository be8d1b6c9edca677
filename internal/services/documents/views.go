package documents

import (
	"os"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/TheMichaelB/docvault/internal/config"
	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/metrics"
)

// ViewCache tracks decrypted temp copies by document id. A copy is removed
// from disk when it expires, is evicted, or the cache is purged. One cache
// lives as long as the vault that owns it; the services built on each unlock
// share it.
type ViewCache struct {
	mu      sync.Mutex
	lru     *expirable.LRU[string, string]
	metrics *metrics.Metrics
	logger  *events.Logger
}

// NewViewCache creates a cache holding at most cfg.MaxOpenViews copies for
// cfg.ViewTTL each.
func NewViewCache(cfg config.DocumentsConfig, m *metrics.Metrics, logger *events.Logger) *ViewCache {
	vc := &ViewCache{metrics: m, logger: logger.WithField("component", "views")}
	vc.lru = expirable.NewLRU[string, string](cfg.MaxOpenViews, vc.evicted, cfg.ViewTTL)
	return vc
}

// evicted runs under the LRU's lock and must not call back into it.
func (vc *ViewCache) evicted(id, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		vc.logger.WithError(err).WithField("document_id", id).Warn("Failed to remove decrypted copy")
	}
	if vc.metrics != nil {
		vc.metrics.OpenViews.Dec()
	}
	vc.logger.WithField("document_id", id).Debug("Decrypted copy removed")
}

func (vc *ViewCache) add(id, path string) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	if old, ok := vc.lru.Peek(id); ok && old == path {
		vc.lru.Add(id, path)
		return
	}
	vc.lru.Remove(id)
	vc.lru.Add(id, path)
	if vc.metrics != nil {
		vc.metrics.OpenViews.Inc()
	}
}

func (vc *ViewCache) get(id string) (string, bool) {
	return vc.lru.Get(id)
}

func (vc *ViewCache) remove(id string) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.lru.Remove(id)
}

func (vc *ViewCache) len() int {
	return vc.lru.Len()
}

// Purge removes every decrypted copy.
func (vc *ViewCache) Purge() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.lru.Purge()
}
