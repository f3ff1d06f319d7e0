package odoo

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// recordCacheSize bounds the per-connection record cache.
const recordCacheSize = 512

// fieldsCache memoizes fields_get responses per model. Entries live for the
// whole session: ERP schemas are treated as stable, so eviction happens only
// through Invalidate (reconnect).
type fieldsCache struct {
	mu      sync.RWMutex
	entries map[string]fieldsEntry
}

type fieldsEntry struct {
	fields   map[string]FieldInfo
	cachedAt time.Time
}

func newFieldsCache() *fieldsCache {
	return &fieldsCache{entries: make(map[string]fieldsEntry)}
}

func (c *fieldsCache) get(model string) (map[string]FieldInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[model]
	return e.fields, ok
}

func (c *fieldsCache) put(model string, fields map[string]FieldInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[model] = fieldsEntry{fields: fields, cachedAt: time.Now()}
}

// Invalidate drops every cached schema.
func (c *fieldsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]fieldsEntry)
}

// perfTracker owns the bounded record cache and records call timings. Its
// metrics are advisory: a tracker failure must never affect an operation.
type perfTracker struct {
	records *lru.Cache[string, Record] // thread-safe
	logger  *zap.Logger
}

func newPerfTracker(logger *zap.Logger) *perfTracker {
	// lru.New only fails for a non-positive size.
	records, _ := lru.New[string, Record](recordCacheSize)
	return &perfTracker{records: records, logger: logger}
}

func recordKey(model string, id int64) string {
	return fmt.Sprintf("%s:%d", model, id)
}

func (t *perfTracker) cachedRecord(model string, id int64) (Record, bool) {
	return t.records.Get(recordKey(model, id))
}

func (t *perfTracker) storeRecord(model string, id int64, rec Record) {
	t.records.Add(recordKey(model, id), rec)
}

// invalidateModel drops every cached record of the model. Used after create,
// where new rows can affect computed fields of existing ones.
func (t *perfTracker) invalidateModel(model string) {
	prefix := model + ":"
	for _, key := range t.records.Keys() {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			t.records.Remove(key)
		}
	}
}

// invalidateRecords drops the given ids of the model.
func (t *perfTracker) invalidateRecords(model string, ids []int64) {
	for _, id := range ids {
		t.records.Remove(recordKey(model, id))
	}
}

func (t *perfTracker) purge() {
	t.records.Purge()
}

// track brackets an RPC with timing. The returned func logs the elapsed time
// at debug level.
func (t *perfTracker) track(model, method string) func() {
	start := time.Now()
	return func() {
		t.logger.Debug("Odoo RPC timing",
			zap.String("model", model),
			zap.String("method", method),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("op", "track"),
		)
	}
}
