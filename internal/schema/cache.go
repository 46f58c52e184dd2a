package schema

import "sync"

// ColumnCache holds resolved column order per table. It is safe for
// concurrent use by multiple workers.
type ColumnCache struct {
	mu      sync.RWMutex
	columns map[string][]string
}

// NewColumnCache returns an empty cache.
func NewColumnCache() *ColumnCache {
	return &ColumnCache{columns: make(map[string][]string)}
}

// Get returns a copy of the cached columns for table.
func (c *ColumnCache) Get(table string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cols, ok := c.columns[table]
	if !ok {
		return nil, false
	}
	return append([]string(nil), cols...), true
}

// Put stores columns for table, replacing any previous entry.
func (c *ColumnCache) Put(table string, columns []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.columns[table] = append([]string(nil), columns...)
}

// Invalidate drops the entry for table.
func (c *ColumnCache) Invalidate(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.columns, table)
}

// Clear drops every entry.
func (c *ColumnCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.columns = make(map[string][]string)
}

// Len returns the number of cached tables.
func (c *ColumnCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.columns)
}
