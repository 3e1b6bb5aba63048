package conn

// Table owns every accepted Connection, keyed by descriptor, per
// spec.md §3's invariant that no two Connections share an fd.
type Table struct {
	byFD map[int]*Connection
}

// NewTable creates an empty connection table.
func NewTable() *Table {
	return &Table{byFD: make(map[int]*Connection)}
}

// Put inserts or replaces the connection for its fd.
func (t *Table) Put(c *Connection) {
	t.byFD[c.FD] = c
}

// Get looks up a connection by descriptor.
func (t *Table) Get(fd int) (*Connection, bool) {
	c, ok := t.byFD[fd]
	return c, ok
}

// Remove forgets a connection, e.g. once it is closed.
func (t *Table) Remove(fd int) {
	delete(t.byFD, fd)
}

// Len reports the number of tracked connections.
func (t *Table) Len() int {
	return len(t.byFD)
}

// All returns every tracked connection. Callers must not mutate the
// table while iterating the result.
func (t *Table) All() []*Connection {
	out := make([]*Connection, 0, len(t.byFD))
	for _, c := range t.byFD {
		out = append(out, c)
	}
	return out
}
