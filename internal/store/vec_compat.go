package store

import (
	"database/sql/driver"
	"fmt"
	"math"
	"sync"

	sqlite "modernc.org/sqlite"
	"modernc.org/sqlite/vtab"
)

func init() {
	// Give the pure-Go driver the same vec0 surface the cgo build gets
	// from sqlite-vec, so detectVecExtension's probe succeeds on the
	// cgo-free CLI tooling path.
	_ = vtab.RegisterModule(nil, "vec0", &memoryVecModule{})
	_ = sqlite.RegisterDeterministicScalarFunction("vector_distance_cos", 2, cosineDistanceFunc)
}

// memoryVecModule backs vec0 virtual tables with in-memory rows. Rows are
// not persisted and nothing repopulates them after a restart.
type memoryVecModule struct{}

var (
	shimTablesMu sync.Mutex
	shimTables   = make(map[string]*memoryVecTable)
)

type memoryVecTable struct {
	mu     sync.RWMutex
	rows   map[int64]memoryVecRow
	order  []int64
	nextID int64
}

type memoryVecRow struct {
	embedding []byte
	content   string
	metadata  string
}

func (m *memoryVecModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Connect(ctx, args)
}

func (m *memoryVecModule) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec0: missing table name")
	}
	if err := ctx.Declare("CREATE TABLE x(embedding BLOB, content TEXT, metadata TEXT)"); err != nil {
		return nil, err
	}

	shimTablesMu.Lock()
	defer shimTablesMu.Unlock()
	name := args[2]
	tbl, ok := shimTables[name]
	if !ok {
		tbl = &memoryVecTable{rows: make(map[int64]memoryVecRow), nextID: 1}
		shimTables[name] = tbl
	}
	return tbl, nil
}

// BestIndex declares a full scan; the shim has no pushdown support.
func (t *memoryVecTable) BestIndex(info *vtab.IndexInfo) error {
	t.mu.RLock()
	info.EstimatedRows = int64(len(t.order))
	t.mu.RUnlock()
	return nil
}

func (t *memoryVecTable) Open() (vtab.Cursor, error) {
	t.mu.RLock()
	ids := make([]int64, len(t.order))
	copy(ids, t.order)
	t.mu.RUnlock()
	return &memoryVecCursor{tbl: t, ids: ids, pos: -1}, nil
}

func (t *memoryVecTable) Disconnect() error { return nil }
func (t *memoryVecTable) Destroy() error    { return nil }

func (t *memoryVecTable) Insert(cols []vtab.Value, rowid *int64) error {
	row, err := shimRowFromValues(cols)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	id := *rowid
	if id <= 0 {
		id = t.nextID
		t.nextID++
	} else if id >= t.nextID {
		t.nextID = id + 1
	}
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = row
	*rowid = id
	return nil
}

func (t *memoryVecTable) Update(oldRowid int64, cols []vtab.Value, newRowid *int64) error {
	row, err := shimRowFromValues(cols)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	id := oldRowid
	if newRowid != nil && *newRowid > 0 {
		id = *newRowid
	}
	if id != oldRowid {
		t.dropLocked(oldRowid)
	}
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	if id >= t.nextID {
		t.nextID = id + 1
	}
	t.rows[id] = row
	return nil
}

func (t *memoryVecTable) Delete(rowid int64) error {
	t.mu.Lock()
	t.dropLocked(rowid)
	t.mu.Unlock()
	return nil
}

func (t *memoryVecTable) dropLocked(rowid int64) {
	if _, ok := t.rows[rowid]; !ok {
		return
	}
	delete(t.rows, rowid)
	for i, id := range t.order {
		if id == rowid {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func shimRowFromValues(cols []vtab.Value) (memoryVecRow, error) {
	if len(cols) < 3 {
		return memoryVecRow{}, fmt.Errorf("vec0: expected 3 columns, got %d", len(cols))
	}
	emb, err := shimBlob(cols[0])
	if err != nil {
		return memoryVecRow{}, err
	}
	return memoryVecRow{embedding: emb, content: shimString(cols[1]), metadata: shimString(cols[2])}, nil
}

type memoryVecCursor struct {
	tbl *memoryVecTable
	ids []int64
	pos int
}

func (c *memoryVecCursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.pos = -1
	return c.Next()
}

func (c *memoryVecCursor) Next() error {
	c.pos++
	return nil
}

func (c *memoryVecCursor) Eof() bool {
	return c.pos >= len(c.ids)
}

func (c *memoryVecCursor) Column(col int) (vtab.Value, error) {
	row, err := c.current()
	if err != nil {
		return nil, err
	}
	switch col {
	case 0:
		return row.embedding, nil
	case 1:
		return row.content, nil
	case 2:
		return row.metadata, nil
	}
	return nil, fmt.Errorf("vec0: column %d out of range", col)
}

func (c *memoryVecCursor) Rowid() (int64, error) {
	if c.pos < 0 || c.pos >= len(c.ids) {
		return 0, fmt.Errorf("vec0: cursor exhausted")
	}
	return c.ids[c.pos], nil
}

func (c *memoryVecCursor) Close() error { return nil }

func (c *memoryVecCursor) current() (memoryVecRow, error) {
	if c.pos < 0 || c.pos >= len(c.ids) {
		return memoryVecRow{}, fmt.Errorf("vec0: cursor exhausted")
	}
	c.tbl.mu.RLock()
	row, ok := c.tbl.rows[c.ids[c.pos]]
	c.tbl.mu.RUnlock()
	if !ok {
		return memoryVecRow{}, fmt.Errorf("vec0: row %d deleted under cursor", c.ids[c.pos])
	}
	return row, nil
}

// cosineDistanceFunc is the SQL-level counterpart of the Go-side cosine
// scorer: 1 - cos(a, b) over two little-endian float32 BLOBs. Empty or
// zero-magnitude vectors report a distance of 1 (as if orthogonal) rather
// than erroring.
func cosineDistanceFunc(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vector_distance_cos expects 2 arguments")
	}
	a, err := shimVector(args[0])
	if err != nil {
		return nil, err
	}
	b, err := shimVector(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) == 0 || len(b) == 0 {
		return float64(1), nil
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vector_distance_cos: dimension mismatch %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return float64(1), nil
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), nil
}

func shimVector(v driver.Value) ([]float32, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(x)%4 != 0 {
			return nil, fmt.Errorf("vector_distance_cos: blob length %d not a multiple of 4", len(x))
		}
		return DecodeEmbedding(x), nil
	case string:
		return shimVector([]byte(x))
	}
	return nil, fmt.Errorf("vector_distance_cos: unsupported argument type %T", v)
}

func shimBlob(v vtab.Value) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		cp := make([]byte, len(x))
		copy(cp, x)
		return cp, nil
	case string:
		return []byte(x), nil
	}
	return nil, fmt.Errorf("vec0: unsupported embedding type %T", v)
}

func shimString(v vtab.Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprintf("%v", v)
}
