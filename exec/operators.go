package exec

import (
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/grafeo-db/grafeo/catalog"
	"github.com/grafeo-db/grafeo/gerrors"
	"github.com/grafeo-db/grafeo/graph"
	"github.com/grafeo-db/grafeo/index"
	"github.com/grafeo-db/grafeo/optimizer"
	"github.com/grafeo-db/grafeo/plan"
	"github.com/grafeo-db/grafeo/storage"
	"github.com/grafeo-db/grafeo/txn"
)

// Reader is the minimal view of the store's MVCC-consistent read path an
// operator needs — satisfied by *txn.Manager. Kept as an interface so tests
// can substitute a fake without standing up a full Manager.
type Reader interface {
	ReadNode(id graph.NodeID, snap txn.Snapshot) (graph.NodeRecord, map[graph.PropertyKey]graph.Value, bool)
	ReadEdge(id graph.EdgeID, snap txn.Snapshot) (graph.EdgeRecord, map[graph.PropertyKey]graph.Value, bool)
	NodeCount() int
	EdgeCount() int
	Neighbors(id graph.NodeID, dir graph.Direction) []storage.AdjacencyEntry
}

// Row is one tuple flowing through the pull-based evaluation helpers
// (`Eval*`) that operators share; chunk.go's Chunk is the vectorized batch
// form these get assembled into.
type Row map[string]graph.Value

// Operator is a pull-based iterator over Chunks, the shape every physical
// operator implements. Morsel-driven parallelism (morsel.go) wraps a tree of
// Operators rather than replacing this interface, mirroring the teacher's
// `pkg/cypher/executor.go` Next()-style row iterator generalized to
// chunk-at-a-time (spec §4.5: "operators communicate via chunks, not
// tuples").
type Operator interface {
	// Next returns the next chunk of output, or nil when exhausted.
	Next() (*Chunk, error)
	// Close releases any pooled chunks or resources the operator is holding.
	Close()
	Columns() []string
}

// Context bundles everything an operator needs to read committed state:
// the MVCC reader, the pinned snapshot, and schema (for constraint-aware
// operators like Insert). One Context is shared by every operator in a
// single query's physical plan tree.
type Context struct {
	Reader   Reader
	Snapshot txn.Snapshot
	Schema   *catalog.SchemaManager
	Stats    *optimizer.Stats
}

// Build turns a PhysicalPlan into a runnable Operator tree.
func Build(pp *optimizer.PhysicalPlan, ctx *Context) (Operator, error) {
	if pp == nil {
		return nil, nil
	}
	children := make([]Operator, 0, len(pp.Children))
	for _, c := range pp.Children {
		op, err := Build(c, ctx)
		if err != nil {
			return nil, err
		}
		children = append(children, op)
	}

	switch node := pp.Logical.(type) {
	case *plan.Scan:
		return newScanOperator(node, ctx), nil
	case *plan.Filter:
		return newFilterOperator(node, children[0]), nil
	case *plan.Project:
		return newProjectOperator(node, children[0]), nil
	case *plan.Expand:
		return newExpandOperator(node, children[0], ctx), nil
	case *plan.Join:
		if pp.Physical == optimizer.PhysicalLeapfrogJoin {
			return newLeapfrogJoinOperator(node, children[0], children[1]), nil
		}
		return newHashJoinOperator(node, children[0], children[1]), nil
	case *plan.Aggregate:
		return newAggregateOperator(node, children[0]), nil
	case *plan.Sort:
		return newSortOperator(node, children[0]), nil
	case *plan.Distinct:
		return newDistinctOperator(node, children[0]), nil
	default:
		return nil, gerrors.New(gerrors.KindUnsupported, "exec: unsupported physical node "+pp.Logical.Kind().String())
	}
}

// --- Scan ---

type scanOperator struct {
	node *plan.Scan
	ctx  *Context
	next graph.NodeID
	done bool
}

func newScanOperator(node *plan.Scan, ctx *Context) *scanOperator {
	return &scanOperator{node: node, ctx: ctx}
}

func (s *scanOperator) Columns() []string { return []string{s.node.As} }

func (s *scanOperator) Next() (*Chunk, error) {
	if s.done {
		return nil, nil
	}
	chunk := GetChunk(s.Columns(), DefaultChunkCapacity)
	count := s.ctx.Reader.NodeCount()
	for ; int(s.next) < count; s.next++ {
		rec, props, ok := s.ctx.Reader.ReadNode(s.next, s.ctx.Snapshot)
		if !ok {
			continue
		}
		if s.node.Label != nil && !rec.HasLabel(*s.node.Label) {
			continue
		}
		val := graph.Map(withEntityID(props, uint64(s.next)))
		if s.node.Filter != nil && !EvalBool(s.node.Filter, Row{s.node.As: val}) {
			continue
		}
		chunk.AppendRow([]graph.Value{val})
		if chunk.Len() >= chunk.Capacity() {
			s.next++
			return chunk, nil
		}
	}
	s.done = true
	if chunk.Len() == 0 {
		PutChunk(chunk)
		return nil, nil
	}
	return chunk, nil
}

func (s *scanOperator) Close() {}

// --- Filter ---

type filterOperator struct {
	node  *plan.Filter
	input Operator
}

func newFilterOperator(node *plan.Filter, input Operator) *filterOperator {
	return &filterOperator{node: node, input: input}
}

func (f *filterOperator) Columns() []string { return f.input.Columns() }

func (f *filterOperator) Next() (*Chunk, error) {
	for {
		chunk, err := f.input.Next()
		if err != nil || chunk == nil {
			return chunk, err
		}
		chunk.Filter(func(row uint16) bool {
			return EvalBool(f.node.Predicate, rowAt(chunk, row))
		})
		if chunk.Len() > 0 {
			return chunk, nil
		}
		PutChunk(chunk)
	}
}

func (f *filterOperator) Close() { f.input.Close() }

// --- Project ---

type projectOperator struct {
	node  *plan.Project
	input Operator
}

func newProjectOperator(node *plan.Project, input Operator) *projectOperator {
	return &projectOperator{node: node, input: input}
}

func (p *projectOperator) Columns() []string {
	out := make([]string, len(p.node.Columns))
	for i, c := range p.node.Columns {
		out[i] = c.As
	}
	return out
}

func (p *projectOperator) Next() (*Chunk, error) {
	in, err := p.input.Next()
	if err != nil || in == nil {
		return in, err
	}
	out := GetChunk(p.Columns(), in.Capacity())
	for _, row := range in.Selection {
		values := make([]graph.Value, len(p.node.Columns))
		source := rowAt(in, row)
		for i, c := range p.node.Columns {
			values[i] = Eval(c.Expr, source)
		}
		out.AppendRow(values)
	}
	PutChunk(in)
	return out, nil
}

func (p *projectOperator) Close() { p.input.Close() }

// --- Expand ---

type expandOperator struct {
	node    *plan.Expand
	input   Operator
	ctx     *Context
	pending *Chunk
	cursor  int
}

func newExpandOperator(node *plan.Expand, input Operator, ctx *Context) *expandOperator {
	return &expandOperator{node: node, input: input, ctx: ctx}
}

func (e *expandOperator) Columns() []string {
	return append(append([]string{}, e.input.Columns()...), e.node.EdgeAs, e.node.DstAs)
}

func (e *expandOperator) Next() (*Chunk, error) {
	out := GetChunk(e.Columns(), DefaultChunkCapacity)
	for {
		if e.pending == nil {
			chunk, err := e.input.Next()
			if err != nil {
				return nil, err
			}
			if chunk == nil {
				if out.Len() == 0 {
					PutChunk(out)
					return nil, nil
				}
				return out, nil
			}
			e.pending = chunk
			e.cursor = 0
		}
		for e.cursor < e.pending.Len() {
			row := e.pending.Selection[e.cursor]
			srcVal := Eval(plan.NewVariable(nil, e.node.Src), rowAt(e.pending, row))
			srcProps := srcVal.AsMap()
			srcID, ok := srcProps["__id"]
			e.cursor++
			if !ok {
				continue
			}
			for _, nb := range e.ctx.Reader.Neighbors(graph.NodeID(srcID.AsInt64()), e.node.Direction) {
				edgeRec, edgeProps, ok := e.ctx.Reader.ReadEdge(nb.Edge, e.ctx.Snapshot)
				if !ok {
					continue
				}
				if e.node.EdgeType != nil && edgeRec.Type != *e.node.EdgeType {
					continue
				}
				dstRec, dstProps, ok := e.ctx.Reader.ReadNode(nb.Neighbor, e.ctx.Snapshot)
				if !ok {
					continue
				}
				_ = dstRec
				values := make([]graph.Value, 0, len(out.Columns))
				for _, col := range e.input.Columns() {
					values = append(values, Eval(plan.NewVariable(nil, col), rowAt(e.pending, row)))
				}
				values = append(values,
					graph.Map(withEntityID(edgeProps, uint64(nb.Edge))),
					graph.Map(withEntityID(dstProps, uint64(nb.Neighbor))),
				)
				out.AppendRow(values)
				if out.Len() >= out.Capacity() {
					return out, nil
				}
			}
		}
		PutChunk(e.pending)
		e.pending = nil
	}
}

func (e *expandOperator) Close() { e.input.Close() }

// --- HashJoin ---

type hashJoinOperator struct {
	node        *plan.Join
	left, right Operator
	built       bool
	buckets     map[uint64][]joinTuple
	rightDone   bool
	pendingR    *Chunk
	cursor      int
}

type joinTuple struct {
	cols   []string
	values []graph.Value
}

func newHashJoinOperator(node *plan.Join, left, right Operator) *hashJoinOperator {
	return &hashJoinOperator{node: node, left: left, right: right, buckets: make(map[uint64][]joinTuple)}
}

func (h *hashJoinOperator) Columns() []string {
	return append(append([]string{}, h.left.Columns()...), h.right.Columns()...)
}

// joinKeyExprs extracts the equality key expression pair the join predicate
// tests, returning nil, nil if the predicate isn't a simple equi-join — a
// hash join can't build a probe key from anything else.
func joinKeyExprs(pred plan.Expr) (plan.Expr, plan.Expr) {
	bin, ok := pred.(*plan.BinaryExpr)
	if !ok || bin.Op != plan.OpEq {
		return nil, nil
	}
	return bin.Left, bin.Right
}

func (h *hashJoinOperator) build() error {
	leftKey, _ := joinKeyExprs(h.node.Predicate)
	for {
		chunk, err := h.left.Next()
		if err != nil {
			return err
		}
		if chunk == nil {
			break
		}
		for _, row := range chunk.Selection {
			source := rowAt(chunk, row)
			key := hashValue(Eval(leftKey, source))
			tuple := joinTuple{cols: chunk.columnNames(), values: valuesAt(chunk, row)}
			h.buckets[key] = append(h.buckets[key], tuple)
		}
		PutChunk(chunk)
	}
	h.built = true
	return nil
}

func (h *hashJoinOperator) Next() (*Chunk, error) {
	if !h.built {
		if err := h.build(); err != nil {
			return nil, err
		}
	}
	_, rightKey := joinKeyExprs(h.node.Predicate)
	out := GetChunk(h.Columns(), DefaultChunkCapacity)
	for {
		if h.pendingR == nil {
			chunk, err := h.right.Next()
			if err != nil {
				return nil, err
			}
			if chunk == nil {
				if out.Len() == 0 {
					PutChunk(out)
					return nil, nil
				}
				return out, nil
			}
			h.pendingR = chunk
			h.cursor = 0
		}
		for h.cursor < h.pendingR.Len() {
			row := h.pendingR.Selection[h.cursor]
			source := rowAt(h.pendingR, row)
			key := hashValue(Eval(rightKey, source))
			h.cursor++
			for _, lt := range h.buckets[key] {
				values := append(append([]graph.Value{}, lt.values...), valuesAt(h.pendingR, row)...)
				out.AppendRow(values)
			}
			if out.Len() >= out.Capacity() {
				return out, nil
			}
		}
		PutChunk(h.pendingR)
		h.pendingR = nil
	}
}

func (h *hashJoinOperator) Close() { h.left.Close(); h.right.Close() }

func hashValue(v graph.Value) uint64 {
	h := xxhash.New()
	switch v.Kind {
	case graph.KindInt64:
		_, _ = h.Write(i64bytes(v.AsInt64()))
	case graph.KindString:
		_, _ = h.Write([]byte(v.AsString()))
	default:
		_, _ = h.Write([]byte(v.String()))
	}
	return h.Sum64()
}

func i64bytes(v int64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// --- LeapfrogJoin ---

// leapfrogJoinOperator drains both legs into buckets keyed by the hash of
// the join key, then intersects the two sorted distinct key sets, for the
// "triangle pattern" case the optimizer routes here (spec §4.4 step 5,
// §4.5; built on index.Intersect's generic sorted-iterator merge). Both
// inputs are fully materialized before the intersection.
type leapfrogJoinOperator struct {
	node        *plan.Join
	left, right Operator
	done        bool
}

func newLeapfrogJoinOperator(node *plan.Join, left, right Operator) *leapfrogJoinOperator {
	return &leapfrogJoinOperator{node: node, left: left, right: right}
}

func (l *leapfrogJoinOperator) Columns() []string {
	return append(append([]string{}, l.left.Columns()...), l.right.Columns()...)
}

func (l *leapfrogJoinOperator) Next() (*Chunk, error) {
	if l.done {
		return nil, nil
	}
	l.done = true
	leftKey, rightKey := joinKeyExprs(l.node.Predicate)

	leftIDs, leftRows := collectKeyed(l.left, leftKey)
	rightIDs, rightRows := collectKeyed(l.right, rightKey)
	shared := index.Intersect([]index.Iterator{
		index.NewSortedArrayIterator(leftIDs),
		index.NewSortedArrayIterator(rightIDs),
	})

	out := GetChunk(l.Columns(), len(shared))
	for _, k := range shared {
		for _, lr := range leftRows[k] {
			for _, rr := range rightRows[k] {
				out.AppendRow(append(append([]graph.Value{}, lr...), rr...))
			}
		}
	}
	if out.Len() == 0 {
		PutChunk(out)
		return nil, nil
	}
	return out, nil
}

func (l *leapfrogJoinOperator) Close() { l.left.Close(); l.right.Close() }

// collectKeyed drains op fully, bucketing every row's output values by the
// uint64 hash of keyExpr's evaluation, and returns the sorted distinct key
// set alongside the bucket map leapfrog join intersects over.
func collectKeyed(op Operator, keyExpr plan.Expr) ([]uint64, map[uint64][][]graph.Value) {
	rows := make(map[uint64][][]graph.Value)
	for {
		chunk, err := op.Next()
		if err != nil || chunk == nil {
			break
		}
		for _, row := range chunk.Selection {
			source := rowAt(chunk, row)
			key := hashValue(Eval(keyExpr, source))
			rows[key] = append(rows[key], valuesAt(chunk, row))
		}
		PutChunk(chunk)
	}
	keys := make([]uint64, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, rows
}

// --- Aggregate ---

type aggregateOperator struct {
	node  *plan.Aggregate
	input Operator
	done  bool
}

func newAggregateOperator(node *plan.Aggregate, input Operator) *aggregateOperator {
	return &aggregateOperator{node: node, input: input}
}

func (a *aggregateOperator) Columns() []string {
	out := make([]string, 0, len(a.node.GroupKeys)+len(a.node.Aggregators))
	for i := range a.node.GroupKeys {
		out = append(out, "group"+itoa(i))
	}
	for _, agg := range a.node.Aggregators {
		out = append(out, agg.As)
	}
	return out
}

type aggState struct {
	count  int64
	sum    float64
	min    *graph.Value
	max    *graph.Value
	seen   map[string]struct{}
	values []graph.Value
}

func (a *aggregateOperator) Next() (*Chunk, error) {
	if a.done {
		return nil, nil
	}
	a.done = true

	groups := make(map[string][]graph.Value)
	states := make(map[string][]*aggState)
	order := []string{}

	for {
		chunk, err := a.input.Next()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		for _, row := range chunk.Selection {
			source := rowAt(chunk, row)
			keyVals := make([]graph.Value, len(a.node.GroupKeys))
			for i, k := range a.node.GroupKeys {
				keyVals[i] = Eval(k, source)
			}
			gkey := groupKeyString(keyVals)
			if _, ok := groups[gkey]; !ok {
				groups[gkey] = keyVals
				order = append(order, gkey)
				states[gkey] = make([]*aggState, len(a.node.Aggregators))
				for i := range states[gkey] {
					states[gkey][i] = &aggState{seen: make(map[string]struct{})}
				}
			}
			for i, agg := range a.node.Aggregators {
				applyAggregator(states[gkey][i], agg, source)
			}
		}
		PutChunk(chunk)
	}

	out := GetChunk(a.Columns(), len(order))
	for _, gkey := range order {
		values := append([]graph.Value{}, groups[gkey]...)
		for i, agg := range a.node.Aggregators {
			values = append(values, finishAggregator(states[gkey][i], agg.Kind))
		}
		out.AppendRow(values)
	}
	return out, nil
}

func (a *aggregateOperator) Close() { a.input.Close() }

func applyAggregator(st *aggState, agg plan.Aggregator, source Row) {
	var v graph.Value
	if agg.Input != nil {
		v = Eval(agg.Input, source)
	}
	switch agg.Kind {
	case plan.AggCount:
		st.count++
	case plan.AggCountDistinct:
		st.seen[v.String()] = struct{}{}
	case plan.AggSum, plan.AggAvg:
		if v.Kind == graph.KindInt64 {
			st.sum += float64(v.AsInt64())
		} else if v.Kind == graph.KindFloat64 {
			st.sum += v.AsFloat64()
		}
		st.count++
	case plan.AggMin:
		if st.min == nil || compareValues(v, *st.min) < 0 {
			vv := v
			st.min = &vv
		}
	case plan.AggMax:
		if st.max == nil || compareValues(v, *st.max) > 0 {
			vv := v
			st.max = &vv
		}
	case plan.AggCollect:
		st.values = append(st.values, v)
	}
}

func finishAggregator(st *aggState, kind plan.AggregatorKind) graph.Value {
	switch kind {
	case plan.AggCount:
		return graph.Int64(st.count)
	case plan.AggCountDistinct:
		return graph.Int64(int64(len(st.seen)))
	case plan.AggSum:
		return graph.Float64(st.sum)
	case plan.AggAvg:
		if st.count == 0 {
			return graph.Null
		}
		return graph.Float64(st.sum / float64(st.count))
	case plan.AggMin:
		if st.min == nil {
			return graph.Null
		}
		return *st.min
	case plan.AggMax:
		if st.max == nil {
			return graph.Null
		}
		return *st.max
	case plan.AggCollect:
		return graph.List(st.values)
	default:
		return graph.Null
	}
}

// --- Sort ---

type sortOperator struct {
	node  *plan.Sort
	input Operator
	done  bool
}

func newSortOperator(node *plan.Sort, input Operator) *sortOperator {
	return &sortOperator{node: node, input: input}
}

func (s *sortOperator) Columns() []string { return s.input.Columns() }

func (s *sortOperator) Next() (*Chunk, error) {
	if s.done {
		return nil, nil
	}
	s.done = true

	var allCols []string
	var allRows [][]graph.Value
	for {
		chunk, err := s.input.Next()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		if allCols == nil {
			allCols = chunk.columnNames()
		}
		for _, row := range chunk.Selection {
			allRows = append(allRows, valuesAt(chunk, row))
		}
		PutChunk(chunk)
	}
	if allCols == nil {
		allCols = s.Columns()
	}

	sort.SliceStable(allRows, func(i, j int) bool {
		ri := rowFrom(allCols, allRows[i])
		rj := rowFrom(allCols, allRows[j])
		for _, k := range s.node.Keys {
			vi := Eval(k.Expr, ri)
			vj := Eval(k.Expr, rj)
			c := compareValues(vi, vj)
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if s.node.Limit != nil && int64(len(allRows)) > *s.node.Limit {
		allRows = allRows[:*s.node.Limit]
	}

	out := GetChunk(allCols, len(allRows))
	for _, r := range allRows {
		out.AppendRow(r)
	}
	if out.Len() == 0 {
		PutChunk(out)
		return nil, nil
	}
	return out, nil
}

func (s *sortOperator) Close() { s.input.Close() }

// --- Distinct ---

type distinctOperator struct {
	node  *plan.Distinct
	input Operator
	seen  map[string]struct{}
}

func newDistinctOperator(node *plan.Distinct, input Operator) *distinctOperator {
	return &distinctOperator{node: node, input: input, seen: make(map[string]struct{})}
}

func (d *distinctOperator) Columns() []string { return d.input.Columns() }

func (d *distinctOperator) Next() (*Chunk, error) {
	for {
		chunk, err := d.input.Next()
		if err != nil || chunk == nil {
			return chunk, err
		}
		chunk.Filter(func(row uint16) bool {
			key := groupKeyString(valuesAt(chunk, row))
			if _, ok := d.seen[key]; ok {
				return false
			}
			d.seen[key] = struct{}{}
			return true
		})
		if chunk.Len() > 0 {
			return chunk, nil
		}
		PutChunk(chunk)
	}
}

func (d *distinctOperator) Close() { d.input.Close() }

// --- shared helpers ---

// entityIDKey is the reserved property-map key carrying a bound node or
// edge's identifier through a row, since graph.Value's tagged union has no
// dedicated identity slot. Never surfaced to query results directly;
// PropertyRef evaluation on a real property named "__id" is impossible
// since the catalog interns property names and "__id" is never registered
// as one.
const entityIDKey = "__id"

func withEntityID(props map[graph.PropertyKey]graph.Value, id uint64) map[string]graph.Value {
	out := make(map[string]graph.Value, len(props)+1)
	for k, v := range props {
		out[propertyMapKey(k)] = v
	}
	out[entityIDKey] = graph.Int64(int64(id))
	return out
}

// propertyMapKey encodes a PropertyKey as the string key a bound entity's
// internal graph.Value map stores it under. This is an internal wire format
// between Eval's PropertyRef handling and Scan/Expand's row construction,
// never a real property name — name resolution for user-facing results
// happens in session's row formatting, not here.
func propertyMapKey(k graph.PropertyKey) string { return "p" + itoa(int(k)) }

func rowAt(c *Chunk, row uint16) Row {
	r := make(Row, len(c.Columns))
	for _, col := range c.Columns {
		r[col.Name] = col.Values[row]
	}
	return r
}

func rowFrom(names []string, values []graph.Value) Row {
	r := make(Row, len(names))
	for i, n := range names {
		r[n] = values[i]
	}
	return r
}

func valuesAt(c *Chunk, row uint16) []graph.Value {
	out := make([]graph.Value, len(c.Columns))
	for i, col := range c.Columns {
		out[i] = col.Values[row]
	}
	return out
}

func (c *Chunk) columnNames() []string {
	out := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		out[i] = col.Name
	}
	return out
}

func groupKeyString(values []graph.Value) string {
	s := ""
	for i, v := range values {
		if i > 0 {
			s += "\x1f"
		}
		s += v.String()
	}
	return s
}

func compareValues(a, b graph.Value) int {
	if a.Kind != b.Kind {
		return 0
	}
	switch a.Kind {
	case graph.KindInt64:
		switch {
		case a.AsInt64() < b.AsInt64():
			return -1
		case a.AsInt64() > b.AsInt64():
			return 1
		default:
			return 0
		}
	case graph.KindFloat64:
		switch {
		case a.AsFloat64() < b.AsFloat64():
			return -1
		case a.AsFloat64() > b.AsFloat64():
			return 1
		default:
			return 0
		}
	case graph.KindString:
		switch {
		case a.AsString() < b.AsString():
			return -1
		case a.AsString() > b.AsString():
			return 1
		default:
			return 0
		}
	default:
		if a.Equal(b) {
			return 0
		}
		return 0
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
