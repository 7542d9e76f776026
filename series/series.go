// Package series implements generate_series, a virtual table producing an
// arithmetic sequence of integers on demand.
//
//	SELECT value FROM generate_series(1, 100, 5);
//	SELECT value FROM generate_series WHERE start = 10 AND value < 20;
//
// The module is registered under the name "series". A connection makes it
// queryable with
//
//	CREATE VIRTUAL TABLE temp.generate_series USING series;
//
// An optional module argument sets the row bound applied when stop is not
// constrained, e.g. USING series(5000).
package series

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite" // installs the vtab registration hook
	"modernc.org/sqlite/vtab"

	"github.com/xet7/httpvfs/domain/model"
)

// ModuleName is the name the module is registered under.
const ModuleName = "series"

// DefaultMaxRows bounds a scan with no stop constraint.
const DefaultMaxRows = 1_000_000

const schema = "CREATE TABLE x(value INTEGER, start HIDDEN, stop HIDDEN, step HIDDEN)"

// column indexes in schema order
const (
	colValue = iota
	colStart
	colStop
	colStep
)

// plan bits carried in idxNum; arguments reach Filter in bit order
const (
	planStart = 1 << iota
	planStop
	planStep
	planLower
	planUpper
)

var (
	defaultMaxRows atomic.Int64
	registerOnce   sync.Once
	registerErr    error
)

func init() {
	defaultMaxRows.Store(DefaultMaxRows)
}

// SetDefaultMaxRows changes the bound used by tables created without a
// module argument. Non-positive values restore DefaultMaxRows.
func SetDefaultMaxRows(n int64) {
	if n <= 0 {
		n = DefaultMaxRows
	}
	defaultMaxRows.Store(n)
}

// Register makes the module available to connections opened afterwards.
// It is safe to call more than once.
func Register() error {
	registerOnce.Do(func() {
		registerErr = vtab.RegisterModule(nil, ModuleName, &Module{})
	})
	return registerErr
}

// Module creates generate_series tables.
type Module struct{}

// Create implements vtab.Module
func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Connect(ctx, args)
}

// Connect implements vtab.Module
func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	maxRows := defaultMaxRows.Load()
	if len(args) > 3 {
		arg := strings.TrimSpace(args[3])
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: series row bound must be a positive integer, got %q", model.ErrProtocol, arg)
		}
		maxRows = n
	}
	if err := ctx.Declare(schema); err != nil {
		return nil, fmt.Errorf("%w: declare series schema: %w", model.ErrProtocol, err)
	}
	return &Table{maxRows: maxRows}, nil
}

// Table is one generate_series instance. It holds no per-scan state.
type Table struct {
	maxRows int64
}

// BestIndex implements vtab.Table. Equality on the hidden columns and range
// bounds on value are consumed; a plan without a usable stop or upper bound
// is reported as expensive.
func (t *Table) BestIndex(info *vtab.IndexInfo) error {
	slots := map[int]int{} // plan bit -> constraint index
	var unusable bool

	for i, c := range info.Constraints {
		bit := 0
		switch {
		case c.Column == colStart && c.Op == vtab.OpEQ:
			bit = planStart
		case c.Column == colStop && c.Op == vtab.OpEQ:
			bit = planStop
		case c.Column == colStep && c.Op == vtab.OpEQ:
			bit = planStep
		case c.Column == colValue && (c.Op == vtab.OpGE || c.Op == vtab.OpGT):
			bit = planLower
		case c.Column == colValue && (c.Op == vtab.OpLE || c.Op == vtab.OpLT):
			bit = planUpper
		default:
			continue
		}
		if !c.Usable {
			if bit&(planStart|planStop|planStep) != 0 {
				unusable = true
			}
			continue
		}
		if _, ok := slots[bit]; !ok {
			slots[bit] = i
		}
	}

	idxNum := 0
	var ops []string
	arg := 0
	for _, bit := range []int{planStart, planStop, planStep, planLower, planUpper} {
		i, ok := slots[bit]
		if !ok {
			continue
		}
		idxNum |= bit
		c := &info.Constraints[i]
		c.ArgIndex = arg
		arg++
		// hidden column values are fully handled, value bounds are rechecked by the engine
		c.Omit = bit&(planStart|planStop|planStep) != 0
		ops = append(ops, opName(c.Op))
	}
	info.IdxNum = int64(idxNum)
	info.IdxStr = strings.Join(ops, ",")

	switch {
	case unusable:
		info.EstimatedCost = math.MaxInt32
		info.EstimatedRows = math.MaxInt32
	case idxNum&(planStop|planUpper) != 0:
		info.EstimatedCost = 2
		info.EstimatedRows = 1000
	default:
		info.EstimatedCost = float64(t.maxRows)
		info.EstimatedRows = t.maxRows
	}

	if len(info.OrderBy) == 1 && info.OrderBy[0].Column == colValue && !info.OrderBy[0].Desc && idxNum&planStep == 0 {
		info.OrderByConsumed = true
	}
	return nil
}

func opName(op vtab.ConstraintOp) string {
	switch op {
	case vtab.OpGT:
		return ">"
	case vtab.OpGE:
		return ">="
	case vtab.OpLT:
		return "<"
	case vtab.OpLE:
		return "<="
	default:
		return "="
	}
}

// Open implements vtab.Table
func (t *Table) Open() (vtab.Cursor, error) {
	return &Cursor{maxRows: t.maxRows, eof: true}, nil
}

// Disconnect implements vtab.Table
func (t *Table) Disconnect() error { return nil }

// Destroy implements vtab.Table
func (t *Table) Destroy() error { return nil }

// Cursor walks one scan of the series. Cursors share no state.
type Cursor struct {
	maxRows int64

	start, stop, step int64
	pos               int64
	rowid             int64
	eof               bool
}

// Filter implements vtab.Cursor. vals hold the constraint arguments in plan
// bit order.
func (c *Cursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	ops := strings.Split(idxStr, ",")
	if idxStr == "" {
		ops = nil
	}
	if len(ops) != len(vals) || bits.OnesCount(uint(idxNum)) != len(vals) {
		return fmt.Errorf("%w: series filter got %d arguments for plan %d (%q)", model.ErrProtocol, len(vals), idxNum, idxStr)
	}

	c.start, c.step = 0, 1
	c.rowid = 1
	c.eof = false

	next := 0
	take := func() (int64, bool, error) {
		v := vals[next]
		op := ops[next]
		next++
		n, ok, err := toInt64(v, op)
		return n, ok, err
	}

	var (
		hasStop, hasLower, hasUpper bool
		lower, upper                int64
	)
	for _, bit := range []int{planStart, planStop, planStep, planLower, planUpper} {
		if idxNum&bit == 0 {
			continue
		}
		n, ok, err := take()
		if err != nil {
			return err
		}
		if !ok {
			// NULL argument or an empty value bound
			c.eof = true
			return nil
		}
		switch bit {
		case planStart:
			c.start = n
		case planStop:
			c.stop, hasStop = n, true
		case planStep:
			c.step = n
		case planLower:
			lower, hasLower = n, true
		case planUpper:
			upper, hasUpper = n, true
		}
	}

	if c.step == 0 {
		c.step = 1
	}
	if !hasStop {
		c.stop = bound(c.start, c.step, c.maxRows)
	}

	c.pos = c.start
	if c.step > 0 {
		if hasUpper && upper < c.stop {
			c.stop = upper
		}
		if hasLower && lower > c.pos {
			c.pos = c.advance(c.pos, lower)
		}
		c.eof = c.eof || c.pos > c.stop
	} else {
		if hasLower && lower > c.stop {
			c.stop = lower
		}
		if hasUpper && upper < c.pos {
			c.pos = c.advance(c.pos, upper)
		}
		c.eof = c.eof || c.pos < c.stop
	}
	return nil
}

// advance moves from pos to the first element of the series at or beyond target
func (c *Cursor) advance(pos, target int64) int64 {
	var dist, step uint64
	if c.step > 0 {
		dist, step = uint64(target)-uint64(pos), uint64(c.step)
	} else {
		dist, step = uint64(pos)-uint64(target), uint64(-c.step)
	}
	n := (dist + step - 1) / step
	hi, lo := bits.Mul64(n, step)
	if hi != 0 || lo > math.MaxInt64 {
		c.eof = true
		return pos
	}
	if c.step > 0 {
		if pos > math.MaxInt64-int64(lo) {
			c.eof = true
			return pos
		}
		c.rowid += int64(n)
		return pos + int64(lo)
	}
	if pos < math.MinInt64+int64(lo) {
		c.eof = true
		return pos
	}
	c.rowid += int64(n)
	return pos - int64(lo)
}

// bound returns the value of row maxRows of the series, saturating at the int64 range
func bound(start, step, maxRows int64) int64 {
	if maxRows < 1 {
		maxRows = 1
	}
	abs := uint64(step)
	if step < 0 {
		abs = uint64(-step)
	}
	hi, lo := bits.Mul64(uint64(maxRows-1), abs)
	if step > 0 {
		if hi != 0 || lo > math.MaxInt64 || start > math.MaxInt64-int64(lo) {
			return math.MaxInt64
		}
		return start + int64(lo)
	}
	if hi != 0 || lo > math.MaxInt64 || start < math.MinInt64+int64(lo) {
		return math.MinInt64
	}
	return start - int64(lo)
}

// toInt64 converts a constraint argument. ok is false for NULL and for a
// bound no integer satisfies.
func toInt64(v vtab.Value, op string) (n int64, ok bool, err error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case int64:
		switch op {
		case ">":
			if x == math.MaxInt64 {
				return 0, false, nil
			}
			return x + 1, true, nil
		case "<":
			if x == math.MinInt64 {
				return 0, false, nil
			}
			return x - 1, true, nil
		}
		return x, true, nil
	case float64:
		return floatBound(x, op)
	case bool:
		if x {
			return toInt64(int64(1), op)
		}
		return toInt64(int64(0), op)
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return toInt64(i, op)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return floatBound(f, op)
		}
	}
	return 0, false, fmt.Errorf("%w: series argument %v (%T) is not a number", model.ErrProtocol, v, v)
}

// floatBound rounds a real constraint to the integer bound it implies
func floatBound(f float64, op string) (int64, bool, error) {
	if math.IsNaN(f) {
		return 0, false, nil
	}
	var r float64
	switch op {
	case ">=":
		r = math.Ceil(f)
	case ">":
		r = math.Floor(f) + 1
	case "<=":
		r = math.Floor(f)
	case "<":
		r = math.Ceil(f) - 1
	default:
		r = math.Trunc(f)
	}
	switch {
	case r >= math.MaxInt64:
		return math.MaxInt64, true, nil
	case r <= math.MinInt64:
		return math.MinInt64, true, nil
	}
	return int64(r), true, nil
}

// Next implements vtab.Cursor
func (c *Cursor) Next() error {
	if c.eof {
		return nil
	}
	if c.step > 0 {
		if uint64(c.stop)-uint64(c.pos) < uint64(c.step) {
			c.eof = true
			return nil
		}
	} else if uint64(c.pos)-uint64(c.stop) < uint64(-c.step) {
		c.eof = true
		return nil
	}
	c.pos += c.step
	c.rowid++
	return nil
}

// Eof implements vtab.Cursor
func (c *Cursor) Eof() bool {
	return c.eof
}

// Column implements vtab.Cursor
func (c *Cursor) Column(col int) (vtab.Value, error) {
	switch col {
	case colValue:
		return c.pos, nil
	case colStart:
		return c.start, nil
	case colStop:
		return c.stop, nil
	case colStep:
		return c.step, nil
	default:
		return nil, fmt.Errorf("%w: series has no column %d", model.ErrProtocol, col)
	}
}

// Rowid implements vtab.Cursor
func (c *Cursor) Rowid() (int64, error) {
	return c.rowid, nil
}

// Close implements vtab.Cursor. It may be called more than once.
func (c *Cursor) Close() error {
	c.eof = true
	return nil
}
