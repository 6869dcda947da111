package sheet

import (
	"sort"
	"strings"
	"sync"

	"github.com/tybliddell/3505-spreadsheet/formula"
)

// Entry pairs a cell name with contents. It is the unit of the undo stack
// (the contents that were current before an operation) and of snapshots.
type Entry struct {
	Cell     string
	Contents string
}

// Selection records one client holding a cell. The id is the session id and
// serves as the identity key; the name is only carried for display.
type Selection struct {
	Name string
	ID   int
}

// State is the lock-guarded interior of a Sheet: the per-cell content
// histories, the undo stack, and the selection map. All methods require the
// owning Sheet's lock to be held; reach them through WithLock or the
// single-operation wrappers on Sheet.
type State struct {
	cells      map[string][]string
	undo       []Entry
	selections map[string][]Selection
}

// Sheet is one named spreadsheet. A single mutex serializes every mutation
// and every consistent read; the server holds it across an operation and the
// broadcast that announces it, so all clients of a sheet observe the same
// total order of changes.
type Sheet struct {
	name  string
	mu    sync.Mutex
	state State
}

func New(name string) *Sheet {
	return &Sheet{
		name: name,
		state: State{
			cells:      make(map[string][]string),
			selections: make(map[string][]Selection),
		},
	}
}

// NewFromCells builds a sheet whose cells each carry a single-element
// history. This is the load path: persisted sheets keep only current values.
func NewFromCells(name string, cells map[string]string) *Sheet {
	s := New(name)
	for cell, contents := range cells {
		s.state.cells[cell] = []string{contents}
	}
	return s
}

func (s *Sheet) Name() string { return s.name }

// WithLock runs fn with the sheet's lock held. The *State must not escape fn.
func (s *Sheet) WithLock(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// history returns the content history of cell, materializing a single-entry
// history holding "" on first reference to an unknown cell.
func (st *State) history(cell string) []string {
	if _, ok := st.cells[cell]; !ok {
		st.cells[cell] = []string{""}
	}
	return st.cells[cell]
}

// selectedBy reports whether the client id currently holds a selection on cell.
func (st *State) selectedBy(cell string, id int) bool {
	for _, sel := range st.selections[cell] {
		if sel.ID == id {
			return true
		}
	}
	return false
}

// SetCell records contents as the new current value of cell on behalf of the
// client id. It refuses (returning false with no state change) when the cell
// name is invalid, the client does not hold a selection on the cell, the
// contents are a formula that fails validation, or the contents would
// introduce a circular dependency. On success the previous current value is
// pushed onto the undo stack.
func (st *State) SetCell(cell, contents string, id int) bool {
	if !formula.ValidCellName(cell) {
		return false
	}
	if !st.selectedBy(cell, id) {
		return false
	}
	if strings.HasPrefix(contents, "=") && !formula.Valid(contents) {
		return false
	}
	if st.CircularDepend(cell, contents) {
		return false
	}

	history := st.history(cell)
	st.undo = append(st.undo, Entry{Cell: cell, Contents: history[len(history)-1]})
	st.cells[cell] = append(history, contents)
	return true
}

// GetCell returns the current value of cell, or "" for an invalid name.
// Reading an unknown cell materializes its empty history.
func (st *State) GetCell(cell string) string {
	if !formula.ValidCellName(cell) {
		return ""
	}
	history := st.history(cell)
	return history[len(history)-1]
}

// RevertCell discards the current value of cell, restoring the previous one,
// and returns the restored value. It refuses when the name is invalid, the
// cell has no earlier value to restore, or the restored value would introduce
// a circular dependency. The discarded value goes onto the undo stack, so a
// revert is itself undoable.
func (st *State) RevertCell(cell string) (string, bool) {
	if !formula.ValidCellName(cell) {
		return "", false
	}
	history := st.history(cell)
	if len(history) <= 1 {
		return "", false
	}
	if st.CircularDepend(cell, history[len(history)-2]) {
		return "", false
	}

	current := history[len(history)-1]
	st.undo = append(st.undo, Entry{Cell: cell, Contents: current})
	history = history[:len(history)-1]
	st.cells[cell] = history
	return history[len(history)-1], true
}

// Undo pops the most recent undo entry, reapplies its contents as the
// current value of its cell, and returns it. The second return is false when
// the stack is empty.
func (st *State) Undo() (Entry, bool) {
	if len(st.undo) == 0 {
		return Entry{}, false
	}
	entry := st.undo[len(st.undo)-1]
	st.undo = st.undo[:len(st.undo)-1]

	history := st.history(entry.Cell)
	st.cells[entry.Cell] = append(history, entry.Contents)
	return entry, true
}

// SelectCell adds a (name, id) claim on cell, first dropping the client's
// claim on previous when previous is non-empty. Multiple clients may hold the
// same cell at once. Only an invalid cell name refuses.
func (st *State) SelectCell(cell, name string, id int, previous string) bool {
	if !formula.ValidCellName(cell) {
		return false
	}
	if previous != "" {
		st.DeselectCell(previous, id)
	}
	st.selections[cell] = append(st.selections[cell], Selection{Name: name, ID: id})
	return true
}

// DeselectCell removes the client id's claim on cell, if any.
func (st *State) DeselectCell(cell string, id int) {
	if cell == "" {
		return
	}
	selections := st.selections[cell]
	for i, sel := range selections {
		if sel.ID == id {
			st.selections[cell] = append(selections[:i], selections[i+1:]...)
			return
		}
	}
}

// CircularDepend reports whether treating contents as the content of origin
// would close a dependency cycle. Breadth-first: the queue is seeded with the
// cells contents references, origin starts visited, and re-encountering any
// visited cell reports a cycle. Traversal reads each cell's current value;
// unknown cells materialize an empty history and contribute nothing.
func (st *State) CircularDepend(origin, contents string) bool {
	visited := map[string]bool{origin: true}
	queue := formula.Depends(contents)

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		if visited[curr] {
			return true
		}
		visited[curr] = true

		history := st.history(curr)
		queue = append(queue, formula.Depends(history[len(history)-1])...)
	}
	return false
}

// AllCells returns every cell paired with its current value, sorted by name.
func (st *State) AllCells() []Entry {
	entries := make([]Entry, 0, len(st.cells))
	for cell, history := range st.cells {
		entries = append(entries, Entry{Cell: cell, Contents: history[len(history)-1]})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Cell < entries[j].Cell })
	return entries
}

// AllSelects returns a copy of the full selection map.
func (st *State) AllSelects() map[string][]Selection {
	selects := make(map[string][]Selection, len(st.selections))
	for cell, selections := range st.selections {
		if len(selections) == 0 {
			continue
		}
		selects[cell] = append([]Selection(nil), selections...)
	}
	return selects
}

// Current returns cell name to current value, the persisted projection of
// the sheet.
func (st *State) Current() map[string]string {
	cells := make(map[string]string, len(st.cells))
	for cell, history := range st.cells {
		cells[cell] = history[len(history)-1]
	}
	return cells
}
