package sheet

// Single-operation wrappers. Each takes the sheet's lock for exactly one
// State call; compound critical sections (mutate then broadcast, or snapshot
// then send) go through WithLock instead.

func (s *Sheet) SetCell(cell, contents string, id int) bool {
	var ok bool
	s.WithLock(func(st *State) { ok = st.SetCell(cell, contents, id) })
	return ok
}

func (s *Sheet) GetCell(cell string) string {
	var contents string
	s.WithLock(func(st *State) { contents = st.GetCell(cell) })
	return contents
}

func (s *Sheet) RevertCell(cell string) (string, bool) {
	var (
		contents string
		ok       bool
	)
	s.WithLock(func(st *State) { contents, ok = st.RevertCell(cell) })
	return contents, ok
}

func (s *Sheet) Undo() (Entry, bool) {
	var (
		entry Entry
		ok    bool
	)
	s.WithLock(func(st *State) { entry, ok = st.Undo() })
	return entry, ok
}

func (s *Sheet) SelectCell(cell, name string, id int, previous string) bool {
	var ok bool
	s.WithLock(func(st *State) { ok = st.SelectCell(cell, name, id, previous) })
	return ok
}

func (s *Sheet) DeselectCell(cell string, id int) {
	s.WithLock(func(st *State) { st.DeselectCell(cell, id) })
}

// Current snapshots cell name to current value under the lock.
func (s *Sheet) Current() map[string]string {
	var cells map[string]string
	s.WithLock(func(st *State) { cells = st.Current() })
	return cells
}
