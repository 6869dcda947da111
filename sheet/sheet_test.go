package sheet

import (
	"fmt"
	"sync"
	"testing"
)

// selectAndSet gives the client a selection on the cell and then edits it,
// failing the test if either step is refused.
func selectAndSet(t *testing.T, s *Sheet, cell, contents string, id int) {
	t.Helper()
	if !s.SelectCell(cell, fmt.Sprintf("user%d", id), id, "") {
		t.Fatalf("failed to select %s as client %d", cell, id)
	}
	if !s.SetCell(cell, contents, id) {
		t.Fatalf("failed to set %s to %q as client %d", cell, contents, id)
	}
}

func TestSelectThenEdit(t *testing.T) {
	s := New("S")

	if !s.SelectCell("A1", "alice", 1, "") {
		t.Fatal("select A1 refused")
	}
	if !s.SetCell("A1", "hello", 1) {
		t.Fatal("edit after select refused")
	}
	if got := s.GetCell("A1"); got != "hello" {
		t.Errorf("GetCell(A1) = %q, want %q", got, "hello")
	}
}

func TestEditWithoutSelection(t *testing.T) {
	s := New("S")

	if s.SetCell("A1", "hello", 1) {
		t.Fatal("edit without selection should be refused")
	}
	if got := s.GetCell("A1"); got != "" {
		t.Errorf("GetCell(A1) = %q, want empty", got)
	}
}

func TestEditRejectsInvalidName(t *testing.T) {
	s := New("S")
	if s.SetCell("1A", "x", 1) {
		t.Fatal("invalid cell name should be refused")
	}
}

func TestEditRejectsBadFormula(t *testing.T) {
	s := New("S")
	if !s.SelectCell("A1", "alice", 1, "") {
		t.Fatal("select refused")
	}
	if s.SetCell("A1", "=A1+", 1) {
		t.Fatal("ill-formed formula should be refused")
	}
	if got := s.GetCell("A1"); got != "" {
		t.Errorf("GetCell(A1) = %q after refused edit, want empty", got)
	}
}

func TestPlainContentsNeedNoFormulaCheck(t *testing.T) {
	s := New("S")
	selectAndSet(t, s, "A1", "hello + ) world", 1)
	if got := s.GetCell("A1"); got != "hello + ) world" {
		t.Errorf("GetCell(A1) = %q", got)
	}
}

func TestCycleRejected(t *testing.T) {
	s := New("S")

	selectAndSet(t, s, "A1", "=B1", 1)

	if !s.SelectCell("B1", "bob", 2, "") {
		t.Fatal("select B1 refused")
	}
	if s.SetCell("B1", "=A1", 2) {
		t.Fatal("edit closing a cycle should be refused")
	}
	if got := s.GetCell("B1"); got != "" {
		t.Errorf("GetCell(B1) = %q, want empty", got)
	}
}

func TestSelfReferenceIsACycle(t *testing.T) {
	s := New("S")
	if !s.SelectCell("A1", "alice", 1, "") {
		t.Fatal("select refused")
	}
	if s.SetCell("A1", "=A1+1", 1) {
		t.Fatal("self reference should be refused")
	}
}

func TestLongerCycleRejected(t *testing.T) {
	s := New("S")
	selectAndSet(t, s, "A1", "=B1", 1)
	selectAndSet(t, s, "B1", "=C1", 1)
	if !s.SelectCell("C1", "alice", 1, "B1") {
		t.Fatal("select C1 refused")
	}
	if s.SetCell("C1", "=A1", 1) {
		t.Fatal("three-cell cycle should be refused")
	}
}

func TestUndoAfterEdits(t *testing.T) {
	s := New("S")

	selectAndSet(t, s, "A1", "1", 1)
	if !s.SetCell("A1", "2", 1) {
		t.Fatal("second edit refused")
	}

	entry, ok := s.Undo()
	if !ok {
		t.Fatal("first undo refused")
	}
	if entry.Cell != "A1" || entry.Contents != "1" {
		t.Errorf("first undo = %+v, want A1/1", entry)
	}
	// undo reapplies the prior value, so reads agree with what clients see
	if got := s.GetCell("A1"); got != "1" {
		t.Errorf("GetCell(A1) after undo = %q, want %q", got, "1")
	}

	entry, ok = s.Undo()
	if !ok {
		t.Fatal("second undo refused")
	}
	if entry.Cell != "A1" || entry.Contents != "" {
		t.Errorf("second undo = %+v, want A1/empty", entry)
	}
	if got := s.GetCell("A1"); got != "" {
		t.Errorf("GetCell(A1) after second undo = %q, want empty", got)
	}

	if _, ok := s.Undo(); ok {
		t.Fatal("undo on empty stack should be refused")
	}
}

func TestUndoReconstructsInReverseOrder(t *testing.T) {
	s := New("S")

	values := []string{"1", "2", "3", "4"}
	if !s.SelectCell("A1", "alice", 1, "") {
		t.Fatal("select refused")
	}
	for _, v := range values {
		if !s.SetCell("A1", v, 1) {
			t.Fatalf("edit to %q refused", v)
		}
	}

	// n edits followed by n undos walks the prior values backwards
	want := []string{"3", "2", "1", ""}
	for i, w := range want {
		entry, ok := s.Undo()
		if !ok {
			t.Fatalf("undo %d refused", i)
		}
		if entry.Contents != w {
			t.Errorf("undo %d = %q, want %q", i, entry.Contents, w)
		}
	}
}

func TestRevert(t *testing.T) {
	s := New("S")

	selectAndSet(t, s, "A1", "1", 1)
	if !s.SetCell("A1", "2", 1) {
		t.Fatal("second edit refused")
	}

	// history is ["", "1", "2"]; revert restores "1" and stacks "2"
	contents, ok := s.RevertCell("A1")
	if !ok {
		t.Fatal("revert refused")
	}
	if contents != "1" {
		t.Errorf("revert returned %q, want %q", contents, "1")
	}
	if got := s.GetCell("A1"); got != "1" {
		t.Errorf("GetCell(A1) after revert = %q, want %q", got, "1")
	}

	entry, ok := s.Undo()
	if !ok {
		t.Fatal("undo after revert refused")
	}
	if entry.Cell != "A1" || entry.Contents != "2" {
		t.Errorf("undo after revert = %+v, want A1/2", entry)
	}
}

func TestRevertRefusals(t *testing.T) {
	s := New("S")

	if _, ok := s.RevertCell("1A"); ok {
		t.Fatal("revert of invalid name should be refused")
	}
	// unknown cell materializes a single-entry history, nothing to revert
	if _, ok := s.RevertCell("Z9"); ok {
		t.Fatal("revert with no prior value should be refused")
	}

	// reverting to a value that would close a cycle is refused
	s2 := New("S2")
	selectAndSet(t, s2, "A1", "=C1", 1)
	if !s2.SetCell("A1", "5", 1) {
		t.Fatal("edit refused")
	}
	// C1 now comes to depend on A1; reverting A1 to "=C1" would cycle
	if !s2.SelectCell("C1", "alice", 1, "A1") {
		t.Fatal("select C1 refused")
	}
	if !s2.SetCell("C1", "=A1", 1) {
		t.Fatal("edit C1 refused")
	}
	if _, ok := s2.RevertCell("A1"); ok {
		t.Fatal("revert that would close a cycle should be refused")
	}
}

func TestHistoriesNeverEmpty(t *testing.T) {
	s := New("S")
	s.GetCell("A1")
	selectAndSet(t, s, "B2", "x", 1)
	if _, ok := s.RevertCell("C3"); ok {
		t.Fatal("unexpected revert")
	}

	s.WithLock(func(st *State) {
		for cell, history := range st.cells {
			if len(history) < 1 {
				t.Errorf("cell %s has an empty history", cell)
			}
		}
	})
}

func TestSelectionOwnership(t *testing.T) {
	s := New("S")

	if !s.SelectCell("A1", "alice", 1, "") {
		t.Fatal("select refused")
	}
	if !s.SelectCell("A1", "bob", 2, "") {
		t.Fatal("concurrent selection of the same cell should be allowed")
	}

	// both selectors may edit
	if !s.SetCell("A1", "from alice", 1) {
		t.Fatal("alice edit refused")
	}
	if !s.SetCell("A1", "from bob", 2) {
		t.Fatal("bob edit refused")
	}

	// moving a selection drops the old claim
	if !s.SelectCell("B1", "alice", 1, "A1") {
		t.Fatal("move selection refused")
	}
	if s.SetCell("A1", "stale", 1) {
		t.Fatal("edit after moving selection away should be refused")
	}
	if !s.SetCell("A1", "still here", 2) {
		t.Fatal("bob edit refused after alice moved")
	}
}

func TestDeselect(t *testing.T) {
	s := New("S")
	if !s.SelectCell("A1", "alice", 1, "") {
		t.Fatal("select refused")
	}
	s.DeselectCell("A1", 1)
	if s.SetCell("A1", "x", 1) {
		t.Fatal("edit after deselect should be refused")
	}

	s.WithLock(func(st *State) {
		for _, sel := range st.selections["A1"] {
			if sel.ID == 1 {
				t.Error("selection for id 1 still present after deselect")
			}
		}
	})
}

func TestAllCellsAndSelects(t *testing.T) {
	s := New("S")
	selectAndSet(t, s, "B2", "two", 1)
	selectAndSet(t, s, "A1", "one", 2)

	s.WithLock(func(st *State) {
		entries := st.AllCells()
		if len(entries) != 2 {
			t.Fatalf("AllCells returned %d entries, want 2", len(entries))
		}
		// sorted by cell name
		if entries[0].Cell != "A1" || entries[0].Contents != "one" {
			t.Errorf("entries[0] = %+v", entries[0])
		}
		if entries[1].Cell != "B2" || entries[1].Contents != "two" {
			t.Errorf("entries[1] = %+v", entries[1])
		}

		selects := st.AllSelects()
		if len(selects["A1"]) != 1 || selects["A1"][0].ID != 2 {
			t.Errorf("selects[A1] = %v", selects["A1"])
		}
		if len(selects["B2"]) != 1 || selects["B2"][0].ID != 1 {
			t.Errorf("selects[B2] = %v", selects["B2"])
		}
	})
}

func TestPersistenceRoundTrip(t *testing.T) {
	s := New("S")
	selectAndSet(t, s, "A1", "1", 1)
	selectAndSet(t, s, "B2", "x", 1)
	if !s.SetCell("B2", "y", 1) {
		t.Fatal("edit refused")
	}

	// persistence keeps only current values; histories collapse to tails
	loaded := NewFromCells("S", s.Current())
	if got := loaded.GetCell("A1"); got != "1" {
		t.Errorf("loaded A1 = %q, want %q", got, "1")
	}
	if got := loaded.GetCell("B2"); got != "y" {
		t.Errorf("loaded B2 = %q, want %q", got, "y")
	}
	loaded.WithLock(func(st *State) {
		for cell, history := range st.cells {
			if len(history) != 1 {
				t.Errorf("loaded cell %s has history of length %d, want 1", cell, len(history))
			}
		}
	})

	// nothing to revert on a freshly loaded sheet
	if _, ok := loaded.RevertCell("B2"); ok {
		t.Fatal("revert on single-entry history should be refused")
	}
}

func TestConcurrentEditsSerialize(t *testing.T) {
	s := New("S")

	const workers = 8
	const edits = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		id := w + 1
		cell := fmt.Sprintf("A%d", id)
		if !s.SelectCell(cell, fmt.Sprintf("user%d", id), id, "") {
			t.Fatalf("select %s refused", cell)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < edits; i++ {
				s.SetCell(cell, fmt.Sprintf("%d", i), id)
				s.GetCell(cell)
			}
		}()
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		cell := fmt.Sprintf("A%d", w+1)
		if got := s.GetCell(cell); got != fmt.Sprintf("%d", edits-1) {
			t.Errorf("GetCell(%s) = %q, want %q", cell, got, fmt.Sprintf("%d", edits-1))
		}
	}

	s.WithLock(func(st *State) {
		if len(st.undo) != workers*edits {
			t.Errorf("undo stack has %d entries, want %d", len(st.undo), workers*edits)
		}
	})
}
