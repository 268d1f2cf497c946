package domain

import (
	"fmt"
	"testing"
	"time"
)

func assertPathsConsistent(t *testing.T, h *Hierarchy) {
	t.Helper()
	for _, root := range h.Roots() {
		for _, n := range h.Subtree(root.ID) {
			want := n.Code
			if parent, ok := h.Parent(n.ID); ok {
				want = parent.PathHierarchy + "-" + n.Code
			}
			if n.PathHierarchy != want {
				t.Fatalf("node %s: path %q, want %q", n.ID, n.PathHierarchy, want)
			}
		}
	}
}

func TestInsertDerivesPathAndPosition(t *testing.T) {
	h := wingFixture()
	c1, _ := h.Node("c1")
	if c1.PathHierarchy != "A-1-c1" {
		t.Fatalf("unexpected path %s", c1.PathHierarchy)
	}
	c2, _ := h.Node("c2")
	if c2.Position != c1.Position+1 {
		t.Fatalf("expected c2 after c1, got positions %d and %d", c1.Position, c2.Position)
	}
	if _, err := h.Insert(node("x", "MDI", "X", LocationTypeCell, "missing")); !HasCode(err, CodeNotFound) {
		t.Fatalf("expected not found for missing parent, got %v", err)
	}
	if _, err := h.Insert(node("y", "LEI", "Y", LocationTypeCell, "A")); !HasReason(err, ReasonInvalidHierarchy) {
		t.Fatalf("expected cross prison insert to fail, got %v", err)
	}
}

func TestAddChildCascadesPaths(t *testing.T) {
	h := wingFixture()
	changed, err := h.AddChild("L2", "L1")
	if err != nil {
		t.Fatalf("add child: %v", err)
	}
	if len(changed) != 3 {
		t.Fatalf("expected landing and two cells to change, got %d", len(changed))
	}
	c2, _ := h.Node("c2")
	if c2.PathHierarchy != "A-2-1-c2" {
		t.Fatalf("unexpected path %s", c2.PathHierarchy)
	}
	children := h.Children("L2")
	if children[len(children)-1].ID != "L1" {
		t.Fatalf("expected moved node appended last, got %+v", children)
	}
	if len(h.Children("A")) != 1 {
		t.Fatalf("expected L1 removed from old parent")
	}
	assertPathsConsistent(t, h)
}

func TestAddChildRejectsCycles(t *testing.T) {
	h := wingFixture()
	if _, err := h.AddChild("c1", "A"); !HasReason(err, ReasonInvalidHierarchy) {
		t.Fatalf("expected cycle rejection, got %v", err)
	}
	if _, err := h.AddChild("A", "A"); !HasReason(err, ReasonInvalidHierarchy) {
		t.Fatalf("expected self parent rejection, got %v", err)
	}
	assertPathsConsistent(t, h)
}

func TestRenameCascades(t *testing.T) {
	h := wingFixture()
	if _, err := h.Rename("A", "B"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	c3, _ := h.Node("c3")
	if c3.PathHierarchy != "B-2-c3" {
		t.Fatalf("unexpected path %s", c3.PathHierarchy)
	}
	assertPathsConsistent(t, h)
}

func TestDeepTreeIsIterative(t *testing.T) {
	const depth = 3000
	h := NewHierarchy(nil)
	parent := ""
	for i := 0; i < depth; i++ {
		id := fmt.Sprintf("n%d", i)
		typ := LocationTypeLanding
		if i == depth-1 {
			typ = LocationTypeCell
		}
		loc := node(id, "MDI", "x", typ, parent)
		if typ == LocationTypeCell {
			loc.Capacity = &Capacity{MaxCapacity: 1, WorkingCapacity: 1, CertifiedNormalAccommodation: 1}
		}
		if _, err := h.Insert(loc); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
		parent = id
	}
	if _, err := h.Insert(node("top", "MDI", "T", LocationTypeWing, "")); err != nil {
		t.Fatalf("insert top: %v", err)
	}
	changed, err := h.AddChild("top", "n0")
	if err != nil {
		t.Fatalf("add child: %v", err)
	}
	if len(changed) != depth {
		t.Fatalf("expected %d repathed nodes, got %d", depth, len(changed))
	}
	root, ok := h.FindRoot(fmt.Sprintf("n%d", depth-1))
	if !ok || root.ID != "top" {
		t.Fatalf("expected root top, got %+v", root)
	}
	if got := h.WorkingCapacity("top"); got != 1 {
		t.Fatalf("expected rolled up capacity 1, got %d", got)
	}
	snap, ok := Freeze(h, "top", nil)
	if !ok || snap.Count() != depth+1 {
		t.Fatalf("expected snapshot of %d nodes", depth+1)
	}
}

func TestCapacityRollupSkipsDeactivated(t *testing.T) {
	h := wingFixture()
	if got := h.EffectiveCapacity("A"); got != (Capacity{MaxCapacity: 6, WorkingCapacity: 5, CertifiedNormalAccommodation: 6}) {
		t.Fatalf("unexpected wing capacity %+v", got)
	}

	c2, _ := h.Node("c2")
	c2.Status = StatusInactive
	h.Replace(c2)
	if got := h.WorkingCapacity("L1"); got != 2 {
		t.Fatalf("expected inactive cell excluded, got %d", got)
	}
	if got := h.MaxCapacity("c2"); got != 0 {
		t.Fatalf("expected inactive cell to read zero, got %d", got)
	}

	l2, _ := h.Node("L2")
	l2.Status = StatusArchived
	h.Replace(l2)
	if !h.IsDeactivated("c3") {
		t.Fatalf("expected c3 deactivated through ancestor")
	}
	if got := h.CertifiedNormalAccommodation("c3"); got != 0 {
		t.Fatalf("expected zero under archived ancestor, got %d", got)
	}
	if got := h.WorkingCapacity("A"); got != 2 {
		t.Fatalf("expected wing total 2, got %d", got)
	}
}

func TestLockedNodesKeepEffectiveStatus(t *testing.T) {
	h := wingFixture()
	c1, _ := h.Node("c1")
	c1.Status = StatusInactive
	c1.Lock("req-1")
	h.Replace(c1)
	if h.WorkingCapacity("c1") != 0 {
		t.Fatalf("expected locked inactive cell to stay deactivated")
	}
	c1.Unlock()
	if c1.Status != StatusInactive || c1.PendingApprovalRequestID != "" {
		t.Fatalf("unexpected unlocked state %+v", c1)
	}
}

func TestTraversals(t *testing.T) {
	h := wingFixture()
	leaves := h.FindLeaves("A")
	if len(leaves) != 3 {
		t.Fatalf("expected 3 leaves, got %d", len(leaves))
	}
	if got := len(h.Descendants("A")); got != 5 {
		t.Fatalf("expected 5 descendants, got %d", got)
	}
	ancestors := h.Ancestors("c3")
	if len(ancestors) != 2 || ancestors[0].ID != "L2" || ancestors[1].ID != "A" {
		t.Fatalf("unexpected ancestors %+v", ancestors)
	}
	if err := h.Remove("L1"); !HasReason(err, ReasonInvalidHierarchy) {
		t.Fatalf("expected remove of parent to fail, got %v", err)
	}
	if err := h.Remove("c1"); err != nil {
		t.Fatalf("remove leaf: %v", err)
	}
	if len(h.Children("L1")) != 1 {
		t.Fatalf("expected one child left")
	}
}

func TestSubtreeLifecycleHelpers(t *testing.T) {
	h := wingFixture()
	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	c3, _ := h.Node("c3")
	c3.Lock("req-9")
	h.Replace(c3)

	changed := h.DeactivateSubtree("A", Deactivation{Reason: DeactivatedDamaged}, at, DeactivationZeroWorkingCapacity)
	if len(changed) != 5 {
		t.Fatalf("expected locked c3 to be skipped, changed %d nodes", len(changed))
	}
	c1, _ := h.Node("c1")
	if c1.Status != StatusInactive || c1.Capacity.WorkingCapacity != 0 || c1.DeactivatedDate == nil {
		t.Fatalf("unexpected deactivated cell %+v", c1)
	}
	if again := h.DeactivateSubtree("A", Deactivation{Reason: DeactivatedOther}, at, DeactivationPreserveWorkingCapacity); len(again) != 0 {
		t.Fatalf("expected inactive nodes untouched, changed %d", len(again))
	}
	if archived := h.DeactivateSubtree("L1", Deactivation{Reason: DeactivatedOther, Permanent: true}, at, DeactivationPreserveWorkingCapacity); len(archived) != 3 {
		t.Fatalf("expected permanent deactivation to archive L1 subtree, changed %d", len(archived))
	}

	if back := h.ReactivateSubtree("A"); len(back) != 2 {
		t.Fatalf("expected A and L2 reactivated, got %d", len(back))
	}
	if l1, _ := h.Node("L1"); l1.Status != StatusArchived {
		t.Fatalf("archived landing must stay archived, got %s", l1.Status)
	}

	d := NewHierarchy([]Location{
		{Base: Base{ID: "w"}, PrisonID: "MDI", Code: "W", LocationType: LocationTypeWing, Status: StatusDraft},
		{Base: Base{ID: "x"}, PrisonID: "MDI", Code: "X", LocationType: LocationTypeCell, Status: StatusDraft, ParentID: strPtr("w")},
	})
	if got := d.ActivateDrafts("w"); len(got) != 2 {
		t.Fatalf("expected two activated drafts, got %d", len(got))
	}
	if x, _ := d.Node("x"); x.Status != StatusActive || !x.CertifiedCell {
		t.Fatalf("unexpected activated cell %+v", x)
	}
}
