package domain

import "testing"

func TestFreezeExcludesAndSums(t *testing.T) {
	h := wingFixture()
	draft := cell("c4", "L2", 4, 4, 4)
	draft.Status = StatusDraft
	if _, err := h.Insert(draft); err != nil {
		t.Fatalf("insert: %v", err)
	}
	snap, ok := Freeze(h, "A", func(l Location) bool { return !l.IsDraft() })
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if snap.Count() != 6 {
		t.Fatalf("expected draft cell excluded, got %d nodes", snap.Count())
	}
	if snap.Capacity != (Capacity{MaxCapacity: 6, WorkingCapacity: 5, CertifiedNormalAccommodation: 6}) {
		t.Fatalf("unexpected totals %+v", snap.Capacity)
	}

	all, _ := Freeze(h, "A", nil)
	if all.Capacity.MaxCapacity != 10 {
		t.Fatalf("expected draft cell counted without filter, got %+v", all.Capacity)
	}
	if _, ok := Freeze(h, "missing", nil); ok {
		t.Fatalf("expected missing root to fail")
	}
}

func TestCertificateSameContentIgnoresCurrent(t *testing.T) {
	cert := CellCertificate{PrisonID: "MDI", TotalMaxCapacity: 3, Current: true, Locations: []LocationSnapshot{{ID: "A"}}}
	flipped := cert.Clone()
	flipped.Current = false
	if !cert.SameContent(flipped) {
		t.Fatalf("expected current flag to be ignored")
	}
	flipped.TotalMaxCapacity = 4
	if cert.SameContent(flipped) {
		t.Fatalf("expected totals change to be detected")
	}
}
