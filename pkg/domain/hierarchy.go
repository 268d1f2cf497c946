package domain

import (
	"cmp"
	"slices"
	"time"
)

// Hierarchy is an arena over the locations of one or more prisons. Nodes are
// held by id and children are resolved through an index, so traversals never
// follow owned pointers and every walk is iterative.
//
// A Hierarchy is a working copy: mutations change the arena only and return
// the nodes the caller must persist.
type Hierarchy struct {
	nodes    map[string]Location
	children map[string][]string
}

// NewHierarchy indexes the given locations. Nodes whose parent is missing
// from the input are treated as roots.
func NewHierarchy(locations []Location) *Hierarchy {
	h := &Hierarchy{
		nodes:    make(map[string]Location, len(locations)),
		children: make(map[string][]string),
	}
	for _, loc := range locations {
		h.nodes[loc.ID] = loc.Clone()
	}
	for _, loc := range locations {
		parent := parentIDOf(loc)
		if _, ok := h.nodes[parent]; !ok {
			parent = ""
		}
		h.children[parent] = append(h.children[parent], loc.ID)
	}
	for parent := range h.children {
		h.sortChildren(parent)
	}
	return h
}

func (h *Hierarchy) sortChildren(parentID string) {
	slices.SortFunc(h.children[parentID], func(a, b string) int {
		na, nb := h.nodes[a], h.nodes[b]
		if c := cmp.Compare(na.Position, nb.Position); c != 0 {
			return c
		}
		return cmp.Compare(na.Code, nb.Code)
	})
}

// Len returns the number of nodes.
func (h *Hierarchy) Len() int { return len(h.nodes) }

// Node returns a copy of the node with the given id.
func (h *Hierarchy) Node(id string) (Location, bool) {
	loc, ok := h.nodes[id]
	if !ok {
		return Location{}, false
	}
	return loc.Clone(), true
}

func (h *Hierarchy) parentID(id string) string {
	parent := parentIDOf(h.nodes[id])
	if _, ok := h.nodes[parent]; !ok {
		return ""
	}
	return parent
}

// Parent returns the parent of id, if any.
func (h *Hierarchy) Parent(id string) (Location, bool) {
	parent := h.parentID(id)
	if parent == "" {
		return Location{}, false
	}
	return h.Node(parent)
}

// Roots returns the parentless nodes in order.
func (h *Hierarchy) Roots() []Location {
	return h.collect(h.children[""])
}

// Children returns the ordered children of id.
func (h *Hierarchy) Children(id string) []Location {
	return h.collect(h.children[id])
}

func (h *Hierarchy) collect(ids []string) []Location {
	out := make([]Location, 0, len(ids))
	for _, id := range ids {
		out = append(out, h.nodes[id].Clone())
	}
	return out
}

// Ancestors returns the ancestors of id, nearest first.
func (h *Hierarchy) Ancestors(id string) []Location {
	var out []Location
	seen := map[string]bool{id: true}
	for parent := h.parentID(id); parent != "" && !seen[parent]; parent = h.parentID(parent) {
		seen[parent] = true
		out = append(out, h.nodes[parent].Clone())
	}
	return out
}

// FindRoot returns the top-level ancestor of id (id itself when parentless).
func (h *Hierarchy) FindRoot(id string) (Location, bool) {
	if _, ok := h.nodes[id]; !ok {
		return Location{}, false
	}
	ancestors := h.Ancestors(id)
	if len(ancestors) == 0 {
		return h.Node(id)
	}
	return ancestors[len(ancestors)-1], true
}

// subtreeIDs walks breadth first from id, including id.
func (h *Hierarchy) subtreeIDs(id string) []string {
	if _, ok := h.nodes[id]; !ok {
		return nil
	}
	out := []string{id}
	for i := 0; i < len(out); i++ {
		out = append(out, h.children[out[i]]...)
	}
	return out
}

// Subtree returns id and all of its descendants in breadth-first order.
func (h *Hierarchy) Subtree(id string) []Location {
	return h.collect(h.subtreeIDs(id))
}

// Descendants returns the descendants of id in breadth-first order.
func (h *Hierarchy) Descendants(id string) []Location {
	ids := h.subtreeIDs(id)
	if len(ids) == 0 {
		return nil
	}
	return h.collect(ids[1:])
}

// FindLeaves returns the childless nodes of id's subtree.
func (h *Hierarchy) FindLeaves(id string) []Location {
	var out []Location
	for _, nodeID := range h.subtreeIDs(id) {
		if len(h.children[nodeID]) == 0 {
			out = append(out, h.nodes[nodeID].Clone())
		}
	}
	return out
}

// IsDeactivated reports whether id or any of its ancestors is deactivated.
func (h *Hierarchy) IsDeactivated(id string) bool {
	loc, ok := h.nodes[id]
	if !ok {
		return false
	}
	if loc.IsDeactivated() {
		return true
	}
	for _, a := range h.Ancestors(id) {
		if a.IsDeactivated() {
			return true
		}
	}
	return false
}

// EffectiveCapacity is the capacity as read: stored on live cells, zero on
// deactivated ones, and summed over non-deactivated cells on other nodes.
func (h *Hierarchy) EffectiveCapacity(id string) Capacity {
	if _, ok := h.nodes[id]; !ok {
		return Capacity{}
	}
	type frame struct {
		id          string
		deactivated bool
	}
	var total Capacity
	stack := []frame{{id: id, deactivated: h.IsDeactivated(id)}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := h.nodes[f.id]
		deactivated := f.deactivated || node.IsDeactivated()
		if node.LocationType.IsCell() && !deactivated {
			total = total.Add(node.StoredCapacity())
		}
		for _, child := range h.children[f.id] {
			stack = append(stack, frame{id: child, deactivated: deactivated})
		}
	}
	return total
}

func (h *Hierarchy) WorkingCapacity(id string) int {
	return h.EffectiveCapacity(id).WorkingCapacity
}

func (h *Hierarchy) MaxCapacity(id string) int {
	return h.EffectiveCapacity(id).MaxCapacity
}

func (h *Hierarchy) CertifiedNormalAccommodation(id string) int {
	return h.EffectiveCapacity(id).CertifiedNormalAccommodation
}

// Insert adds a new node under its ParentID (or as a root), deriving its
// path and position. The stored copy is returned.
func (h *Hierarchy) Insert(loc Location) (Location, error) {
	if loc.ID == "" {
		return Location{}, Validation(ReasonInvalidRequest, "location id is required")
	}
	if _, exists := h.nodes[loc.ID]; exists {
		return Location{}, Conflict(ReasonLocationKeyConflict, "location %s already exists", loc.ID)
	}
	parentID := parentIDOf(loc)
	parentPath := ""
	if parentID != "" {
		parent, ok := h.nodes[parentID]
		if !ok {
			return Location{}, NotFound(ReasonLocationNotFound, "parent location %s not found", parentID)
		}
		if parent.PrisonID != loc.PrisonID {
			return Location{}, Validation(ReasonInvalidHierarchy, "parent %s belongs to prison %s", parentID, parent.PrisonID)
		}
		parentPath = parent.PathHierarchy
	}
	loc = loc.Clone()
	loc.PathHierarchy = BuildPath(parentPath, loc.Code)
	loc.Position = h.nextPosition(parentID)
	h.nodes[loc.ID] = loc
	h.children[parentID] = append(h.children[parentID], loc.ID)
	return loc.Clone(), nil
}

func (h *Hierarchy) nextPosition(parentID string) int {
	next := 0
	for _, id := range h.children[parentID] {
		if p := h.nodes[id].Position; p >= next {
			next = p + 1
		}
	}
	return next
}

// AddChild moves child under parent, appending it to the ordered children
// and recomputing the path of every node in the moved subtree.
func (h *Hierarchy) AddChild(parentID, childID string) ([]Location, error) {
	parent, ok := h.nodes[parentID]
	if !ok {
		return nil, NotFound(ReasonLocationNotFound, "parent location %s not found", parentID)
	}
	child, ok := h.nodes[childID]
	if !ok {
		return nil, NotFound(ReasonLocationNotFound, "location %s not found", childID)
	}
	if parent.PrisonID != child.PrisonID {
		return nil, Validation(ReasonInvalidHierarchy, "cannot move %s across prisons", childID)
	}
	if parentID == childID {
		return nil, Validation(ReasonInvalidHierarchy, "location %s cannot be its own parent", childID)
	}
	for _, a := range h.Ancestors(parentID) {
		if a.ID == childID {
			return nil, Validation(ReasonInvalidHierarchy, "moving %s under %s would create a cycle", childID, parentID)
		}
	}
	oldParent := h.parentID(childID)
	h.children[oldParent] = slices.DeleteFunc(h.children[oldParent], func(id string) bool { return id == childID })
	pid := parentID
	child.ParentID = &pid
	child.Position = h.nextPosition(parentID)
	h.nodes[childID] = child
	h.children[parentID] = append(h.children[parentID], childID)
	return h.repath(childID), nil
}

// Rename changes the code of id and cascades the path to its subtree.
func (h *Hierarchy) Rename(id, code string) ([]Location, error) {
	node, ok := h.nodes[id]
	if !ok {
		return nil, NotFound(ReasonLocationNotFound, "location %s not found", id)
	}
	if code == "" {
		return nil, Validation(ReasonInvalidRequest, "location code is required")
	}
	node.Code = code
	h.nodes[id] = node
	parent := h.parentID(id)
	h.sortChildren(parent)
	return h.repath(id), nil
}

// Remove drops a childless node from the arena.
func (h *Hierarchy) Remove(id string) error {
	if _, ok := h.nodes[id]; !ok {
		return NotFound(ReasonLocationNotFound, "location %s not found", id)
	}
	if len(h.children[id]) > 0 {
		return Validation(ReasonInvalidHierarchy, "location %s still has sub-locations", id)
	}
	parent := h.parentID(id)
	h.children[parent] = slices.DeleteFunc(h.children[parent], func(c string) bool { return c == id })
	delete(h.children, id)
	delete(h.nodes, id)
	return nil
}

// repath recomputes paths breadth first from rootID and returns every
// node it touched.
func (h *Hierarchy) repath(rootID string) []Location {
	var changed []Location
	for _, id := range h.subtreeIDs(rootID) {
		node := h.nodes[id]
		parentPath := ""
		if parent := h.parentID(id); parent != "" {
			parentPath = h.nodes[parent].PathHierarchy
		}
		node.PathHierarchy = BuildPath(parentPath, node.Code)
		h.nodes[id] = node
		changed = append(changed, node.Clone())
	}
	return changed
}

// Replace overwrites a node's stored attributes without touching structure.
// Callers use it to keep a working hierarchy in sync with persisted updates.
func (h *Hierarchy) Replace(loc Location) {
	if _, ok := h.nodes[loc.ID]; !ok {
		return
	}
	existing := h.nodes[loc.ID]
	loc = loc.Clone()
	loc.ParentID = existing.ParentID
	loc.PathHierarchy = existing.PathHierarchy
	loc.Position = existing.Position
	h.nodes[loc.ID] = loc
}

// ActivateDrafts moves every DRAFT node under id to ACTIVE and marks DRAFT
// cells certified. Locked nodes are skipped.
func (h *Hierarchy) ActivateDrafts(id string) []Location {
	var changed []Location
	for _, node := range h.Subtree(id) {
		if node.Status != StatusDraft {
			continue
		}
		node.Status = StatusActive
		if node.LocationType.IsCell() {
			node.CertifiedCell = true
		}
		h.Replace(node)
		changed = append(changed, node)
	}
	return changed
}

// DeactivateSubtree deactivates id and its descendants. DRAFT, locked and
// archived nodes are left alone, and already inactive nodes are only
// touched when the deactivation is permanent.
func (h *Hierarchy) DeactivateSubtree(id string, d Deactivation, at time.Time, policy DeactivationPolicy) []Location {
	var changed []Location
	for _, node := range h.Subtree(id) {
		switch {
		case node.Status == StatusDraft, node.IsLocked(), node.IsPermanentlyDeactivated():
			continue
		case node.IsDeactivated() && !d.Permanent:
			continue
		}
		node.Deactivate(d, at, policy)
		h.Replace(node)
		changed = append(changed, node)
	}
	return changed
}

// ReactivateSubtree returns the INACTIVE nodes under id to ACTIVE.
func (h *Hierarchy) ReactivateSubtree(id string) []Location {
	var changed []Location
	for _, node := range h.Subtree(id) {
		if node.Status != StatusInactive {
			continue
		}
		node.Reactivate()
		h.Replace(node)
		changed = append(changed, node)
	}
	return changed
}
