package service

import (
	"github.com/google/uuid"
)

type NodeType string

const (
	NodeResource NodeType = "resource"
	NodeProcess  NodeType = "process"
	NodeEvent    NodeType = "event"
	NodeExchange NodeType = "exchange"
)

// CycleWarning records that traversal re-entered a node it had already
// visited. The walk does not descend again — value behind the node is
// counted once — but unlike a bare visited set the re-entry is reported so
// callers can tell truncation from a clean walk.
type CycleWarning struct {
	Node NodeType  `json:"node"`
	ID   uuid.UUID `json:"id"`
}

// Traversal carries the visited sets and collected warnings through one
// roll-up or income-share walk. It is not safe for concurrent use; each walk
// gets its own.
type Traversal struct {
	resources map[uuid.UUID]struct{}
	processes map[uuid.UUID]struct{}
	events    map[uuid.UUID]struct{}
	exchanges map[uuid.UUID]struct{}

	Cycles []CycleWarning
}

func NewTraversal() *Traversal {
	return &Traversal{
		resources: make(map[uuid.UUID]struct{}),
		processes: make(map[uuid.UUID]struct{}),
		events:    make(map[uuid.UUID]struct{}),
		exchanges: make(map[uuid.UUID]struct{}),
	}
}

func (t *Traversal) enter(set map[uuid.UUID]struct{}, nt NodeType, id uuid.UUID) bool {
	if _, seen := set[id]; seen {
		t.Cycles = append(t.Cycles, CycleWarning{Node: nt, ID: id})
		return false
	}
	set[id] = struct{}{}
	return true
}

func (t *Traversal) enterResource(id uuid.UUID) bool {
	return t.enter(t.resources, NodeResource, id)
}

func (t *Traversal) enterProcess(id uuid.UUID) bool {
	return t.enter(t.processes, NodeProcess, id)
}

func (t *Traversal) enterEvent(id uuid.UUID) bool {
	return t.enter(t.events, NodeEvent, id)
}

func (t *Traversal) enterExchange(id uuid.UUID) bool {
	return t.enter(t.exchanges, NodeExchange, id)
}
