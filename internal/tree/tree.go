// Package tree implements the tree-of-thoughts node store (C10): an
// in-memory map from node id to node record, the single authority for
// parent/child relations within a session.
package tree

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sovereign-research-orchestrator/internal/logging"
)

// Status is a node's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExploring Status = "exploring"
	StatusEvaluated Status = "evaluated"
	StatusPruned    Status = "pruned"
)

// Node is one tree-of-thoughts node.
type Node struct {
	ID        string
	ParentID  string
	Depth     int
	Question  string
	Answer    string
	Confidence float64
	Status    Status
	PruneReason string

	Visits int
	Value  float64
	LastUCBScore float64

	Entities       []string
	TripletIDs     []string
	AxiomScores    map[string]float64
	AxiomIncompatible bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrNodeLimitExceeded is returned by AddChild when the tree is at capacity.
type ErrNodeLimitExceeded struct {
	Limit int
}

func (e *ErrNodeLimitExceeded) Error() string {
	return fmt.Sprintf("tree node limit of %d exceeded", e.Limit)
}

// ErrNotFound is returned when a node id does not exist.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("node not found: %s", e.ID)
}

// Tree is the in-memory node store for one session.
type Tree struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	children map[string][]string
	rootID   string
	maxNodes int
}

// New creates an empty Tree. maxNodes <= 0 means unbounded.
func New(maxNodes int) *Tree {
	return &Tree{nodes: make(map[string]*Node), children: make(map[string][]string), maxNodes: maxNodes}
}

// CreateRoot creates the tree's root node from an initial question.
func (t *Tree) CreateRoot(question string) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := &Node{
		ID: uuid.NewString(), Depth: 0, Question: question, Status: StatusPending,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	t.nodes[n.ID] = n
	t.rootID = n.ID
	return n
}

// RootID returns the root node's id, or "" if none exists yet.
func (t *Tree) RootID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rootID
}

// AddChild creates a new node under parentID.
func (t *Tree) AddChild(parentID, question string) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, &ErrNotFound{ID: parentID}
	}

	if t.maxNodes > 0 && len(t.nodes) >= t.maxNodes {
		return nil, &ErrNodeLimitExceeded{Limit: t.maxNodes}
	}

	n := &Node{
		ID: uuid.NewString(), ParentID: parentID, Depth: parent.Depth + 1, Question: question,
		Status: StatusPending, CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	t.nodes[n.ID] = n
	t.children[parentID] = append(t.children[parentID], n.ID)
	return n, nil
}

// GetNode returns the node for id.
func (t *Tree) GetNode(id string) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	return n, nil
}

// ChildrenOf returns the direct children of id.
func (t *Tree) ChildrenOf(id string) ([]*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.nodes[id]; !ok {
		return nil, &ErrNotFound{ID: id}
	}
	ids := t.children[id]
	out := make([]*Node, 0, len(ids))
	for _, cid := range ids {
		out = append(out, t.nodes[cid])
	}
	return out, nil
}

// PathToRoot returns the path from id up to the root, id first.
func (t *Tree) PathToRoot(id string) ([]*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var path []*Node
	cur, ok := t.nodes[id]
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	for {
		path = append(path, cur)
		if cur.ParentID == "" {
			break
		}
		cur, ok = t.nodes[cur.ParentID]
		if !ok {
			break
		}
	}
	return path, nil
}

// Leaves returns every node with no children, regardless of status.
func (t *Tree) Leaves() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Node
	for id, n := range t.nodes {
		if len(t.children[id]) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// SetStatus transitions id's status.
func (t *Tree) SetStatus(id string, status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	n.Status = status
	n.UpdatedAt = time.Now()
	return nil
}

// PruneSubtree marks id and every descendant pruned, recording reason. It
// never deletes records, preserving traceability.
func (t *Tree) PruneSubtree(id, reason string) error {
	timer := logging.StartTimer(logging.CategoryTree, "PruneSubtree")
	defer timer.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.nodes[id]; !ok {
		return &ErrNotFound{ID: id}
	}

	queue := []string{id}
	now := time.Now()
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := t.nodes[cur]
		n.Status = StatusPruned
		n.PruneReason = reason
		n.UpdatedAt = now
		queue = append(queue, t.children[cur]...)
	}
	return nil
}

// Backpropagate increments visits and adds value to every node on the path
// from leafID to the root.
func (t *Tree) Backpropagate(leafID string, value float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.nodes[leafID]
	if !ok {
		return &ErrNotFound{ID: leafID}
	}
	for {
		cur.Visits++
		cur.Value += value
		if cur.ParentID == "" {
			break
		}
		cur, ok = t.nodes[cur.ParentID]
		if !ok {
			break
		}
	}
	return nil
}

// All returns every node in the tree, in no particular order.
func (t *Tree) All() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	return out
}

// CountByStatus tallies live nodes per status, for session-level statistics
// (prune counts, in-progress counts).
func (t *Tree) CountByStatus() map[Status]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Status]int)
	for _, n := range t.nodes {
		out[n.Status]++
	}
	return out
}

// Count returns the total number of nodes in the tree.
func (t *Tree) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// SetEntities records a node's extracted entities.
func (t *Tree) SetEntities(id string, entities []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	n.Entities = entities
	n.UpdatedAt = time.Now()
	return nil
}

// SetAxiomScores records a node's per-axiom scorer results.
func (t *Tree) SetAxiomScores(id string, scores map[string]float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	n.AxiomScores = scores
	n.UpdatedAt = time.Now()
	return nil
}

// SetTripletIDs records the ids of facts extracted from a node's answer.
func (t *Tree) SetTripletIDs(id string, tripletIDs []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	n.TripletIDs = tripletIDs
	n.UpdatedAt = time.Now()
	return nil
}

// SetLastUCBScore records the UCB1 score that most recently selected id.
func (t *Tree) SetLastUCBScore(id string, score float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	n.LastUCBScore = score
	return nil
}

// SetAnswer records a node's generated answer and confidence.
func (t *Tree) SetAnswer(id, answer string, confidence float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	n.Answer = answer
	n.Confidence = confidence
	n.UpdatedAt = time.Now()
	return nil
}

// SetAxiomIncompatible flags a node as having produced facts that fail the
// configured hard-reject axiom threshold.
func (t *Tree) SetAxiomIncompatible(id string, incompatible bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	n.AxiomIncompatible = incompatible
	n.UpdatedAt = time.Now()
	return nil
}
