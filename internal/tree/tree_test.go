package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRootAndAddChild(t *testing.T) {
	tr := New(0)
	root := tr.CreateRoot("what causes climate change?")
	assert.Equal(t, 0, root.Depth)
	assert.Equal(t, StatusPending, root.Status)

	child, err := tr.AddChild(root.ID, "what are greenhouse gases?")
	require.NoError(t, err)
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, root.ID, child.ParentID)
}

func TestAddChildUnknownParentErrors(t *testing.T) {
	tr := New(0)
	_, err := tr.AddChild("missing", "q")
	assert.Error(t, err)
}

func TestAddChildRespectsNodeLimit(t *testing.T) {
	tr := New(1)
	root := tr.CreateRoot("q")
	_, err := tr.AddChild(root.ID, "child")
	var limitErr *ErrNodeLimitExceeded
	assert.ErrorAs(t, err, &limitErr)
}

func TestChildrenOf(t *testing.T) {
	tr := New(0)
	root := tr.CreateRoot("q")
	c1, _ := tr.AddChild(root.ID, "c1")
	c2, _ := tr.AddChild(root.ID, "c2")

	children, err := tr.ChildrenOf(root.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	ids := []string{children[0].ID, children[1].ID}
	assert.Contains(t, ids, c1.ID)
	assert.Contains(t, ids, c2.ID)
}

func TestPathToRoot(t *testing.T) {
	tr := New(0)
	root := tr.CreateRoot("q")
	c1, _ := tr.AddChild(root.ID, "c1")
	c2, _ := tr.AddChild(c1.ID, "c2")

	path, err := tr.PathToRoot(c2.ID)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, c2.ID, path[0].ID)
	assert.Equal(t, root.ID, path[2].ID)
}

func TestLeaves(t *testing.T) {
	tr := New(0)
	root := tr.CreateRoot("q")
	c1, _ := tr.AddChild(root.ID, "c1")
	tr.AddChild(c1.ID, "c2")

	leaves := tr.Leaves()
	require.Len(t, leaves, 1)
	assert.NotEqual(t, root.ID, leaves[0].ID)
}

func TestSetStatus(t *testing.T) {
	tr := New(0)
	root := tr.CreateRoot("q")
	require.NoError(t, tr.SetStatus(root.ID, StatusExploring))

	n, err := tr.GetNode(root.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExploring, n.Status)
}

func TestPruneSubtreeCascadesAndPreservesRecords(t *testing.T) {
	tr := New(0)
	root := tr.CreateRoot("q")
	c1, _ := tr.AddChild(root.ID, "c1")
	c2, _ := tr.AddChild(c1.ID, "c2")

	require.NoError(t, tr.PruneSubtree(c1.ID, "token_budget_exceeded"))

	n1, _ := tr.GetNode(c1.ID)
	n2, _ := tr.GetNode(c2.ID)
	assert.Equal(t, StatusPruned, n1.Status)
	assert.Equal(t, StatusPruned, n2.Status)
	assert.Equal(t, "token_budget_exceeded", n2.PruneReason)
	assert.Equal(t, 3, tr.Count(), "pruning must not delete nodes")
}

func TestBackpropagateUpdatesVisitsAndValueAlongPath(t *testing.T) {
	tr := New(0)
	root := tr.CreateRoot("q")
	c1, _ := tr.AddChild(root.ID, "c1")

	require.NoError(t, tr.Backpropagate(c1.ID, 0.8))
	require.NoError(t, tr.Backpropagate(c1.ID, 0.6))

	child, _ := tr.GetNode(c1.ID)
	rootNode, _ := tr.GetNode(root.ID)
	assert.Equal(t, 2, child.Visits)
	assert.InDelta(t, 1.4, child.Value, 1e-9)
	assert.Equal(t, 2, rootNode.Visits)
	assert.InDelta(t, 1.4, rootNode.Value, 1e-9)
}

func TestGetNodeMissingReturnsError(t *testing.T) {
	tr := New(0)
	_, err := tr.GetNode("missing")
	assert.Error(t, err)
}

func TestSetAnswerAndSetTripletIDs(t *testing.T) {
	tr := New(0)
	root := tr.CreateRoot("q")

	require.NoError(t, tr.SetAnswer(root.ID, "the answer", 0.8))
	require.NoError(t, tr.SetTripletIDs(root.ID, []string{"t1", "t2"}))

	n, _ := tr.GetNode(root.ID)
	assert.Equal(t, "the answer", n.Answer)
	assert.Equal(t, 0.8, n.Confidence)
	assert.Equal(t, []string{"t1", "t2"}, n.TripletIDs)
}

func TestSetAxiomIncompatible(t *testing.T) {
	tr := New(0)
	root := tr.CreateRoot("q")
	require.NoError(t, tr.SetAxiomIncompatible(root.ID, true))

	n, _ := tr.GetNode(root.ID)
	assert.True(t, n.AxiomIncompatible)
}

func TestCountByStatus(t *testing.T) {
	tr := New(0)
	root := tr.CreateRoot("q")
	c1, _ := tr.AddChild(root.ID, "c1")
	require.NoError(t, tr.PruneSubtree(c1.ID, "reason"))

	counts := tr.CountByStatus()
	assert.Equal(t, 1, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusPruned])
}

func TestAllReturnsEveryNode(t *testing.T) {
	tr := New(0)
	root := tr.CreateRoot("q")
	tr.AddChild(root.ID, "c1")

	assert.Len(t, tr.All(), 2)
}
