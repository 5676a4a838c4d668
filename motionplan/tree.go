package motionplan

import (
	"context"
	"math"
	"runtime"
	"sync"

	"go.viam.com/utils"
)

const neighborsBeforeParallelization = 1000

type node struct {
	id int
	q  Configuration
}

type rrtMap map[*node]*node

// Tree is one tree grown by a planner. Nodes are numbered in insertion order and the root has no parent.
type Tree struct {
	name    string
	nodes   []*node
	parents rrtMap
}

func newTree(name string) *Tree {
	return &Tree{name: name, parents: rrtMap{}}
}

func (t *Tree) add(q Configuration, parent *node) *node {
	n := &node{id: len(t.nodes), q: q.Clone()}
	t.nodes = append(t.nodes, n)
	t.parents[n] = parent
	return n
}

// Name returns the tree name.
func (t *Tree) Name() string {
	return t.name
}

// Size returns the number of nodes.
func (t *Tree) Size() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

// Configuration returns a copy of the configuration stored at node i.
func (t *Tree) Configuration(i int) Configuration {
	return t.nodes[i].q.Clone()
}

// Parent returns the parent of node i, or -1 for the root.
func (t *Tree) Parent(i int) int {
	if p := t.parents[t.nodes[i]]; p != nil {
		return p.id
	}
	return -1
}

// pathToRoot lists the configurations from n up to the root.
func (t *Tree) pathToRoot(n *node) []Configuration {
	path := []Configuration{}
	for n != nil {
		path = append(path, n.q)
		n = t.parents[n]
	}
	return path
}

// extractPath joins the start tree branch ending in startReached with the goal tree branch ending in goalReached.
// When matched is set both nodes hold the same configuration and it is only kept once.
func extractPath(startTree, goalTree *Tree, startReached, goalReached *node, matched bool) []Configuration {
	path := startTree.pathToRoot(startReached)
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	if goalReached != nil {
		if matched {
			goalReached = goalTree.parents[goalReached]
		}
		path = append(path, goalTree.pathToRoot(goalReached)...)
	}
	return path
}

type neighborManager struct {
	nCPU int
}

func newNeighborManager(nCPU int) *neighborManager {
	if nCPU < 1 {
		nCPU = runtime.NumCPU()
	}
	return &neighborManager{nCPU: nCPU}
}

// nearestNeighbor returns the tree node closest to seed. Ties go to the node added first.
func (nm *neighborManager) nearestNeighbor(ctx context.Context, seed Configuration, tree *Tree) *node {
	if len(tree.nodes) > neighborsBeforeParallelization && nm.nCPU > 1 {
		// If the tree is large, calculate distances in parallel
		return nm.parallelNearestNeighbor(ctx, seed, tree)
	}
	best, _ := nearestInRange(seed, tree.nodes)
	return best
}

func (nm *neighborManager) parallelNearestNeighbor(ctx context.Context, seed Configuration, tree *Tree) *node {
	chunk := (len(tree.nodes) + nm.nCPU - 1) / nm.nCPU
	type result struct {
		node *node
		dist float64
	}
	results := make([]result, nm.nCPU)
	var wg sync.WaitGroup
	for w := 0; w < nm.nCPU; w++ {
		lo := w * chunk
		if lo >= len(tree.nodes) {
			results[w].dist = math.Inf(1)
			continue
		}
		hi := min(lo+chunk, len(tree.nodes))
		wg.Add(1)
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				results[w].dist = math.Inf(1)
				return
			}
			n, d := nearestInRange(seed, tree.nodes[lo:hi])
			results[w] = result{node: n, dist: d}
		})
	}
	wg.Wait()

	var best *node
	bestDist := math.Inf(1)
	for _, r := range results {
		if r.node != nil && r.dist < bestDist {
			best, bestDist = r.node, r.dist
		}
	}
	return best
}

func nearestInRange(seed Configuration, nodes []*node) (*node, float64) {
	bestDist := math.Inf(1)
	var best *node
	for _, k := range nodes {
		if dist := configurationDistance(seed, k.q); dist < bestDist {
			bestDist = dist
			best = k
		}
	}
	return best, bestDist
}
