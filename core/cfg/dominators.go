package cfg

import (
	"github.com/willf/bitset"
	"golang.org/x/exp/slices"
)

// Dependence records that an instruction executes only when Branch is taken
// out of On. Branch is NoBranch for switch and unconditional sources.
type Dependence struct {
	On     int
	Branch Branch
}

// postDominators holds post-dominator sets over the normal edges, with a
// virtual exit node at index n that every exit instruction flows into.
type postDominators struct {
	sets  []*bitset.BitSet
	ipdom []int
	deps  [][]Dependence
}

func (g *Graph) normalSuccessors(order int) []int {
	var out []int
	for _, e := range g.out[order] {
		if e.Kind != Exception && !slices.Contains(out, e.To) {
			out = append(out, e.To)
		}
	}
	return out
}

func (g *Graph) postDominators() *postDominators {
	g.pdomOnce.Do(func() { g.pdom = computePostDominators(g) })
	return g.pdom
}

func computePostDominators(g *Graph) *postDominators {
	n := len(g.instrs)
	exit := n
	size := uint(n + 1)
	sets := make([]*bitset.BitSet, n+1)
	for i := 0; i < n; i++ {
		sets[i] = bitset.New(size).Complement()
	}
	sets[exit] = bitset.New(size).Set(uint(exit))

	succs := make([][]int, n)
	for i := 0; i < n; i++ {
		succs[i] = g.normalSuccessors(i)
		if len(succs[i]) == 0 {
			succs[i] = []int{exit}
		}
	}
	// Iterate in reverse order so that straight-line code settles in one
	// sweep.
	for changed := true; changed; {
		changed = false
		for i := n - 1; i >= 0; i-- {
			next := sets[succs[i][0]].Clone()
			for _, s := range succs[i][1:] {
				next.InPlaceIntersection(sets[s])
			}
			next.Set(uint(i))
			if !next.Equal(sets[i]) {
				sets[i] = next
				changed = true
			}
		}
	}

	exits := reachesExit(succs, n)
	pd := &postDominators{sets: sets, ipdom: make([]int, n), deps: make([][]Dependence, n)}
	for i := 0; i < n; i++ {
		pd.ipdom[i] = -1
		if exits.Test(uint(i)) {
			pd.ipdom[i] = immediate(sets, i)
		}
	}
	// Ferrante et al: for every edge a->b where b does not post-dominate a,
	// everything on the post-dominator tree path from b up to ipdom(a) is
	// control dependent on a.
	for a := 0; a < n; a++ {
		for _, e := range g.out[a] {
			if e.Kind == Exception || sets[a].Test(uint(e.To)) {
				continue
			}
			stop := pd.ipdom[a]
			for b := e.To; b >= 0 && b < n && b != stop; b = pd.ipdom[b] {
				d := Dependence{On: a, Branch: e.Branch}
				if !slices.Contains(pd.deps[b], d) {
					pd.deps[b] = append(pd.deps[b], d)
				}
				if b == a {
					break
				}
			}
		}
	}
	return pd
}

// reachesExit marks the instructions from which some normal path reaches
// the virtual exit at index n.
func reachesExit(succs [][]int, n int) *bitset.BitSet {
	preds := make([][]int, n+1)
	for i, ss := range succs {
		for _, s := range ss {
			preds[s] = append(preds[s], i)
		}
	}
	seen := bitset.New(uint(n + 1)).Set(uint(n))
	queue := []int{n}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, p := range preds[curr] {
			if !seen.Test(uint(p)) {
				seen.Set(uint(p))
				queue = append(queue, p)
			}
		}
	}
	return seen
}

// immediate returns the strict post-dominator of i that every other strict
// post-dominator of i also post-dominates, -1 when that is the virtual exit.
func immediate(sets []*bitset.BitSet, i int) int {
	strict := sets[i].Clone().Clear(uint(i))
	exit := len(sets) - 1
	for d, ok := strict.NextSet(0); ok; d, ok = strict.NextSet(d + 1) {
		if int(d) != exit && sets[d].Equal(strict) {
			return int(d)
		}
	}
	return -1
}

// PostDominates reports whether every path from b to a method exit passes
// through a. Exception edges are ignored.
func (g *Graph) PostDominates(a, b int) bool {
	return g.postDominators().sets[b].Test(uint(a))
}

// ImmediatePostDominator returns the closest strict post-dominator of order,
// or -1 when only the method exit post-dominates it or order never reaches
// an exit.
func (g *Graph) ImmediatePostDominator(order int) int {
	return g.postDominators().ipdom[order]
}

// ControlDependences returns the branches whose outcome decides whether
// order executes.
func (g *Graph) ControlDependences(order int) []Dependence {
	return slices.Clone(g.postDominators().deps[order])
}
