package cfg

import (
	"fmt"

	"github.com/willf/bitset"
	"golang.org/x/exp/slices"
)

// Block is a maximal run of instructions entered only at First and left
// normally only from Last. Instructions inside a block may still raise into
// a handler, which makes the handler's block a child.
type Block struct {
	Index int
	First int
	Last  int

	parents  []*Block
	children []*Block
}

// Size returns the number of instructions in the block.
func (b *Block) Size() int { return b.Last - b.First + 1 }

// Contains reports whether order lies inside the block.
func (b *Block) Contains(order int) bool { return order >= b.First && order <= b.Last }

// Parents returns the blocks with an edge into b.
func (b *Block) Parents() []*Block { return b.parents }

// Children returns the blocks b has an edge to, in edge order.
func (b *Block) Children() []*Block { return b.children }

func (b *Block) String() string {
	return fmt.Sprintf("block %d [%d..%d]", b.Index, b.First, b.Last)
}

type blockView struct {
	blocks []*Block
	of     []int
}

// Blocks groups the instructions into basic blocks in program order.
// Leaders are the entry, every target of a non fall-through edge and the
// instruction after anything that does not simply fall through.
func (g *Graph) Blocks() []*Block {
	return g.blockView().blocks
}

// BlockOf returns the block containing order.
func (g *Graph) BlockOf(order int) *Block {
	v := g.blockView()
	return v.blocks[v.of[order]]
}

func (g *Graph) blockView() *blockView {
	g.blocksOnce.Do(func() { g.blocks = computeBlocks(g) })
	return g.blocks
}

func computeBlocks(g *Graph) *blockView {
	n := len(g.instrs)
	leaders := bitset.New(uint(n)).Set(0)
	for order := 0; order < n; order++ {
		straight := 0
		for _, e := range g.out[order] {
			switch {
			case e.Kind == Exception:
				leaders.Set(uint(e.To))
			case e.Kind == FallThrough && e.To == order+1:
				straight++
			default:
				leaders.Set(uint(e.To))
				straight = -n
			}
		}
		if straight != 1 && order+1 < n {
			leaders.Set(uint(order + 1))
		}
	}

	v := &blockView{of: make([]int, n)}
	for first, ok := leaders.NextSet(0); ok; {
		next, more := leaders.NextSet(first + 1)
		last := n - 1
		if more {
			last = int(next) - 1
		}
		b := &Block{Index: len(v.blocks), First: int(first), Last: last}
		for order := b.First; order <= b.Last; order++ {
			v.of[order] = b.Index
		}
		v.blocks = append(v.blocks, b)
		first, ok = next, more
	}
	for _, b := range v.blocks {
		for order := b.First; order <= b.Last; order++ {
			for _, e := range g.out[order] {
				if order != b.Last && e.Kind != Exception {
					continue
				}
				child := v.blocks[v.of[e.To]]
				if !slices.Contains(b.children, child) {
					b.children = append(b.children, child)
					child.parents = append(child.parents, b)
				}
			}
		}
	}
	return v
}
