package fil

import "math"

// Node flag bits shared by all encodings.
const (
	flagLeaf        uint32 = 1 << 0
	flagDefaultLeft uint32 = 1 << 1
	flagCategorical uint32 = 1 << 2

	flagShift = 3
)

// Sparse8 packing limits. The 8-byte node keeps the feature id and the
// tree-local left-child index inside a single uint32, so models that
// exceed either width cannot be imported into this encoding.
const (
	sparse8FeatureBits = 12
	sparse8LeftBits    = 16

	// Sparse8MaxFeatures is the exclusive feature-id bound for SparseNode8.
	Sparse8MaxFeatures = 1 << sparse8FeatureBits
	// Sparse8MaxTreeNodes is the maximum node count of a single tree stored
	// as SparseNode8; left-child indices must fit in sparse8LeftBits.
	Sparse8MaxTreeNodes = 1 << sparse8LeftBits
)

// nodeAccessor is the uniform accessor contract over the three encodings.
// The val field is a union: split threshold for numerical nodes, a
// category-set byte offset for categorical nodes, and either a float
// output or an integer class/vector index for leaves. Which leaf reading
// applies is decided by the forest's leaf algorithm, not per node.
type nodeAccessor interface {
	IsLeaf() bool
	Feature() int
	DefaultLeft() bool
	IsCategorical() bool
	Thresh() float32
	SetOffset() uint32
	OutputFloat() float32
	OutputIndex() int

	// left returns the tree-local index of the left child of the node at
	// tree-local index cur. The right child is always left+1 for sparse
	// encodings and 2*cur+2 for dense.
	left(cur int) int
}

// DenseNode is the implicitly-indexed encoding: node i's children live at
// 2i+1 and 2i+2 within the tree's slot range, so no child pointer is
// stored. Storage cost is fixed by depth regardless of tree shape.
type DenseNode struct {
	val  float32
	bits uint32
}

// DenseSplit builds a numerical split node.
func DenseSplit(feature int, threshold float32, defaultLeft bool) DenseNode {
	return DenseNode{val: threshold, bits: packBits(feature, false, defaultLeft, false)}
}

// DenseCategoricalSplit builds a categorical split node referencing a
// byte offset into the forest's category bit pool.
func DenseCategoricalSplit(feature int, setOffset uint32, defaultLeft bool) DenseNode {
	return DenseNode{val: math.Float32frombits(setOffset), bits: packBits(feature, false, defaultLeft, true)}
}

// DenseLeaf builds a leaf carrying a float output.
func DenseLeaf(output float32) DenseNode {
	return DenseNode{val: output, bits: flagLeaf}
}

// DenseLeafIndex builds a leaf carrying a class or vector-table index.
func DenseLeafIndex(index int) DenseNode {
	return DenseNode{val: math.Float32frombits(uint32(index)), bits: flagLeaf}
}

func (n DenseNode) IsLeaf() bool        { return n.bits&flagLeaf != 0 }
func (n DenseNode) DefaultLeft() bool   { return n.bits&flagDefaultLeft != 0 }
func (n DenseNode) IsCategorical() bool { return n.bits&flagCategorical != 0 }
func (n DenseNode) Feature() int        { return int(n.bits >> flagShift) }
func (n DenseNode) Thresh() float32     { return n.val }
func (n DenseNode) SetOffset() uint32   { return math.Float32bits(n.val) }
func (n DenseNode) OutputFloat() float32 {
	return n.val
}
func (n DenseNode) OutputIndex() int {
	return int(math.Float32bits(n.val))
}
func (n DenseNode) left(cur int) int { return 2*cur + 1 }

// SparseNode16 is the 16-byte sparse encoding: dense fields plus an
// explicit tree-local left-child index, allowing pruned and unbalanced
// trees without paying the dense depth cost.
type SparseNode16 struct {
	val      float32
	bits     uint32
	leftIdx  uint32
	reserved uint32
}

// Sparse16Split builds a numerical split node with an explicit left child.
func Sparse16Split(feature int, threshold float32, defaultLeft bool, leftIndex int) SparseNode16 {
	return SparseNode16{val: threshold, bits: packBits(feature, false, defaultLeft, false), leftIdx: uint32(leftIndex)}
}

// Sparse16CategoricalSplit builds a categorical split node.
func Sparse16CategoricalSplit(feature int, setOffset uint32, defaultLeft bool, leftIndex int) SparseNode16 {
	return SparseNode16{val: math.Float32frombits(setOffset), bits: packBits(feature, false, defaultLeft, true), leftIdx: uint32(leftIndex)}
}

// Sparse16Leaf builds a leaf carrying a float output.
func Sparse16Leaf(output float32) SparseNode16 {
	return SparseNode16{val: output, bits: flagLeaf}
}

// Sparse16LeafIndex builds a leaf carrying a class or vector-table index.
func Sparse16LeafIndex(index int) SparseNode16 {
	return SparseNode16{val: math.Float32frombits(uint32(index)), bits: flagLeaf}
}

func (n SparseNode16) IsLeaf() bool        { return n.bits&flagLeaf != 0 }
func (n SparseNode16) DefaultLeft() bool   { return n.bits&flagDefaultLeft != 0 }
func (n SparseNode16) IsCategorical() bool { return n.bits&flagCategorical != 0 }
func (n SparseNode16) Feature() int        { return int(n.bits >> flagShift) }
func (n SparseNode16) Thresh() float32     { return n.val }
func (n SparseNode16) SetOffset() uint32   { return math.Float32bits(n.val) }
func (n SparseNode16) OutputFloat() float32 {
	return n.val
}
func (n SparseNode16) OutputIndex() int {
	return int(math.Float32bits(n.val))
}
func (n SparseNode16) left(int) int { return int(n.leftIdx) }

// SparseNode8 packs the feature id, left-child index and flags into a
// single uint32 alongside the 4-byte val union. Halving the node size
// doubles how much of a forest fits in cache, at the cost of the
// capacity limits above.
type SparseNode8 struct {
	val  float32
	bits uint32
}

// Sparse8Split builds a numerical split node. Callers must have checked
// the feature id and left index against the Sparse8 limits.
func Sparse8Split(feature int, threshold float32, defaultLeft bool, leftIndex int) SparseNode8 {
	return SparseNode8{val: threshold, bits: packSparse8(feature, defaultLeft, false, leftIndex)}
}

// Sparse8CategoricalSplit builds a categorical split node.
func Sparse8CategoricalSplit(feature int, setOffset uint32, defaultLeft bool, leftIndex int) SparseNode8 {
	return SparseNode8{val: math.Float32frombits(setOffset), bits: packSparse8(feature, defaultLeft, true, leftIndex)}
}

// Sparse8Leaf builds a leaf carrying a float output.
func Sparse8Leaf(output float32) SparseNode8 {
	return SparseNode8{val: output, bits: flagLeaf}
}

// Sparse8LeafIndex builds a leaf carrying a class or vector-table index.
func Sparse8LeafIndex(index int) SparseNode8 {
	return SparseNode8{val: math.Float32frombits(uint32(index)), bits: flagLeaf}
}

func (n SparseNode8) IsLeaf() bool        { return n.bits&flagLeaf != 0 }
func (n SparseNode8) DefaultLeft() bool   { return n.bits&flagDefaultLeft != 0 }
func (n SparseNode8) IsCategorical() bool { return n.bits&flagCategorical != 0 }
func (n SparseNode8) Feature() int {
	return int((n.bits >> flagShift) & (Sparse8MaxFeatures - 1))
}
func (n SparseNode8) Thresh() float32   { return n.val }
func (n SparseNode8) SetOffset() uint32 { return math.Float32bits(n.val) }
func (n SparseNode8) OutputFloat() float32 {
	return n.val
}
func (n SparseNode8) OutputIndex() int {
	return int(math.Float32bits(n.val))
}
func (n SparseNode8) left(int) int {
	return int((n.bits >> (flagShift + sparse8FeatureBits)) & (Sparse8MaxTreeNodes - 1))
}

func packBits(feature int, leaf, defaultLeft, categorical bool) uint32 {
	bits := uint32(feature) << flagShift
	if leaf {
		bits |= flagLeaf
	}
	if defaultLeft {
		bits |= flagDefaultLeft
	}
	if categorical {
		bits |= flagCategorical
	}
	return bits
}

func packSparse8(feature int, defaultLeft, categorical bool, leftIndex int) uint32 {
	bits := uint32(feature)<<flagShift |
		uint32(leftIndex)<<(flagShift+sparse8FeatureBits)
	if defaultLeft {
		bits |= flagDefaultLeft
	}
	if categorical {
		bits |= flagCategorical
	}
	return bits
}
