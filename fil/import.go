package fil

import (
	"math"

	"github.com/forestml/grove/pkg/errors"
	"github.com/forestml/grove/pkg/log"
	"github.com/forestml/grove/treemodel"
)

// ImportOptions controls how an external model is translated into a
// forest.
type ImportOptions struct {
	// Storage picks the node encoding; StorageAuto chooses dense for
	// shallow forests and sparse16 otherwise.
	Storage StorageKind
	// Algo is the traversal strategy passed through to the forest.
	Algo Algo
	// LeafAlgo overrides leaf interpretation. The zero value (LeafFloat)
	// means infer: scalar leaves for models with up to 2 classes,
	// vector leaves when the model carries per-class leaf vectors, and
	// grove-per-class otherwise.
	LeafAlgo LeafAlgo
	// ClassOutput requests class labels instead of scores from Predict.
	ClassOutput bool
	// Threshold converts a binary score to a class when ClassOutput is set.
	Threshold float32
	// RowsPerTile tunes the reorganizing traversal strategies.
	RowsPerTile int
}

// autoDenseDepthLimit is the deepest forest StorageAuto will store
// densely; beyond it the implicit 2^depth slot cost outweighs the
// pointer-free traversal.
const autoDenseDepthLimit = 12

// Import translates an externally-built tree ensemble into a forest,
// normalizing all comparison operators to the engine's canonical
// `value < threshold` direction and building categorical bit-sets.
func Import(model *treemodel.Model, opts ImportOptions) (*Forest, error) {
	const op = "fil.Import"
	if err := model.Validate(); err != nil {
		return nil, errors.Wrap(err, "fil: import")
	}
	if len(model.Trees) == 0 {
		return nil, errors.NewUnsupportedModelError(op, "model has no trees")
	}

	depth := 0
	for i := range model.Trees {
		if d := model.Trees[i].Depth(); d > depth {
			depth = d
		}
	}

	storage := opts.Storage
	if storage == StorageAuto {
		if depth <= autoDenseDepthLimit {
			storage = StorageDense
		} else {
			storage = StorageSparse16
		}
	}

	leafAlgo, err := resolveLeafAlgo(model, opts.LeafAlgo)
	if err != nil {
		return nil, err
	}

	counts := make([]int32, model.NumFeatures)
	for f, c := range model.CategoryCounts {
		counts[f] = int32(c)
	}

	conv := &importer{
		model:    model,
		leafAlgo: leafAlgo,
		cats:     newCatSetsBuilder(counts),
		vecIndex: make(map[string]int),
	}

	cfg := ForestConfig{
		Depth:       depth,
		NumTrees:    len(model.Trees),
		NumCols:     model.NumFeatures,
		Algo:        opts.Algo,
		LeafAlgo:    leafAlgo,
		NumClasses:  model.NumClasses,
		Average:     model.AveragePredictions,
		Sigmoid:     model.Sigmoid,
		Softmax:     model.Softmax,
		ClassOutput: opts.ClassOutput,
		GlobalBias:  float32(model.GlobalBias),
		Threshold:   opts.Threshold,
		RowsPerTile: opts.RowsPerTile,
	}

	var forest *Forest
	switch storage {
	case StorageDense:
		forest, err = conv.buildDense(cfg)
	case StorageSparse16:
		forest, err = conv.buildSparse16(cfg)
	case StorageSparse8:
		forest, err = conv.buildSparse8(cfg)
	default:
		return nil, errors.NewValidationError("Storage", "unknown storage kind", storage)
	}
	if err != nil {
		return nil, err
	}

	log.GetLoggerWithName("fil").Info("imported model",
		"storage", storage.String(),
		"trees", cfg.NumTrees,
		"depth", depth,
		"features", cfg.NumCols,
		"classes", cfg.NumClasses)
	return forest, nil
}

func resolveLeafAlgo(model *treemodel.Model, requested LeafAlgo) (LeafAlgo, error) {
	hasVectors := false
	for i := range model.Trees {
		for j := range model.Trees[i].Nodes {
			if model.Trees[i].Nodes[j].LeafVector != nil {
				hasVectors = true
			}
		}
	}
	if requested != LeafFloat {
		if requested == LeafVector && !hasVectors {
			return 0, errors.NewUnsupportedModelError("fil.Import", "vector leaves requested but model has scalar leaves")
		}
		return requested, nil
	}
	switch {
	case hasVectors:
		return LeafVector, nil
	case model.NumClasses > 2:
		return LeafGrovePerClass, nil
	default:
		return LeafFloat, nil
	}
}

// importedNode is one external node after canonicalization: children
// already swapped for flipped operators and for the match-right
// categorical convention, threshold already perturbed for <=.
type importedNode struct {
	leaf        bool
	categorical bool
	defaultLeft bool
	feature     int
	thresh      float32
	setOffset   uint32
	outFloat    float32
	outIndex    int
	extLeft     int
	extRight    int
}

type importer struct {
	model    *treemodel.Model
	leafAlgo LeafAlgo
	cats     *catSetsBuilder
	vecTable []float32
	vecIndex map[string]int
}

func (im *importer) convert(tree *treemodel.Tree, idx int) (importedNode, error) {
	ext := &tree.Nodes[idx]
	if ext.IsLeaf {
		return im.convertLeaf(ext)
	}

	out := importedNode{
		feature:     ext.Feature,
		defaultLeft: ext.DefaultLeft,
		extLeft:     ext.LeftChild,
		extRight:    ext.RightChild,
	}
	if ext.IsCategorical() {
		// The external convention sends listed categories left; the engine
		// sends matches right. Swap children and flip the default so the
		// physical routing is unchanged.
		out.categorical = true
		out.setOffset = im.cats.addSet(ext.Feature, ext.LeftCategories)
		out.extLeft, out.extRight = out.extRight, out.extLeft
		out.defaultLeft = !out.defaultLeft
		return out, nil
	}

	thresh := float32(ext.Threshold)
	switch ext.Op {
	case treemodel.OpLT:
		// canonical
	case treemodel.OpLE:
		thresh = nextAbove32(thresh)
	case treemodel.OpGT:
		out.extLeft, out.extRight = out.extRight, out.extLeft
		out.defaultLeft = !out.defaultLeft
		thresh = nextAbove32(thresh)
	case treemodel.OpGE:
		out.extLeft, out.extRight = out.extRight, out.extLeft
		out.defaultLeft = !out.defaultLeft
	}
	out.thresh = thresh
	return out, nil
}

func (im *importer) convertLeaf(ext *treemodel.Node) (importedNode, error) {
	out := importedNode{leaf: true}
	switch im.leafAlgo {
	case LeafFloat, LeafGrovePerClass:
		out.outFloat = float32(ext.LeafValue)
	case LeafCategorical:
		cls := int(ext.LeafValue)
		if cls < 0 || cls >= im.model.NumClasses {
			return out, errors.NewUnsupportedModelErrorf("fil.Import", "leaf class %d out of range [0, %d)", cls, im.model.NumClasses)
		}
		out.outIndex = cls
	case LeafVector:
		if ext.LeafVector == nil {
			return out, errors.NewUnsupportedModelError("fil.Import", "vector-leaf forest contains a scalar leaf")
		}
		out.outIndex = im.internVector(ext.LeafVector)
	}
	return out, nil
}

// internVector deduplicates identical leaf vectors into the shared table.
func (im *importer) internVector(vec []float64) int {
	key := make([]byte, 0, len(vec)*8)
	for _, v := range vec {
		bits := math.Float64bits(v)
		for s := 0; s < 64; s += 8 {
			key = append(key, byte(bits>>s))
		}
	}
	if idx, ok := im.vecIndex[string(key)]; ok {
		return idx
	}
	idx := len(im.vecTable) / im.model.NumClasses
	for _, v := range vec {
		im.vecTable = append(im.vecTable, float32(v))
	}
	im.vecIndex[string(key)] = idx
	return idx
}

func (im *importer) buildDense(cfg ForestConfig) (*Forest, error) {
	if cfg.Depth > MaxDenseDepth {
		return nil, errors.NewUnsupportedModelErrorf("fil.Import",
			"model depth %d exceeds the dense storage limit of %d; use a sparse encoding", cfg.Depth, MaxDenseDepth)
	}
	stride := (1 << (cfg.Depth + 1)) - 1
	nodes := make([]DenseNode, cfg.NumTrees*stride)
	for t := range im.model.Trees {
		tree := &im.model.Trees[t]
		if err := im.placeDense(tree, 0, nodes[t*stride:(t+1)*stride], 0); err != nil {
			return nil, err
		}
	}
	return InitDense(cfg, nodes, &im.cats.sets, im.vecTable)
}

func (im *importer) placeDense(tree *treemodel.Tree, ext int, slots []DenseNode, pos int) error {
	n, err := im.convert(tree, ext)
	if err != nil {
		return err
	}
	slots[pos] = im.denseNode(n)
	if n.leaf {
		return nil
	}
	if err := im.placeDense(tree, n.extLeft, slots, 2*pos+1); err != nil {
		return err
	}
	return im.placeDense(tree, n.extRight, slots, 2*pos+2)
}

func (im *importer) denseNode(n importedNode) DenseNode {
	switch {
	case n.leaf && (im.leafAlgo == LeafCategorical || im.leafAlgo == LeafVector):
		return DenseLeafIndex(n.outIndex)
	case n.leaf:
		return DenseLeaf(n.outFloat)
	case n.categorical:
		return DenseCategoricalSplit(n.feature, n.setOffset, n.defaultLeft)
	default:
		return DenseSplit(n.feature, n.thresh, n.defaultLeft)
	}
}

// layoutSparse converts a tree and assigns breadth-first slots so that
// sibling nodes occupy adjacent slots (right child = left child + 1).
// Conversion happens before slot assignment: a node whose operator forced
// a child swap enqueues its canonicalized left child first, keeping the
// left+1 invariant intact. Returns the converted nodes in slot order and
// the left-child slot per node (-1 for leaves).
func (im *importer) layoutSparse(tree *treemodel.Tree) ([]importedNode, []int, error) {
	root, err := im.convert(tree, 0)
	if err != nil {
		return nil, nil, err
	}
	nodes := []importedNode{root}
	leftOf := []int{-1}
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		if n.leaf {
			continue
		}
		leftOf[i] = len(nodes)
		cl, err := im.convert(tree, n.extLeft)
		if err != nil {
			return nil, nil, err
		}
		cr, err := im.convert(tree, n.extRight)
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, cl, cr)
		leftOf = append(leftOf, -1, -1)
	}
	return nodes, leftOf, nil
}

func (im *importer) buildSparse16(cfg ForestConfig) (*Forest, error) {
	var nodes []SparseNode16
	roots := make([]int32, cfg.NumTrees)
	for t := range im.model.Trees {
		roots[t] = int32(len(nodes))
		local, leftOf, err := im.layoutSparse(&im.model.Trees[t])
		if err != nil {
			return nil, err
		}
		for i, n := range local {
			nodes = append(nodes, im.sparse16Node(n, leftOf[i]))
		}
	}
	return InitSparse16(cfg, roots, nodes, &im.cats.sets, im.vecTable)
}

func (im *importer) buildSparse8(cfg ForestConfig) (*Forest, error) {
	var nodes []SparseNode8
	roots := make([]int32, cfg.NumTrees)
	for t := range im.model.Trees {
		roots[t] = int32(len(nodes))
		local, leftOf, err := im.layoutSparse(&im.model.Trees[t])
		if err != nil {
			return nil, err
		}
		if len(local) > Sparse8MaxTreeNodes {
			return nil, errors.NewUnsupportedModelErrorf("fil.Import",
				"tree %d has %d nodes, exceeding the sparse8 limit of %d", t, len(local), Sparse8MaxTreeNodes)
		}
		for i, n := range local {
			if !n.leaf && n.feature >= Sparse8MaxFeatures {
				return nil, errors.NewUnsupportedModelErrorf("fil.Import",
					"tree %d splits on feature %d, exceeding the sparse8 limit of %d", t, n.feature, Sparse8MaxFeatures)
			}
			nodes = append(nodes, im.sparse8Node(n, leftOf[i]))
		}
	}
	return InitSparse8(cfg, roots, nodes, &im.cats.sets, im.vecTable)
}

func (im *importer) sparse16Node(n importedNode, left int) SparseNode16 {
	switch {
	case n.leaf && (im.leafAlgo == LeafCategorical || im.leafAlgo == LeafVector):
		return Sparse16LeafIndex(n.outIndex)
	case n.leaf:
		return Sparse16Leaf(n.outFloat)
	case n.categorical:
		return Sparse16CategoricalSplit(n.feature, n.setOffset, n.defaultLeft, left)
	default:
		return Sparse16Split(n.feature, n.thresh, n.defaultLeft, left)
	}
}

func (im *importer) sparse8Node(n importedNode, left int) SparseNode8 {
	switch {
	case n.leaf && (im.leafAlgo == LeafCategorical || im.leafAlgo == LeafVector):
		return Sparse8LeafIndex(n.outIndex)
	case n.leaf:
		return Sparse8Leaf(n.outFloat)
	case n.categorical:
		return Sparse8CategoricalSplit(n.feature, n.setOffset, n.defaultLeft, left)
	default:
		return Sparse8Split(n.feature, n.thresh, n.defaultLeft, left)
	}
}

// nextAbove32 returns the smallest float32 strictly greater than x, so
// that `v < nextAbove32(t)` is exactly `v <= t` over float32 inputs.
func nextAbove32(x float32) float32 {
	return math.Nextafter32(x, float32(math.Inf(1)))
}
