package train

import (
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/forestml/grove/fil"
	"github.com/forestml/grove/pkg/errors"
	"github.com/forestml/grove/pkg/log"
	"github.com/forestml/grove/treemodel"
)

// Builder trains a forest level by level: all active nodes of one depth
// are histogrammed, split and partitioned in a single batched pass before
// the next depth starts.
type Builder struct {
	params Params
	levels *LevelBuilder
	model  *treemodel.Model
	log    log.Logger
}

// NewBuilder validates the hyperparameters and returns a trainer.
func NewBuilder(p Params) (*Builder, error) {
	p = p.withDefaults()
	lb, err := NewLevelBuilder(p)
	if err != nil {
		return nil, err
	}
	return &Builder{
		params: p,
		levels: lb,
		log:    log.GetLoggerWithName("train"),
	}, nil
}

// Fit trains the ensemble on X (n×d features) and y (n×1 labels).
// Classification objectives expect labels to be class ids 0..k-1;
// regression accepts arbitrary targets. NaN feature values are routed
// like missing values at inference time.
func (b *Builder) Fit(X, y mat.Matrix) error {
	start := time.Now()

	numRows, numCols := X.Dims()
	yr, yc := y.Dims()
	if yr != numRows || yc != 1 {
		return errors.NewDimensionError("train.Fit", numRows, yr, 0)
	}
	if numRows == 0 || numCols == 0 {
		return errors.NewValidationError("X", "empty feature matrix", nil)
	}

	in, err := b.prepare(X, y, numRows, numCols)
	if err != nil {
		return err
	}

	model := &treemodel.Model{
		Trees:              make([]treemodel.Tree, b.params.NumTrees),
		NumFeatures:        numCols,
		NumClasses:         b.levels.params.NumClasses,
		AveragePredictions: true,
	}
	if !b.params.isClassification() {
		model.NumClasses = 1
	}

	rows := make([]int32, numRows)
	for t := 0; t < b.params.NumTrees; t++ {
		b.sampleRows(rows, numRows, t)
		in.Rows = rows
		if err := b.growTree(in, &model.Trees[t], t); err != nil {
			return err
		}
	}

	b.model = model
	b.log.Info("training finished",
		"trees", b.params.NumTrees,
		"rows", numRows,
		"features", numCols,
		"objective", b.params.Objective.String(),
		"elapsed", time.Since(start))
	return nil
}

// prepare flattens the inputs, infers the class count when needed and
// builds the quantile table. The level builder's params copy carries the
// resolved class count so histogram bins are sized correctly.
func (b *Builder) prepare(X, y mat.Matrix, numRows, numCols int) (*Input, error) {
	data := make([]float32, numRows*numCols)
	for r := 0; r < numRows; r++ {
		for c := 0; c < numCols; c++ {
			data[r*numCols+c] = float32(X.At(r, c))
		}
	}

	labels := make([]float32, numRows)
	maxLabel := 0
	for r := 0; r < numRows; r++ {
		v := y.At(r, 0)
		if b.params.isClassification() {
			cls := int(v)
			if float64(cls) != v || cls < 0 {
				return nil, errors.NewValidationError("y", "classification labels must be non-negative integers", v)
			}
			if cls > maxLabel {
				maxLabel = cls
			}
		}
		labels[r] = float32(v)
	}
	if b.params.isClassification() {
		classes := maxLabel + 1
		if classes < 2 {
			classes = 2
		}
		if b.params.NumClasses > 0 {
			if classes > b.params.NumClasses {
				return nil, errors.NewValidationError("NumClasses", "label exceeds configured class count", maxLabel)
			}
			classes = b.params.NumClasses
		}
		// Resolve the class count for this fit only; the builder's own
		// params keep the caller's value so a refit re-infers from the
		// new labels.
		resolved := b.params
		resolved.NumClasses = classes
		lb, err := NewLevelBuilder(resolved)
		if err != nil {
			return nil, err
		}
		b.levels = lb
	}

	sampled := int(math.Ceil(b.params.MaxFeaturesFrac * float64(numCols)))
	if sampled < 1 {
		sampled = 1
	}

	in := &Input{
		Data:        data,
		RowMajor:    true,
		NumRows:     numRows,
		NumCols:     numCols,
		Labels:      labels,
		SampledCols: sampled,
	}
	in.Quantiles = BuildQuantiles(in, b.params.MaxBins)
	return in, nil
}

// sampleRows fills the row-id permutation for one tree: a bootstrap
// sample with replacement when bagging, the identity otherwise.
func (b *Builder) sampleRows(rows []int32, numRows, tree int) {
	if !b.params.Bootstrap {
		for i := range rows {
			rows[i] = int32(i)
		}
		return
	}
	rng := rand.New(rand.NewSource(b.params.Seed + int64(tree)*0x9e3779b9))
	for i := range rows {
		rows[i] = int32(rng.Intn(numRows))
	}
}

// growTree runs the level loop for one tree. Tree nodes are allocated as
// placeholders when their parent splits and finalized either by splitting
// in turn or by becoming a leaf.
func (b *Builder) growTree(in *Input, tr *treemodel.Tree, tree int) error {
	tr.Nodes = append(tr.Nodes[:0], treemodel.Node{})
	level := []NodeWorkItem{{NodeID: 0, Depth: 0, Begin: 0, Count: len(in.Rows)}}

	for len(level) > 0 {
		splits, err := b.levels.ComputeSplits(in, level, tree)
		if err != nil {
			return err
		}

		var next []NodeWorkItem
		for i, item := range level {
			sp := splits[i]
			if item.Depth >= b.params.MaxDepth || !sp.Valid() || sp.Gain <= b.params.MinImpurityDecrease {
				b.finalizeLeaf(in, tr, item)
				continue
			}

			left := partitionSplit(in, item, sp)
			if left == 0 || left == item.Count {
				// The histogram promised a two-sided split but the rows
				// all fall on one side (threshold collapsed onto a bin
				// edge with duplicated values). Degrade to a leaf.
				b.finalizeLeaf(in, tr, item)
				continue
			}

			li := len(tr.Nodes)
			tr.Nodes = append(tr.Nodes, treemodel.Node{}, treemodel.Node{})
			tr.Nodes[item.NodeID] = treemodel.Node{
				Feature:     sp.Feature,
				Threshold:   float64(sp.Threshold),
				Op:          treemodel.OpLE,
				DefaultLeft: true,
				LeftChild:   li,
				RightChild:  li + 1,
			}
			next = append(next,
				NodeWorkItem{NodeID: li, Depth: item.Depth + 1, Begin: item.Begin, Count: left},
				NodeWorkItem{NodeID: li + 1, Depth: item.Depth + 1, Begin: item.Begin + left, Count: item.Count - left},
			)
		}
		b.log.Debug("level processed",
			"tree", tree,
			"depth", level[0].Depth,
			"active", len(level),
			"next", len(next))
		level = next
	}
	return nil
}

// finalizeLeaf turns a node into a leaf: the class distribution of its
// rows for classification, their label mean for regression.
func (b *Builder) finalizeLeaf(in *Input, tr *treemodel.Tree, item NodeWorkItem) {
	if b.params.isClassification() {
		vec := make([]float64, b.levels.params.NumClasses)
		for r := item.Begin; r < item.Begin+item.Count; r++ {
			vec[int(in.Labels[in.Rows[r]])]++
		}
		if item.Count > 0 {
			for c := range vec {
				vec[c] /= float64(item.Count)
			}
		}
		tr.Nodes[item.NodeID] = treemodel.Node{IsLeaf: true, LeafVector: vec}
		return
	}

	sum := 0.0
	for r := item.Begin; r < item.Begin+item.Count; r++ {
		sum += float64(in.Labels[in.Rows[r]])
	}
	mean := 0.0
	if item.Count > 0 {
		mean = sum / float64(item.Count)
	}
	tr.Nodes[item.NodeID] = treemodel.Node{IsLeaf: true, LeafValue: mean}
}

// Model returns the trained ensemble.
func (b *Builder) Model() (*treemodel.Model, error) {
	if b.model == nil {
		return nil, errors.NewNotTrainedError("train.Builder", "Model")
	}
	return b.model, nil
}

// Forest imports the trained ensemble into an inference forest.
func (b *Builder) Forest(opts fil.ImportOptions) (*fil.Forest, error) {
	if b.model == nil {
		return nil, errors.NewNotTrainedError("train.Builder", "Forest")
	}
	return fil.Import(b.model, opts)
}
