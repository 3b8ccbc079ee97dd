// Package fil is the forest inference engine: it evaluates pre-trained
// decision-tree ensembles, stored in one of three compact node encodings,
// against batches of feature rows. Forests are constructed either from
// raw node arrays (InitDense, InitSparse16, InitSparse8) or by importing
// an external treemodel.Model; once built they are immutable until Free.
package fil

import (
	"gonum.org/v1/gonum/mat"

	"github.com/forestml/grove/pkg/errors"
)

// StorageKind selects the node encoding of a forest.
type StorageKind int

const (
	// StorageAuto lets the importer pick an encoding from the model shape.
	StorageAuto StorageKind = iota
	StorageDense
	StorageSparse16
	StorageSparse8
)

func (s StorageKind) String() string {
	switch s {
	case StorageDense:
		return "dense"
	case StorageSparse16:
		return "sparse16"
	case StorageSparse8:
		return "sparse8"
	default:
		return "auto"
	}
}

// Algo selects how rows and trees are assigned to workers during
// prediction. The per-node semantics are identical across algorithms.
type Algo int

const (
	// AlgoAuto picks a strategy from forest depth, tree count and batch size.
	AlgoAuto Algo = iota
	// AlgoNaive gives each worker a span of rows; every row walks all trees.
	AlgoNaive
	// AlgoTreeReorg tiles rows and walks one tree at a time across a tile.
	AlgoTreeReorg
	// AlgoBatchTreeReorg additionally interleaves tree groups across tiles.
	AlgoBatchTreeReorg
)

func (a Algo) String() string {
	switch a {
	case AlgoNaive:
		return "naive"
	case AlgoTreeReorg:
		return "tree_reorg"
	case AlgoBatchTreeReorg:
		return "batch_tree_reorg"
	default:
		return "auto"
	}
}

// LeafAlgo tags how per-tree leaf outputs combine into a prediction.
type LeafAlgo int

const (
	// LeafFloat sums scalar leaf outputs: regression or binary margins.
	LeafFloat LeafAlgo = iota
	// LeafGrovePerClass sums tree t's output into class bucket t mod classes.
	LeafGrovePerClass
	// LeafCategorical reads a class index from each leaf and tallies votes.
	LeafCategorical
	// LeafVector reads an index into the forest's shared per-class vector
	// table and accumulates the referenced vector.
	LeafVector
)

// ForestConfig is the parameter block accepted by the Init constructors.
type ForestConfig struct {
	// Depth is the tree depth of a dense forest (ignored for sparse).
	Depth    int
	NumTrees int
	NumCols  int

	Algo       Algo
	LeafAlgo   LeafAlgo
	NumClasses int

	// Output transform pipeline, applied in fixed order: average, bias,
	// sigmoid, softmax, class conversion.
	Average     bool
	Sigmoid     bool
	Softmax     bool
	ClassOutput bool
	GlobalBias  float32
	// Threshold converts a binary score to a class when ClassOutput is set.
	Threshold float32

	// RowsPerTile tunes how many rows a worker tile covers for the
	// reorganizing algorithms. Zero picks the default.
	RowsPerTile int
}

const defaultRowsPerTile = 64

// Forest is an immutable ensemble ready for prediction. Exactly one of
// the node slices is populated, matching Kind.
type Forest struct {
	cfg  ForestConfig
	kind StorageKind

	dense       []DenseNode
	denseStride int

	sparse16  []SparseNode16
	sparse8   []SparseNode8
	treeRoots []int32

	cats         CatSets
	vectorLeaves []float32 // NumVectorLeaves x NumClasses, row-major

	freed bool
}

// Kind returns the node encoding backing the forest.
func (f *Forest) Kind() StorageKind { return f.kind }

// Config returns a copy of the forest's parameter block.
func (f *Forest) Config() ForestConfig { return f.cfg }

// MaxDenseDepth is the deepest forest the dense encoding accepts. The
// implicit layout costs 2^(depth+1)-1 slots per tree whatever the tree's
// actual shape, so unbounded depth would turn a degenerate chain into an
// absurd allocation; deeper forests must use a sparse encoding.
const MaxDenseDepth = 24

// InitDense constructs a forest from a dense node array. The array holds
// cfg.NumTrees complete binary trees of cfg.Depth, each occupying
// 2^(depth+1)-1 consecutive slots. cats and vectorLeaves may be nil when
// the forest has no categorical nodes or vector leaves.
func InitDense(cfg ForestConfig, nodes []DenseNode, cats *CatSets, vectorLeaves []float32) (*Forest, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if cfg.Depth > MaxDenseDepth {
		return nil, errors.NewUnsupportedModelErrorf("fil.InitDense",
			"depth %d exceeds the dense storage limit of %d; use a sparse encoding", cfg.Depth, MaxDenseDepth)
	}
	stride := (1 << (cfg.Depth + 1)) - 1
	if len(nodes) != cfg.NumTrees*stride {
		return nil, errors.NewDimensionError("fil.InitDense", cfg.NumTrees*stride, len(nodes), 0)
	}
	f := &Forest{cfg: cfg, kind: StorageDense, dense: nodes, denseStride: stride}
	f.attach(cats, vectorLeaves)
	return f, nil
}

// InitSparse16 constructs a forest from a shared sparse16 node array and
// per-tree root offsets.
func InitSparse16(cfg ForestConfig, treeRoots []int32, nodes []SparseNode16, cats *CatSets, vectorLeaves []float32) (*Forest, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if len(treeRoots) != cfg.NumTrees {
		return nil, errors.NewDimensionError("fil.InitSparse16", cfg.NumTrees, len(treeRoots), 0)
	}
	f := &Forest{cfg: cfg, kind: StorageSparse16, sparse16: nodes, treeRoots: treeRoots}
	f.attach(cats, vectorLeaves)
	return f, nil
}

// InitSparse8 constructs a forest from a shared sparse8 node array and
// per-tree root offsets. Capacity limits are the caller's responsibility;
// the importer checks them before building nodes.
func InitSparse8(cfg ForestConfig, treeRoots []int32, nodes []SparseNode8, cats *CatSets, vectorLeaves []float32) (*Forest, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if len(treeRoots) != cfg.NumTrees {
		return nil, errors.NewDimensionError("fil.InitSparse8", cfg.NumTrees, len(treeRoots), 0)
	}
	f := &Forest{cfg: cfg, kind: StorageSparse8, sparse8: nodes, treeRoots: treeRoots}
	f.attach(cats, vectorLeaves)
	return f, nil
}

func (f *Forest) attach(cats *CatSets, vectorLeaves []float32) {
	if cats != nil {
		f.cats = *cats
	}
	if f.cats.FeatureCounts == nil {
		f.cats.FeatureCounts = make([]int32, f.cfg.NumCols)
	}
	f.vectorLeaves = vectorLeaves
}

// validateConfig rejects unsupported configurations before anything is
// built (nothing is partially constructed on error).
func validateConfig(cfg *ForestConfig) error {
	const op = "fil.Init"
	if cfg.NumTrees <= 0 {
		return errors.NewValidationError("NumTrees", "must be positive", cfg.NumTrees)
	}
	if cfg.NumCols <= 0 {
		return errors.NewValidationError("NumCols", "must be positive", cfg.NumCols)
	}
	if cfg.Depth < 0 {
		return errors.NewValidationError("Depth", "must be non-negative", cfg.Depth)
	}
	if cfg.RowsPerTile == 0 {
		cfg.RowsPerTile = defaultRowsPerTile
	}
	if cfg.RowsPerTile < 1 {
		return errors.NewValidationError("RowsPerTile", "must be positive", cfg.RowsPerTile)
	}
	if cfg.Sigmoid && cfg.Softmax {
		return errors.NewUnsupportedModelError(op, "sigmoid and softmax are mutually exclusive")
	}
	switch cfg.LeafAlgo {
	case LeafFloat:
		if cfg.NumClasses > 2 {
			return errors.NewUnsupportedModelError(op, "scalar leaves support at most 2 classes; use grove-per-class or vector leaves")
		}
		if cfg.NumClasses == 0 {
			cfg.NumClasses = 1
		}
	case LeafGrovePerClass:
		if cfg.NumClasses < 2 {
			return errors.NewUnsupportedModelError(op, "grove-per-class requires at least 2 classes")
		}
		if cfg.NumTrees%cfg.NumClasses != 0 {
			return errors.NewUnsupportedModelErrorf(op, "tree count %d not divisible by class count %d", cfg.NumTrees, cfg.NumClasses)
		}
	case LeafCategorical, LeafVector:
		if cfg.NumClasses < 2 {
			return errors.NewUnsupportedModelError(op, "class-index and vector leaves require at least 2 classes")
		}
	default:
		return errors.NewValidationError("LeafAlgo", "unknown leaf algorithm", cfg.LeafAlgo)
	}
	if cfg.Softmax && cfg.NumClasses < 2 {
		return errors.NewUnsupportedModelError(op, "softmax requires a multi-class forest")
	}
	if cfg.Sigmoid && cfg.NumClasses > 2 {
		return errors.NewUnsupportedModelError(op, "sigmoid applies to scalar or binary outputs only")
	}
	return nil
}

// Free releases the forest's buffers. The forest must not be used for
// prediction afterwards. Free is idempotent.
func (f *Forest) Free() {
	f.dense = nil
	f.sparse16 = nil
	f.sparse8 = nil
	f.treeRoots = nil
	f.cats = CatSets{}
	f.vectorLeaves = nil
	f.freed = true
}

// numOutputClasses is the width of a probability row.
func (f *Forest) numOutputClasses() int {
	if f.cfg.NumClasses >= 2 {
		return f.cfg.NumClasses
	}
	return 2
}

// accWidth is the per-row accumulator width during traversal.
func (f *Forest) accWidth() int {
	if f.cfg.LeafAlgo == LeafFloat {
		return 1
	}
	return f.cfg.NumClasses
}

// Predict evaluates the forest on X and returns one prediction per row:
// a regression value or class label when proba is false, per-class
// probabilities when proba is true.
func (f *Forest) Predict(X mat.Matrix, proba bool) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != f.cfg.NumCols {
		return nil, errors.NewDimensionError("fil.Predict", f.cfg.NumCols, cols, 1)
	}

	data := make([]float32, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = float32(X.At(i, j))
		}
	}

	outCols := 1
	if proba {
		outCols = f.numOutputClasses()
	}
	dst := make([]float32, rows*outCols)
	if err := f.PredictBatch(dst, data, rows, proba); err != nil {
		return nil, err
	}

	out := mat.NewDense(rows, outCols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < outCols; j++ {
			out.Set(i, j, float64(dst[i*outCols+j]))
		}
	}
	return out, nil
}

// PredictBatch evaluates the forest on numRows row-major float32 rows and
// writes predictions to dst: numRows values when proba is false,
// numRows x numOutputClasses probabilities when proba is true.
func (f *Forest) PredictBatch(dst []float32, data []float32, numRows int, proba bool) error {
	if f.freed {
		return errors.New("grove: fil.PredictBatch: forest already freed")
	}
	if len(data) != numRows*f.cfg.NumCols {
		return errors.NewDimensionError("fil.PredictBatch", numRows*f.cfg.NumCols, len(data), 0)
	}
	if proba && f.cfg.NumClasses <= 1 {
		return errors.NewUnsupportedModelError("fil.PredictBatch", "probability output requires a classification forest")
	}
	outCols := 1
	if proba {
		outCols = f.numOutputClasses()
	}
	if len(dst) != numRows*outCols {
		return errors.NewDimensionError("fil.PredictBatch", numRows*outCols, len(dst), 0)
	}

	raw := make([]float32, numRows*f.accWidth())
	f.infer(raw, data, numRows)
	f.finalize(dst, raw, numRows, proba)
	return nil
}
