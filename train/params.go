// Package train builds decision-tree ensembles level by level: every
// active node of the current depth is processed in one batched pass that
// builds per-feature histograms, selects the best split per node and
// repartitions the node's rows in place. The produced treemodel.Model
// feeds straight into fil.Import for inference.
package train

import (
	"github.com/forestml/grove/pkg/errors"
)

// Objective selects the split criterion.
type Objective int

const (
	// ObjectiveGini grows classification trees by Gini impurity decrease.
	ObjectiveGini Objective = iota
	// ObjectiveEntropy grows classification trees by information gain.
	ObjectiveEntropy
	// ObjectiveMSE grows regression trees by variance reduction.
	ObjectiveMSE
)

func (o Objective) String() string {
	switch o {
	case ObjectiveGini:
		return "gini"
	case ObjectiveEntropy:
		return "entropy"
	case ObjectiveMSE:
		return "mse"
	default:
		return "unknown"
	}
}

// Params contains all training hyperparameters.
type Params struct {
	NumTrees int
	MaxDepth int

	// Histogram parameters.
	MaxBins int

	// Split acceptance.
	MinSamplesLeaf      int
	MinImpurityDecrease float64

	// MaxFeaturesFrac is the fraction of columns sampled per node; 1.0
	// uses all features in order, anything lower selects them through the
	// deterministic seeded permutation.
	MaxFeaturesFrac float64

	// Bootstrap samples rows with replacement per tree.
	Bootstrap bool

	Objective  Objective
	NumClasses int // classification only; 0 infers from the labels

	Seed int64

	// Work distribution tuning.
	RowsPerBlock int
	ColsPerBlock int
}

const (
	defaultNumTrees       = 100
	defaultMaxDepth       = 16
	defaultMaxBins        = 128
	defaultMinSamplesLeaf = 1
	defaultRowsPerBlock   = 256
	defaultColsPerBlock   = 32
)

// withDefaults fills zero values the way the public constructors expect.
func (p Params) withDefaults() Params {
	if p.NumTrees == 0 {
		p.NumTrees = defaultNumTrees
	}
	if p.MaxDepth == 0 {
		p.MaxDepth = defaultMaxDepth
	}
	if p.MaxBins == 0 {
		p.MaxBins = defaultMaxBins
	}
	if p.MinSamplesLeaf == 0 {
		p.MinSamplesLeaf = defaultMinSamplesLeaf
	}
	if p.MaxFeaturesFrac == 0 {
		p.MaxFeaturesFrac = 1.0
	}
	if p.RowsPerBlock == 0 {
		p.RowsPerBlock = defaultRowsPerBlock
	}
	if p.ColsPerBlock == 0 {
		p.ColsPerBlock = defaultColsPerBlock
	}
	return p
}

func (p *Params) validate() error {
	if p.NumTrees < 1 {
		return errors.NewValidationError("NumTrees", "must be positive", p.NumTrees)
	}
	if p.MaxDepth < 1 {
		return errors.NewValidationError("MaxDepth", "must be positive", p.MaxDepth)
	}
	if p.MaxBins < 2 {
		return errors.NewValidationError("MaxBins", "need at least 2 bins", p.MaxBins)
	}
	if p.MaxFeaturesFrac <= 0 || p.MaxFeaturesFrac > 1 {
		return errors.NewValidationError("MaxFeaturesFrac", "must be in (0, 1]", p.MaxFeaturesFrac)
	}
	if p.MinSamplesLeaf < 1 {
		return errors.NewValidationError("MinSamplesLeaf", "must be positive", p.MinSamplesLeaf)
	}
	if p.MinImpurityDecrease < 0 {
		return errors.NewValidationError("MinImpurityDecrease", "must be non-negative", p.MinImpurityDecrease)
	}
	if p.Objective == ObjectiveMSE && p.NumClasses > 0 {
		return errors.NewValidationError("NumClasses", "regression objective takes no class count", p.NumClasses)
	}
	return nil
}

func (p *Params) isClassification() bool {
	return p.Objective != ObjectiveMSE
}
