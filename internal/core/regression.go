package core

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"siting_service/internal/domain/model"
)

const (
	defaultCVFolds = 3
	minLeafSize    = 2

	// cvSeed fixes fold assignment and subsampling so repeated training on the
	// same sample set yields the same model.
	cvSeed = 42
)

// searchGrid is the fixed hyperparameter candidate grid explored during
// training. Candidates are evaluated independently; grid order breaks ties.
var searchGrid = buildSearchGrid()

func buildSearchGrid() []model.Hyperparams {
	var grid []model.Hyperparams
	for _, depth := range []int{2, 3} {
		for _, rate := range []float64{0.1, 0.3} {
			for _, trees := range []int{50, 100} {
				for _, subsample := range []float64{0.7, 1.0} {
					grid = append(grid, model.Hyperparams{
						MaxDepth:     depth,
						LearningRate: rate,
						Trees:        trees,
						Subsample:    subsample,
					})
				}
			}
		}
	}
	return grid
}

// RegressionModel fits gradient-boosted regression trees mapping engineered
// feature vectors to composite scores, selecting hyperparameters by K-fold
// cross-validated R².
type RegressionModel struct {
	folds int
}

// NewRegressionModel builds a model trainer. Fold counts below 2 fall back to
// the default of 3.
func NewRegressionModel(folds int) *RegressionModel {
	if folds < 2 {
		folds = defaultCVFolds
	}
	return &RegressionModel{folds: folds}
}

// Folds returns the configured number of cross-validation folds.
func (r *RegressionModel) Folds() int {
	return r.folds
}

// Train searches the candidate grid with K-fold cross-validation and returns
// the model refitted on the full data with the best candidate's configuration.
// Candidates are evaluated by a worker pool and reduced by a single
// deterministic pick-best step; one candidate failing does not abort the
// search. Returns InsufficientDataError when the sample count is below the
// fold count and ModelTrainingError when every candidate fails.
func (r *RegressionModel) Train(ctx context.Context, schema []string, features [][]float64, targets []float64) (*TrainedModel, error) {
	n := len(features)
	if n != len(targets) {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("feature/target length mismatch: %d vs %d", n, len(targets))}
	}
	if n < r.folds {
		return nil, &InsufficientDataError{Samples: n, Required: r.folds}
	}

	folds := assignFolds(n, r.folds)

	type candidateResult struct {
		meanR2 float64
		err    error
	}
	results := make([]candidateResult, len(searchGrid))
	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := runtime.GOMAXPROCS(0)
	if workers > len(searchGrid) {
		workers = len(searchGrid)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				meanR2, err := crossValidate(searchGrid[idx], features, targets, folds, r.folds)
				results[idx] = candidateResult{meanR2: meanR2, err: err}
			}
		}()
	}
dispatch:
	for idx := range searchGrid {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reduce: best mean R², ties resolved to the earliest grid entry.
	best := -1
	for idx, res := range results {
		if res.err != nil {
			log.Printf("hyperparameter candidate %+v failed: %v", searchGrid[idx], res.err)
			continue
		}
		if best < 0 || res.meanR2 > results[best].meanR2 {
			best = idx
		}
	}
	if best < 0 {
		return nil, &ModelTrainingError{Candidates: len(searchGrid)}
	}

	chosen := searchGrid[best]
	ensemble := fitBoost(chosen, features, targets)
	return &TrainedModel{
		schema:      append([]string(nil), schema...),
		params:      chosen,
		cvR2:        results[best].meanR2,
		ensemble:    ensemble,
		importances: normalizeImportances(schema, ensemble.gains),
	}, nil
}

// TrainedModel is a fitted boosted ensemble plus its feature schema, the chosen
// hyperparameters and cross-validation diagnostics. Created per query and
// discarded after the response is built.
type TrainedModel struct {
	schema      []string
	params      model.Hyperparams
	cvR2        float64
	ensemble    *boostEnsemble
	importances map[string]float64
}

// Predict runs deterministic inference for one engineered feature vector.
func (m *TrainedModel) Predict(features []float64) float64 {
	return m.ensemble.predict(features)
}

// CVR2 is the mean cross-validated R² of the chosen candidate. A negative
// value indicates a poor fit and is reported as-is.
func (m *TrainedModel) CVR2() float64 {
	return m.cvR2
}

// Hyperparams returns the configuration selected by the grid search.
func (m *TrainedModel) Hyperparams() model.Hyperparams {
	return m.params
}

// Schema returns the ordered engineered feature names the model was fitted on.
func (m *TrainedModel) Schema() []string {
	return m.schema
}

// FeatureImportances maps every engineered feature name to its relative
// importance, normalized to sum to 1. Diagnostics only, never selection logic.
func (m *TrainedModel) FeatureImportances() map[string]float64 {
	return m.importances
}

// assignFolds deterministically shuffles sample indices and assigns them to k
// folds round-robin.
func assignFolds(n, k int) []int {
	fold := make([]int, n)
	perm := rand.New(rand.NewSource(cvSeed)).Perm(n)
	for i, p := range perm {
		fold[p] = i % k
	}
	return fold
}

// crossValidate trains one candidate on each fold complement and averages the
// held-out R². Numerical degeneracy (zero-variance holdout) fails the candidate.
func crossValidate(hp model.Hyperparams, features [][]float64, targets []float64, folds []int, k int) (float64, error) {
	r2s := make([]float64, 0, k)
	for f := 0; f < k; f++ {
		var trainX, holdX [][]float64
		var trainY, holdY []float64
		for i := range features {
			if folds[i] == f {
				holdX = append(holdX, features[i])
				holdY = append(holdY, targets[i])
			} else {
				trainX = append(trainX, features[i])
				trainY = append(trainY, targets[i])
			}
		}
		if len(holdY) == 0 || len(trainY) == 0 {
			return 0, fmt.Errorf("fold %d has an empty split", f)
		}

		ensemble := fitBoost(hp, trainX, trainY)
		estimates := make([]float64, len(holdX))
		for i, x := range holdX {
			estimates[i] = ensemble.predict(x)
		}
		r2 := stat.RSquaredFrom(estimates, holdY, nil)
		if math.IsNaN(r2) || math.IsInf(r2, 0) {
			return 0, fmt.Errorf("fold %d: held-out targets have zero variance", f)
		}
		r2s = append(r2s, r2)
	}
	return stat.Mean(r2s, nil), nil
}

// boostEnsemble is a gradient-boosted stack of regression trees fitted to
// residuals of the running prediction.
type boostEnsemble struct {
	base      float64
	shrinkage float64
	trees     []*treeNode
	gains     []float64 // accumulated split gain per feature index
}

func fitBoost(hp model.Hyperparams, features [][]float64, targets []float64) *boostEnsemble {
	n := len(targets)
	ensemble := &boostEnsemble{
		base:      stat.Mean(targets, nil),
		shrinkage: hp.LearningRate,
		gains:     make([]float64, len(features[0])),
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = ensemble.base
	}
	residual := make([]float64, n)
	rng := rand.New(rand.NewSource(cvSeed + 1))

	for t := 0; t < hp.Trees; t++ {
		for i := range residual {
			residual[i] = targets[i] - pred[i]
		}
		idx := sampleIndices(rng, n, hp.Subsample)
		root := buildTree(features, residual, idx, 0, hp.MaxDepth, ensemble.gains)
		ensemble.trees = append(ensemble.trees, root)
		for i := range pred {
			pred[i] += ensemble.shrinkage * predictNode(root, features[i])
		}
	}
	return ensemble
}

func (e *boostEnsemble) predict(x []float64) float64 {
	out := e.base
	for _, root := range e.trees {
		out += e.shrinkage * predictNode(root, x)
	}
	return out
}

// sampleIndices draws a deterministic subsample without replacement. Ratios at
// or above 1 use every index.
func sampleIndices(rng *rand.Rand, n int, ratio float64) []int {
	if ratio >= 1 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	m := int(math.Ceil(ratio * float64(n)))
	if m < 1 {
		m = 1
	}
	idx := rng.Perm(n)[:m]
	sort.Ints(idx)
	return idx
}

// treeNode is one node of a depth-bounded regression tree. Leaves carry the
// mean target of their samples.
type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
}

// buildTree grows a CART regression tree greedily, choosing at each node the
// split with the largest squared-error reduction. Gains are accumulated per
// feature for importance reporting.
func buildTree(features [][]float64, target []float64, idx []int, depth, maxDepth int, gains []float64) *treeNode {
	var sum, sumSq float64
	for _, i := range idx {
		sum += target[i]
		sumSq += target[i] * target[i]
	}
	count := float64(len(idx))
	mean := sum / count
	if depth >= maxDepth || len(idx) < 2*minLeafSize {
		return &treeNode{leaf: true, value: mean}
	}
	parentSSE := sumSq - sum*sum/count

	bestGain := 0.0
	bestFeature := -1
	var bestThreshold float64
	var bestSplit int
	var bestOrder []int

	nFeatures := len(features[idx[0]])
	for f := 0; f < nFeatures; f++ {
		order := append([]int(nil), idx...)
		sort.SliceStable(order, func(a, b int) bool {
			return features[order[a]][f] < features[order[b]][f]
		})

		var leftSum, leftSq float64
		for pos := 1; pos < len(order); pos++ {
			i := order[pos-1]
			leftSum += target[i]
			leftSq += target[i] * target[i]
			if pos < minLeafSize || len(order)-pos < minLeafSize {
				continue
			}
			if features[order[pos-1]][f] == features[order[pos]][f] {
				continue
			}
			leftN := float64(pos)
			rightN := count - leftN
			rightSum := sum - leftSum
			rightSq := sumSq - leftSq
			sse := (leftSq - leftSum*leftSum/leftN) + (rightSq - rightSum*rightSum/rightN)
			gain := parentSSE - sse
			if gain > bestGain+1e-12 {
				bestGain = gain
				bestFeature = f
				bestThreshold = (features[order[pos-1]][f] + features[order[pos]][f]) / 2
				bestSplit = pos
				bestOrder = order
			}
		}
	}

	if bestFeature < 0 {
		return &treeNode{leaf: true, value: mean}
	}
	gains[bestFeature] += bestGain

	leftIdx := append([]int(nil), bestOrder[:bestSplit]...)
	rightIdx := append([]int(nil), bestOrder[bestSplit:]...)
	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      buildTree(features, target, leftIdx, depth+1, maxDepth, gains),
		right:     buildTree(features, target, rightIdx, depth+1, maxDepth, gains),
	}
}

func predictNode(node *treeNode, x []float64) float64 {
	for !node.leaf {
		if x[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.value
}

// normalizeImportances rescales accumulated gains to sum to 1. When no split
// ever fired, importance is spread uniformly.
func normalizeImportances(schema []string, gains []float64) map[string]float64 {
	out := make(map[string]float64, len(schema))
	var total float64
	for _, g := range gains {
		total += g
	}
	for i, name := range schema {
		if total > 0 {
			out[name] = gains[i] / total
		} else {
			out[name] = 1 / float64(len(schema))
		}
	}
	return out
}
