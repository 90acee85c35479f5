package detect

import (
	"math"
	"math/rand"
)

const (
	defaultForestTrees     = 100
	defaultForestSubsample = 64

	// outlierScoreThreshold is the conventional isolation-forest cutoff:
	// scores approach 1 for isolated points and 0.5 for average ones.
	outlierScoreThreshold = 0.65
)

// isolationForest scores univariate outliers without any labelled history.
// Trees are rebuilt per batch; the RNG is seeded once per detector so a
// given batch always produces the same scores.
type isolationForest struct {
	trees     int
	subsample int
	rng       *rand.Rand
}

type isoNode struct {
	split float64
	left  *isoNode
	right *isoNode
	size  int
}

func newIsolationForest(trees, subsample int) *isolationForest {
	if trees <= 0 {
		trees = defaultForestTrees
	}
	if subsample <= 0 {
		subsample = defaultForestSubsample
	}
	return &isolationForest{
		trees:     trees,
		subsample: subsample,
		rng:       rand.New(rand.NewSource(1)),
	}
}

// Scores returns an anomaly score in (0,1) per input value. Fewer than three
// values cannot be meaningfully isolated and score zero.
func (f *isolationForest) Scores(values []float64) []float64 {
	scores := make([]float64, len(values))
	if len(values) < 3 {
		return scores
	}

	sample := values
	if len(sample) > f.subsample {
		sample = append([]float64(nil), values...)
		f.rng.Shuffle(len(sample), func(i, j int) {
			sample[i], sample[j] = sample[j], sample[i]
		})
		sample = sample[:f.subsample]
	}

	maxDepth := int(math.Ceil(math.Log2(float64(len(sample))))) + 2
	roots := make([]*isoNode, f.trees)
	for i := range roots {
		roots[i] = f.buildTree(append([]float64(nil), sample...), 0, maxDepth)
	}

	norm := avgPathLength(len(sample))
	for i, v := range values {
		total := 0.0
		for _, root := range roots {
			total += pathLength(root, v, 0)
		}
		mean := total / float64(f.trees)
		scores[i] = math.Pow(2, -mean/norm)
	}
	return scores
}

func (f *isolationForest) buildTree(values []float64, depth, maxDepth int) *isoNode {
	if len(values) <= 1 || depth >= maxDepth {
		return &isoNode{size: len(values)}
	}

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min == max {
		return &isoNode{size: len(values)}
	}

	split := min + f.rng.Float64()*(max-min)
	var left, right []float64
	for _, v := range values {
		if v < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}

	return &isoNode{
		split: split,
		left:  f.buildTree(left, depth+1, maxDepth),
		right: f.buildTree(right, depth+1, maxDepth),
		size:  len(values),
	}
}

func pathLength(node *isoNode, value float64, depth int) float64 {
	if node.left == nil && node.right == nil {
		return float64(depth) + avgPathLength(node.size)
	}
	if value < node.split {
		return pathLength(node.left, value, depth+1)
	}
	return pathLength(node.right, value, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search, used to normalise isolation depths.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}
