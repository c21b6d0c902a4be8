// cryptotree-infer: single-process encrypted inference with timing and op counts
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"
	"github.com/dhuynh95/cryptotree/cryptotree"
	"github.com/dhuynh95/cryptotree/nn/layers"
	"github.com/dhuynh95/cryptotree/tree"
	"github.com/dhuynh95/cryptotree/utils"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"gonum.org/v1/gonum/floats"
)

var (
	forestFile = flag.String("forest", "", "Forest JSON file (empty: built-in demo tree)")
	inputFile  = flag.String("input", "", "Samples as JSON [][]float64 (empty: random)")
	samples    = flag.Int("samples", 8, "Random samples in demo mode")
	logN       = flag.Int("logN", 14, "Ring dimension log2")
	logScale   = flag.Int("log-scale", 28, "Default scale log2")
	firstMod   = flag.Int("first-mod", 37, "Bit size of the outer primes")
	activation = flag.String("activation", "sigmoid", "Activation: sigmoid, tanh")
	degree     = flag.Int("degree", 16, "Polynomial degree")
	dilation   = flag.Float64("dilation", 16, "Activation dilation factor")
	maxLeaves  = flag.Int("max-leaves", 0, "Leaf block per tree (0: largest tree)")
	reduce     = flag.Bool("reduce", true, "Sum class slots homomorphically")
	oracleTol  = flag.Float64("oracle", 0, "Check every stage against clear arithmetic with this tolerance (0: off)")
	seed       = flag.Int64("seed", 42, "Random seed")
	verbose    = flag.Bool("verbose", true, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              Cryptotree Encrypted Inference                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	stats := &utils.TimingStats{}
	totalStart := time.Now()

	cfg := utils.DefaultConfig()
	cfg.LogN, cfg.LogScale, cfg.FirstModBits = *logN, *logScale, *firstMod
	cfg.Activation, cfg.Degree, cfg.Dilation, cfg.MaxLeaves = *activation, *degree, *dilation, *maxLeaves
	if err := utils.ValidateConfig(&cfg); err != nil {
		return err
	}

	ff, err := loadForest()
	if err != nil {
		return err
	}
	xs, err := loadSamples(ff.Trees[0].NFeatures)
	if err != nil {
		return err
	}

	// Model
	var bundle *cryptotree.WeightBundle
	err = stats.Time(&stats.ModelInitTime, func() error {
		maker, err := tree.NewMaker(&cfg, true)
		if err != nil {
			return err
		}
		forest, err := tree.NewNeuralRandomForest(ff.Trees, maker, ff.Weights, ff.Bias, cfg.MaxLeaves)
		if err != nil {
			return err
		}
		bundle, err = cryptotree.ExtractForest(forest, layers.Poly{Name: cfg.Activation, Coeffs: maker.Coeffs, Tol: cfg.Tol})
		return err
	})
	if err != nil {
		return err
	}
	depth, err := cryptotree.PipelineDepth(bundle.Activation)
	if err != nil {
		return err
	}
	fmt.Printf("Model: %d trees, %d leaves per tree, %d classes, width %d, depth %d\n",
		bundle.NTrees, bundle.NLeaves, bundle.NClasses, bundle.Width(), depth)

	// Keys
	var he *ckkswrapper.HeContext
	var backend *layers.WrappedEvaluator
	err = stats.Time(&stats.HEInitTime, func() error {
		var err error
		he, err = ckkswrapper.NewHeContext(ckkswrapper.ParametersForDepth(cfg.LogN, cfg.LogScale, cfg.FirstModBits, depth+cfg.Headroom))
		if err != nil {
			return err
		}
		backend = layers.WrapBackend(he.GenServerKit(cryptotree.Rotations(bundle, *reduce)))
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("HE: logN=%d, levels=%d, slots=%d\n", he.Params.LogN(), he.Params.MaxLevel(), he.Params.MaxSlots())

	eval, err := cryptotree.NewEvaluator(backend, bundle)
	if err != nil {
		return err
	}
	if *oracleTol > 0 {
		oracle := ckkswrapper.NewOracle(he, *oracleTol)
		oracle.Reports = func(label string, maxDiff float64, idx int) {
			fmt.Printf("  [oracle] %-22s max diff %.2e at slot %d\n", label, maxDiff, idx)
		}
		eval = eval.WithOracle(oracle)
	}
	feat := cryptotree.NewFeaturizer(bundle.Index, bundle.NFeatures, he)

	// Inference
	agree := 0
	var latencies []time.Duration
	for i, x := range xs {
		sampleStart := time.Now()
		var encrypted *rlwe.Ciphertext
		if err := stats.Time(&stats.EncryptionTime, func() error {
			encrypted, err = feat.Encrypt(x)
			return err
		}); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		outs, err := eval.EvaluateTimed(encrypted, *reduce, stats)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		var scores []float64
		if err := stats.Time(&stats.DecryptionTime, func() error {
			scores, err = feat.Decrypt(outs, *reduce)
			return err
		}); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		latencies = append(latencies, time.Since(sampleStart))

		want, err := ff.Predict(x)
		if err != nil {
			return err
		}
		got, expected := floats.MaxIdx(scores), floats.MaxIdx(want)
		if got == expected {
			agree++
		}
		fmt.Printf("Sample %d: encrypted class %d, plain class %d, scores %.4f\n", i, got, expected, scores)
	}
	stats.TotalTime = time.Since(totalStart)

	fmt.Printf("\nAgreement with the plain forest: %d/%d\n", agree, len(xs))
	backend.PrintCounters("inference")
	utils.PrintTimingStats(stats, len(xs))
	summary, err := utils.SummarizeLatencies(latencies)
	if err != nil {
		return err
	}
	utils.PrintLatencySummary("Per-sample latency", summary)
	return nil
}

func loadForest() (*tree.ForestFile, error) {
	if *forestFile != "" {
		return tree.LoadForest(*forestFile)
	}
	fmt.Println("\nNo forest file. Running demo mode...")
	return &tree.ForestFile{Trees: []*tree.DecisionTree{demoTree()}}, nil
}

// demoTree splits feature 0 at 0.5, then feature 1 at 0.3 on the right.
func demoTree() *tree.DecisionTree {
	return &tree.DecisionTree{
		ChildrenLeft:  []int{1, tree.Leaf, 3, tree.Leaf, tree.Leaf},
		ChildrenRight: []int{2, tree.Leaf, 4, tree.Leaf, tree.Leaf},
		Feature:       []int{0, -2, 1, -2, -2},
		Threshold:     []float64{0.5, -2, 0.3, -2, -2},
		Value:         [][]float64{{10, 3}, {5, 0}, {5, 3}, {1, 3}, {4, 0}},
		NFeatures:     2,
		NClasses:      2,
	}
}

func loadSamples(nFeatures int) ([][]float64, error) {
	var xs [][]float64
	if *inputFile != "" {
		if err := utils.LoadJSON(*inputFile, &xs); err != nil {
			return nil, err
		}
		return xs, nil
	}
	rng := rand.New(rand.NewSource(*seed))
	xs = make([][]float64, *samples)
	for i := range xs {
		xs[i] = make([]float64, nFeatures)
		for j := range xs[i] {
			xs[i][j] = rng.Float64()
		}
	}
	return xs, nil
}
