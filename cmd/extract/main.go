// cryptotree-extract: packs a fitted forest into the server bundle and the client index
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dhuynh95/cryptotree/cryptotree"
	"github.com/dhuynh95/cryptotree/nn/layers"
	"github.com/dhuynh95/cryptotree/tree"
	"github.com/dhuynh95/cryptotree/utils"
)

var (
	forestFile  = flag.String("forest", "", "Forest JSON file (scikit-learn tree_ export)")
	bundleFile  = flag.String("bundle", "bundle.json", "Output weight bundle (server)")
	indexFile   = flag.String("index", "index.json", "Output index file (client)")
	samplesFile = flag.String("samples", "", "Optional JSON [][]float64 used to check the activation domain")
	activation  = flag.String("activation", "sigmoid", "Activation: sigmoid, tanh")
	degree      = flag.Int("degree", 16, "Polynomial degree")
	dilation    = flag.Float64("dilation", 16, "Activation dilation factor")
	bound       = flag.Float64("bound", 1, "Polynomial fit interval [-bound, bound]")
	eps         = flag.Float64("eps", 0.5, "Matcher margin")
	tol         = flag.Float64("tol", 1e-6, "Coefficients below tol are pruned")
	maxLeaves   = flag.Int("max-leaves", 0, "Leaf block per tree (0: largest tree)")
	treeWeights = flag.String("weights", "", "Comma separated tree weights, overriding the forest file")
	forestBias  = flag.String("bias", "", "Comma separated class bias, overriding the forest file")
	verbose     = flag.Bool("verbose", false, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	if *forestFile == "" {
		fmt.Fprintln(os.Stderr, "usage: extract -forest trees.json [-bundle bundle.json] [-index index.json]")
		os.Exit(2)
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := utils.DefaultConfig()
	cfg.Activation = *activation
	cfg.Degree = *degree
	cfg.Dilation = *dilation
	cfg.Bound = *bound
	cfg.Eps = *eps
	cfg.Tol = *tol
	cfg.MaxLeaves = *maxLeaves
	if err := utils.ValidateConfig(&cfg); err != nil {
		return err
	}

	ff, err := tree.LoadForest(*forestFile)
	if err != nil {
		return err
	}
	log("Loaded %d trees", len(ff.Trees))
	if *treeWeights != "" {
		if ff.Weights, err = utils.ParseFloats(*treeWeights); err != nil {
			return fmt.Errorf("-weights: %w", err)
		}
	}
	if *forestBias != "" {
		if ff.Bias, err = utils.ParseFloats(*forestBias); err != nil {
			return fmt.Errorf("-bias: %w", err)
		}
	}

	maker, err := tree.NewMaker(&cfg, true)
	if err != nil {
		return err
	}
	forest, err := tree.NewNeuralRandomForest(ff.Trees, maker, ff.Weights, ff.Bias, cfg.MaxLeaves)
	if err != nil {
		return err
	}
	log("Neural forest: %d nodes, %d leaves, %d classes per tree", forest.NNodes, forest.NLeaves, forest.NClasses)

	if *samplesFile != "" {
		if err := checkDomain(forest, cfg.Bound); err != nil {
			return err
		}
	}

	bundle, err := cryptotree.ExtractForest(forest, layers.Poly{Name: cfg.Activation, Coeffs: maker.Coeffs, Tol: cfg.Tol})
	if err != nil {
		return err
	}
	if err := cryptotree.SaveBundle(*bundleFile, bundle); err != nil {
		return err
	}
	if err := cryptotree.SaveIndex(*indexFile, bundle); err != nil {
		return err
	}
	depth, err := cryptotree.PipelineDepth(bundle.Activation)
	if err != nil {
		return err
	}
	log("Wrote %s and %s (width %d, depth %d, digest %s)", *bundleFile, *indexFile, bundle.Width(), depth, bundle.Digest())
	return nil
}

// checkDomain warns about linear outputs outside the fitted interval. The
// run continues: the forest is still valid, only less accurate.
func checkDomain(forest *tree.NeuralRandomForest, bound float64) error {
	var xs [][]float64
	if err := utils.LoadJSON(*samplesFile, &xs); err != nil {
		return err
	}
	violations, err := forest.CheckOutputRange(xs, bound)
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		log("All %d samples stay within [-%g, %g]", len(xs), bound, bound)
		return nil
	}
	fmt.Fprintf(os.Stderr, "Warning: %d linear outputs outside [-%g, %g]\n", len(violations), bound, bound)
	for i, v := range violations {
		if i == 10 {
			fmt.Fprintf(os.Stderr, "  ... %d more\n", len(violations)-i)
			break
		}
		fmt.Fprintf(os.Stderr, "  tree %d sample %d %s row %d: %g\n", v.Tree, v.Sample, v.Stage, v.Row, v.Value)
	}
	return nil
}

func log(format string, args ...interface{}) {
	if *verbose {
		fmt.Fprintf(os.Stderr, "[EXTRACT] "+format+"\n", args...)
	}
}
