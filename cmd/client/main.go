// cryptotree-client: holds the keys, encrypts samples and decrypts class scores
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/dhuynh95/cryptotree/core/ckkswrapper"
	"github.com/dhuynh95/cryptotree/cryptotree"
	"github.com/dhuynh95/cryptotree/transport"
	"github.com/dhuynh95/cryptotree/utils"

	"gonum.org/v1/gonum/floats"
)

var (
	indexFile  = flag.String("index", "index.json", "Index file written by extract")
	inputFile  = flag.String("input", "", "Samples as JSON [][]float64")
	outputFile = flag.String("output", "", "Optional JSON file for the predictions")
	connect    = flag.String("connect", "", "Server TCP address (empty: stdin/stdout)")
	logN       = flag.Int("logN", 14, "Ring dimension log2")
	logScale   = flag.Int("log-scale", 28, "Default scale log2")
	firstMod   = flag.Int("first-mod", 37, "Bit size of the outer primes")
	headroom   = flag.Int("headroom", 0, "Extra levels beyond the pipeline depth")
	verbose    = flag.Bool("verbose", false, "Verbose output")
)

// Prediction is one line of the client output.
type Prediction struct {
	Sample int       `json:"sample"`
	Scores []float64 `json:"scores"`
	Class  int       `json:"class"`
}

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	if *inputFile == "" {
		fmt.Fprintln(os.Stderr, "usage: client -index index.json -input samples.json [-connect host:port]")
		os.Exit(2)
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	idx, err := cryptotree.LoadIndex(*indexFile)
	if err != nil {
		return err
	}
	var samples [][]float64
	if err := utils.LoadJSON(*inputFile, &samples); err != nil {
		return err
	}

	cfg := utils.DefaultConfig()
	cfg.LogN, cfg.LogScale, cfg.FirstModBits, cfg.Headroom = *logN, *logScale, *firstMod, *headroom
	if err := utils.ValidateConfig(&cfg); err != nil {
		return err
	}
	if idx.Width() > 1<<(cfg.LogN-1) {
		return fmt.Errorf("model spans %d slots, logN=%d offers %d", idx.Width(), cfg.LogN, 1<<(cfg.LogN-1))
	}

	start := time.Now()
	he, err := ckkswrapper.NewHeContext(ckkswrapper.ParametersForDepth(cfg.LogN, cfg.LogScale, cfg.FirstModBits, idx.Depth+cfg.Headroom))
	if err != nil {
		return err
	}
	evk := he.EvaluationKeys(idx.Rotations)
	log("Keys ready in %v (logN=%d, levels=%d, %d rotations)", time.Since(start), cfg.LogN, he.Params.MaxLevel(), len(idx.Rotations))

	var r io.Reader = os.Stdin
	var w io.Writer = os.Stdout
	if *connect != "" {
		conn, err := net.Dial("tcp", *connect)
		if err != nil {
			return err
		}
		defer conn.Close()
		r, w = conn, conn
	}
	p := transport.NewProtocol(r, w)

	if err := p.SendSetup(he.Params, evk, idx.Digest); err != nil {
		return err
	}
	ready, err := p.ReceiveReady()
	if err != nil {
		return err
	}
	log("Server ready (%d classes, reduced=%v)", ready.NClasses, ready.Reduced)

	feat := cryptotree.NewFeaturizer(idx.Index, idx.NFeatures, he)
	var predictions []Prediction
	var latencies []time.Duration
	for i, x := range samples {
		t0 := time.Now()
		ct, err := feat.Encrypt(x)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if err := p.SendQuery(i, ct); err != nil {
			return err
		}
		id, cts, err := p.ReceiveResult()
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if id != i {
			return fmt.Errorf("asked for sample %d, got result %d", i, id)
		}
		scores, err := feat.Decrypt(cts, ready.Reduced)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		latencies = append(latencies, time.Since(t0))
		predictions = append(predictions, Prediction{Sample: i, Scores: scores, Class: floats.MaxIdx(scores)})
		log("Sample %d: class %d, scores %.4f", i, floats.MaxIdx(scores), scores)
	}
	if err := p.SendDone(); err != nil {
		return err
	}

	if len(latencies) > 0 {
		summary, err := utils.SummarizeLatencies(latencies)
		if err != nil {
			return err
		}
		utils.Output = os.Stderr
		utils.PrintLatencySummary("Round trip", summary)
	}
	if *outputFile != "" {
		return utils.SaveJSON(*outputFile, predictions)
	}
	for _, pr := range predictions {
		fmt.Fprintf(os.Stderr, "%d\t%d\t%v\n", pr.Sample, pr.Class, pr.Scores)
	}
	return nil
}

func log(format string, args ...interface{}) {
	if *verbose {
		fmt.Fprintf(os.Stderr, "[CLIENT] "+format+"\n", args...)
	}
}
