package cryptotree

import (
	"fmt"

	"github.com/dhuynh95/cryptotree/nn/layers"
	"github.com/dhuynh95/cryptotree/utils"
)

// ActivationFile is the persisted polynomial.
type ActivationFile struct {
	Name   string    `json:"name"`
	Coeffs []float64 `json:"coeffs"`
	Tol    float64   `json:"tol"`
}

// BundleFile is the server's model file.
type BundleFile struct {
	Digest     string              `json:"digest"`
	NTrees     int                 `json:"n_trees"`
	NLeaves    int                 `json:"n_leaves"`
	NClasses   int                 `json:"n_classes"`
	NFeatures  int                 `json:"n_features"`
	Index      []int               `json:"index"`
	Activation ActivationFile      `json:"activation"`
	Weights    []*utils.WeightData `json:"weights"`
}

// IndexFile is the client's view of the model: enough to featurize, build
// parameters and generate the rotation keys, and nothing about thresholds
// or leaf values.
type IndexFile struct {
	Digest     string `json:"digest"`
	NTrees     int    `json:"n_trees"`
	NLeaves    int    `json:"n_leaves"`
	NClasses   int    `json:"n_classes"`
	NFeatures  int    `json:"n_features"`
	Index      []int  `json:"index"`
	Depth      int    `json:"depth"`
	Rotations  []int  `json:"rotations"`
	Activation string `json:"activation"`
}

// Width is the number of slots the model occupies.
func (f *IndexFile) Width() int {
	return len(f.Index)
}

// Verify recomputes the digest.
func (f *IndexFile) Verify() error {
	if got := digest(f.NTrees, f.NLeaves, f.NClasses, f.NFeatures, f.Index); got != f.Digest {
		return fmt.Errorf("index digest %s, file says %s: %w", got, f.Digest, utils.ErrPrecondition)
	}
	return nil
}

// SaveBundle writes b to path as JSON.
func SaveBundle(path string, b *WeightBundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	w1, err := utils.RowsToWeightData("w1", b.W1)
	if err != nil {
		return err
	}
	w2, err := utils.RowsToWeightData("w2", b.W2)
	if err != nil {
		return err
	}
	b2, err := utils.RowsToWeightData("b2", b.B2)
	if err != nil {
		return err
	}
	f := BundleFile{
		Digest:    b.Digest(),
		NTrees:    b.NTrees,
		NLeaves:   b.NLeaves,
		NClasses:  b.NClasses,
		NFeatures: b.NFeatures,
		Index:     b.Index,
		Activation: ActivationFile{
			Name:   b.Activation.Name,
			Coeffs: b.Activation.Coeffs,
			Tol:    b.Activation.Tol,
		},
		Weights: []*utils.WeightData{
			utils.VectorToWeightData("b0", b.B0),
			w1,
			utils.VectorToWeightData("b1", b.B1),
			w2,
			b2,
		},
	}
	return utils.SaveJSON(path, f)
}

// LoadBundle reads a bundle written by SaveBundle and checks its digest.
func LoadBundle(path string) (*WeightBundle, error) {
	var f BundleFile
	if err := utils.LoadJSON(path, &f); err != nil {
		return nil, err
	}
	byName := map[string]*utils.WeightData{}
	for _, wd := range f.Weights {
		byName[wd.Name] = wd
	}
	b := &WeightBundle{
		NTrees:    f.NTrees,
		NLeaves:   f.NLeaves,
		NClasses:  f.NClasses,
		NFeatures: f.NFeatures,
		Index:     f.Index,
		Activation: layers.Poly{
			Name:   f.Activation.Name,
			Coeffs: f.Activation.Coeffs,
			Tol:    f.Activation.Tol,
		},
	}
	var err error
	if b.B0, err = byName["b0"].Vector(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if b.W1, err = byName["w1"].Rows(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if b.B1, err = byName["b1"].Vector(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if b.W2, err = byName["w2"].Rows(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if b.B2, err = byName["b2"].Rows(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if got := b.Digest(); got != f.Digest {
		return nil, fmt.Errorf("%s: digest %s, file says %s: %w", path, got, f.Digest, utils.ErrPrecondition)
	}
	return b, nil
}

// NewIndexFile derives the client file from b.
func NewIndexFile(b *WeightBundle) (*IndexFile, error) {
	depth, err := PipelineDepth(b.Activation)
	if err != nil {
		return nil, err
	}
	return &IndexFile{
		Digest:     b.Digest(),
		NTrees:     b.NTrees,
		NLeaves:    b.NLeaves,
		NClasses:   b.NClasses,
		NFeatures:  b.NFeatures,
		Index:      append([]int{}, b.Index...),
		Depth:      depth,
		Rotations:  Rotations(b, true),
		Activation: b.Activation.Name,
	}, nil
}

// SaveIndex writes the client file for b.
func SaveIndex(path string, b *WeightBundle) error {
	f, err := NewIndexFile(b)
	if err != nil {
		return err
	}
	return utils.SaveJSON(path, f)
}

// LoadIndex reads and verifies a client file.
func LoadIndex(path string) (*IndexFile, error) {
	var f IndexFile
	if err := utils.LoadJSON(path, &f); err != nil {
		return nil, err
	}
	if err := f.Verify(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}
