package utils

import (
	"encoding/json"
	"fmt"
	"os"
)

// WeightData represents a serializable vector or matrix
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// SaveJSON writes v as indented JSON to filepath.
func SaveJSON(filepath string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath, err)
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadJSON reads filepath and unmarshals it into v.
func LoadJSON(filepath string, v interface{}) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath, err)
	}
	return nil
}

// VectorToWeightData converts a vector to serializable weight data
func VectorToWeightData(name string, v []float64) *WeightData {
	return &WeightData{
		Name:  name,
		Shape: []int{len(v)},
		Data:  append([]float64{}, v...), // copy
	}
}

// RowsToWeightData stores equal-length rows as a 2-D weight block.
func RowsToWeightData(name string, rows [][]float64) (*WeightData, error) {
	wd := &WeightData{Name: name, Shape: []int{len(rows), 0}}
	if len(rows) == 0 {
		return wd, nil
	}
	wd.Shape[1] = len(rows[0])
	for i, r := range rows {
		if len(r) != wd.Shape[1] {
			return nil, fmt.Errorf("%s: row %d has length %d, want %d: %w", name, i, len(r), wd.Shape[1], ErrPrecondition)
		}
		wd.Data = append(wd.Data, r...)
	}
	return wd, nil
}

// Vector returns the data of a 1-D weight block.
func (wd *WeightData) Vector() ([]float64, error) {
	if wd == nil {
		return nil, fmt.Errorf("missing weight data: %w", ErrPrecondition)
	}
	if len(wd.Shape) != 1 || wd.Shape[0] != len(wd.Data) {
		return nil, fmt.Errorf("%s: shape %v is not a vector of %d values: %w", wd.Name, wd.Shape, len(wd.Data), ErrPrecondition)
	}
	return append([]float64{}, wd.Data...), nil
}

// Rows returns the data of a 2-D weight block as rows.
func (wd *WeightData) Rows() ([][]float64, error) {
	if wd == nil {
		return nil, fmt.Errorf("missing weight data: %w", ErrPrecondition)
	}
	if len(wd.Shape) != 2 || wd.Shape[0]*wd.Shape[1] != len(wd.Data) {
		return nil, fmt.Errorf("%s: shape %v does not match %d values: %w", wd.Name, wd.Shape, len(wd.Data), ErrPrecondition)
	}
	rows := make([][]float64, wd.Shape[0])
	for i := range rows {
		rows[i] = append([]float64{}, wd.Data[i*wd.Shape[1]:(i+1)*wd.Shape[1]]...)
	}
	return rows, nil
}
