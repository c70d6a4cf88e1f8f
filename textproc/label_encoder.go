package textproc

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownLabel = errors.New("unknown label")

// LabelEncoder maps class names to indices in sorted order
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

// Fit discovers the distinct labels and sorts them
func (e *LabelEncoder) Fit(labels []string) {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	classes := make([]string, 0, len(set))
	for l := range set {
		classes = append(classes, l)
	}
	sort.Strings(classes)
	e.Classes = classes
}

// Transform maps labels to their class indices
func (e *LabelEncoder) Transform(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		idx := sort.SearchStrings(e.Classes, l)
		if idx >= len(e.Classes) || e.Classes[idx] != l {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, l)
		}
		out[i] = idx
	}
	return out, nil
}

// InverseTransform maps a class index back to its name
func (e *LabelEncoder) InverseTransform(idx int) (string, error) {
	if idx < 0 || idx >= len(e.Classes) {
		return "", fmt.Errorf("%w: index %d out of range [0,%d)", ErrUnknownLabel, idx, len(e.Classes))
	}
	return e.Classes[idx], nil
}

// NumClasses returns the number of fitted classes
func (e *LabelEncoder) NumClasses() int {
	return len(e.Classes)
}

// OneHot encodes class indices against numClasses columns
func OneHot(indices []int, numClasses int) [][]float64 {
	out := make([][]float64, len(indices))
	for i, idx := range indices {
		row := make([]float64, numClasses)
		if idx >= 0 && idx < numClasses {
			row[idx] = 1
		}
		out[i] = row
	}
	return out
}
