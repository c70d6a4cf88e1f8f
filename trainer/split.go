package trainer

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Split defaults used by every training run
const (
	TestFraction = 0.3
	SplitSeed    = 42
)

var ErrInsufficientData = errors.New("insufficient data for a stratified split")

// Partition holds sample indices of the train and test sets
type Partition struct {
	Train []int
	Test  []int
}

// StratifiedSplit divides indices so every label keeps its share in both sets.
// The test set has ceil(fraction*n) members and the result depends only on
// labels, fraction and seed.
func StratifiedSplit(labels []string, fraction float64, seed int64) (Partition, error) {
	n := len(labels)
	if fraction <= 0 || fraction >= 1 {
		return Partition{}, fmt.Errorf("%w: test fraction %v outside (0,1)", ErrInsufficientData, fraction)
	}

	byClass := make(map[string][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]string, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	for _, c := range classes {
		if len(byClass[c]) < 2 {
			return Partition{}, fmt.Errorf("%w: class %q has %d member(s), need at least 2", ErrInsufficientData, c, len(byClass[c]))
		}
	}

	nTest := int(math.Ceil(fraction * float64(n)))
	nTrain := n - nTest
	if nTest < len(classes) || nTrain < len(classes) {
		return Partition{}, fmt.Errorf("%w: %d samples cannot cover %d classes in both sets (test=%d, train=%d)",
			ErrInsufficientData, n, len(classes), nTest, nTrain)
	}

	counts := allocate(classes, byClass, nTest, n)

	rng := rand.New(rand.NewSource(seed))
	var p Partition
	for i, c := range classes {
		idx := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		p.Test = append(p.Test, idx[:counts[i]]...)
		p.Train = append(p.Train, idx[counts[i]:]...)
	}
	sort.Ints(p.Train)
	sort.Ints(p.Test)
	return p, nil
}

// allocate decides how many members of each class go to the test set.
// Each class gets its proportional share rounded down, clamped so it keeps at
// least one member on each side; the leftover goes to the largest remainders.
func allocate(classes []string, byClass map[string][]int, nTest, n int) []int {
	counts := make([]int, len(classes))
	rem := make([]float64, len(classes))
	total := 0
	for i, c := range classes {
		size := len(byClass[c])
		ideal := float64(size) * float64(nTest) / float64(n)
		k := int(math.Floor(ideal))
		if k < 1 {
			k = 1
		}
		if k > size-1 {
			k = size - 1
		}
		counts[i] = k
		rem[i] = ideal - float64(k)
		total += k
	}

	order := make([]int, len(classes))
	for i := range order {
		order[i] = i
	}

	for total < nTest {
		sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] > rem[order[b]] })
		moved := false
		for _, i := range order {
			if counts[i] < len(byClass[classes[i]])-1 {
				counts[i]++
				rem[i]--
				total++
				moved = true
				break
			}
		}
		if !moved {
			break
		}
	}
	for total > nTest {
		sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] < rem[order[b]] })
		moved := false
		for _, i := range order {
			if counts[i] > 1 {
				counts[i]--
				rem[i]++
				total--
				moved = true
				break
			}
		}
		if !moved {
			break
		}
	}
	return counts
}
