package trainer

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/loiht2/ml-platform-email-classifier/backend/models"
)

// ConfusionMatrix counts predictions; rows are true classes, columns predicted classes
func ConfusionMatrix(yTrue, yPred []int, numClasses int) [][]int {
	cm := make([][]int, numClasses)
	for i := range cm {
		cm[i] = make([]int, numClasses)
	}
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= numClasses || p < 0 || p >= numClasses {
			continue
		}
		cm[t][p]++
	}
	return cm
}

// Report computes per-class precision, recall and F1 plus macro and
// support-weighted averages. Undefined ratios are reported as 0.
func Report(yTrue, yPred []int, classes []string) models.ClassificationReport {
	k := len(classes)
	cm := ConfusionMatrix(yTrue, yPred, k)

	precision := make([]float64, k)
	recall := make([]float64, k)
	f1 := make([]float64, k)
	support := make([]float64, k)

	report := models.ClassificationReport{Classes: make(map[string]models.ClassScores, k)}
	correct, total := 0, 0
	for c := 0; c < k; c++ {
		tp := cm[c][c]
		predicted, actual := 0, 0
		for o := 0; o < k; o++ {
			predicted += cm[o][c]
			actual += cm[c][o]
		}
		precision[c] = ratio(tp, predicted)
		recall[c] = ratio(tp, actual)
		if precision[c]+recall[c] > 0 {
			f1[c] = 2 * precision[c] * recall[c] / (precision[c] + recall[c])
		}
		support[c] = float64(actual)
		correct += tp
		total += actual

		report.Classes[classes[c]] = models.ClassScores{
			Precision: precision[c],
			Recall:    recall[c],
			F1Score:   f1[c],
			Support:   actual,
		}
	}

	report.Accuracy = ratio(correct, total)
	if k > 0 {
		report.MacroAvg = models.ClassScores{
			Precision: stat.Mean(precision, nil),
			Recall:    stat.Mean(recall, nil),
			F1Score:   stat.Mean(f1, nil),
			Support:   total,
		}
	}
	if floats.Sum(support) > 0 {
		report.WeightedAvg = models.ClassScores{
			Precision: stat.Mean(precision, support),
			Recall:    stat.Mean(recall, support),
			F1Score:   stat.Mean(f1, support),
			Support:   total,
		}
	}
	return report
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
