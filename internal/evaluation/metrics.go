// Package evaluation measures retrieval accuracy on a held-out split.
package evaluation

// Top1Accuracy is the fraction of predictions equal to their truth label.
func Top1Accuracy(predictions, truth []string) float64 {
	if len(truth) == 0 {
		return 0
	}
	correct := 0
	for i, p := range predictions {
		if i < len(truth) && p == truth[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}

// HitRate is the fraction of ranked lists that contain their truth label anywhere.
func HitRate(ranked [][]string, truth []string) float64 {
	if len(truth) == 0 {
		return 0
	}
	hits := 0
	for i, list := range ranked {
		if i < len(truth) && rankOf(list, truth[i]) > 0 {
			hits++
		}
	}
	return float64(hits) / float64(len(truth))
}

// MRR is the mean reciprocal rank of the truth label, counting 0 when it is absent.
func MRR(ranked [][]string, truth []string) float64 {
	if len(truth) == 0 {
		return 0
	}
	var sum float64
	for i, list := range ranked {
		if i >= len(truth) {
			break
		}
		if r := rankOf(list, truth[i]); r > 0 {
			sum += 1 / float64(r)
		}
	}
	return sum / float64(len(truth))
}

// rankOf returns the 1-based position of label in list, or 0.
func rankOf(list []string, label string) int {
	for i, l := range list {
		if l == label {
			return i + 1
		}
	}
	return 0
}
