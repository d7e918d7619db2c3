// Package evaluate scores a classifier on a labeled feature matrix.
package evaluate

import "sort"

// Metrics holds accuracy and macro-averaged precision, recall and F1.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Map returns the metrics keyed by name, the form stored in the bundle.
func (m Metrics) Map() map[string]float64 {
	return map[string]float64{
		"accuracy":  m.Accuracy,
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1":        m.F1,
	}
}

// Compute returns accuracy and macro precision/recall/F1 over the labels
// present in yTrue or yPred. A ratio with a zero denominator counts as 0.
func Compute(yTrue, yPred []int) Metrics {
	n := min(len(yTrue), len(yPred))
	if n == 0 {
		return Metrics{}
	}

	type counts struct{ tp, fp, fn int }
	per := map[int]*counts{}
	get := func(k int) *counts {
		c, ok := per[k]
		if !ok {
			c = &counts{}
			per[k] = c
		}
		return c
	}

	correct := 0
	for i := 0; i < n; i++ {
		t, p := yTrue[i], yPred[i]
		if t == p {
			correct++
			get(t).tp++
			continue
		}
		get(p).fp++
		get(t).fn++
	}

	labels := make([]int, 0, len(per))
	for k := range per {
		labels = append(labels, k)
	}
	sort.Ints(labels)

	var m Metrics
	for _, k := range labels {
		c := per[k]
		m.Precision += ratio(c.tp, c.tp+c.fp)
		m.Recall += ratio(c.tp, c.tp+c.fn)
		m.F1 += ratio(2*c.tp, 2*c.tp+c.fp+c.fn)
	}
	nl := float64(len(labels))
	m.Precision /= nl
	m.Recall /= nl
	m.F1 /= nl
	m.Accuracy = float64(correct) / float64(n)
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Confusion returns a k x k matrix where cell (i, j) counts samples of true
// class i predicted as class j. Labels outside [0, k) are ignored.
func Confusion(yTrue, yPred []int, k int) [][]int {
	cm := make([][]int, k)
	for i := range cm {
		cm[i] = make([]int, k)
	}
	n := min(len(yTrue), len(yPred))
	for i := 0; i < n; i++ {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= k || p < 0 || p >= k {
			continue
		}
		cm[t][p]++
	}
	return cm
}
