package model

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// EncodeLabels returns the sorted distinct integer labels of y and, for every
// row, the index of its label in that list.
func EncodeLabels(y mat.Matrix) (classes []int, labels []int) {
	rows, _ := y.Dims()
	seen := make(map[int]struct{})
	raw := make([]int, rows)
	for i := 0; i < rows; i++ {
		raw[i] = int(y.At(i, 0))
		seen[raw[i]] = struct{}{}
	}
	classes = make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}
	labels = make([]int, rows)
	for i, v := range raw {
		labels[i] = pos[v]
	}
	return classes, labels
}
