package utils

import "math"

// return the point of the condition support that is not farther than eps from the support boundary
// invariant: at *right* condition must be TRUE
func BinarySearch(condition func(float64) bool, falseDom, trueDom, eps float64) (float64, float64) {
	for math.Abs(trueDom-falseDom) > eps {
		c := (falseDom + trueDom) * 0.5
		if condition(c) {
			trueDom = c
		} else {
			falseDom = c
		}
	}
	return falseDom, trueDom
}

// LogBinarySearch bisects in log space, for conditions spanning many decades.
// Both bounds must be positive.
func LogBinarySearch(condition func(float64) bool, falseDom, trueDom, relEps float64) (float64, float64) {
	lo, hi := BinarySearch(func(l float64) bool {
		return condition(math.Exp(l))
	}, math.Log(falseDom), math.Log(trueDom), math.Log1p(relEps))
	return math.Exp(lo), math.Exp(hi)
}
