package utils

import (
	"slices"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Float | constraints.Integer
}

func SumSlice[T Number](arr []T) (r T) {
	for i := range arr {
		r += arr[i]
	}
	return
}

func Average[T Number](s []T) (mean float64) {
	if len(s) == 0 {
		return 0
	}
	for i := range s {
		mean += float64(s[i])
	}
	mean /= float64(len(s))
	return
}

func MeanAndVariance[T Number](s []T, unbiased bool) (mean, variance float64) {
	mean = Average(s)
	if len(s) < 2 {
		return mean, 0
	}
	for i := range s {
		variance += (float64(s[i]) - mean) * (float64(s[i]) - mean)
	}
	if unbiased {
		variance /= float64(len(s) - 1)
	} else {
		variance /= float64(len(s))
	}

	return
}

func IntAbs(a int) int {
	if a < 0 {
		return -a
	} else {
		return a
	}
}

func Intersect(a, b []string) *string {
	for i := range a {
		if slices.Contains(b, a[i]) {
			return &a[i]
		}
	}
	return nil
}
