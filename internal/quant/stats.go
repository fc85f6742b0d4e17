// Package quant holds the null-aware statistics behind the relation snapshot.
// A nil result means "not computable" and is persisted as JSON null.
package quant

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Relative strength weights. Kept as-is for parity with published snapshots.
const (
	WeightPctSpread = 0.6
	WeightBeta      = 0.25
	WeightZScore    = -0.15
)

// PctChange returns (cur-prev)/prev*100, or nil if either side is nil or prev is zero
func PctChange(cur, prev *float64) *float64 {
	if cur == nil || prev == nil || *prev == 0 {
		return nil
	}
	v := (*cur - *prev) / *prev * 100
	return &v
}

// AbsChange returns cur-prev, or nil if either side is nil
func AbsChange(cur, prev *float64) *float64 {
	if cur == nil || prev == nil {
		return nil
	}
	v := *cur - *prev
	return &v
}

// Pearson returns the correlation of xs and ys.
// Nil when lengths differ, fewer than 2 points, or either series has no variance.
func Pearson(xs, ys []float64) *float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return nil
	}
	if stat.Variance(xs, nil) == 0 || stat.Variance(ys, nil) == 0 {
		return nil
	}
	return finite(stat.Correlation(xs, ys, nil))
}

// Beta returns the OLS slope of ys regressed on xs.
// Nil when lengths differ, fewer than 2 points, or xs has no variance.
func Beta(xs, ys []float64) *float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return nil
	}
	varX := stat.Variance(xs, nil)
	if varX == 0 {
		return nil
	}
	return finite(stat.Covariance(xs, ys, nil) / varX)
}

// ZScore returns (current-mean)/std over window using the sample standard deviation.
// Nil with fewer than 2 values or zero deviation.
func ZScore(current float64, window []float64) *float64 {
	if len(window) < 2 {
		return nil
	}
	mean, std := stat.MeanStdDev(window, nil)
	if std == 0 {
		return nil
	}
	return finite((current - mean) / std)
}

// RelativeStrength blends the pct spread, beta and spread z-score.
// Nil beta or z count as zero; nil when either pct change is missing.
func RelativeStrength(pctA, pctB, beta, z *float64) *float64 {
	if pctA == nil || pctB == nil {
		return nil
	}
	v := WeightPctSpread*(*pctA-*pctB) + WeightBeta*valueOrZero(beta) + WeightZScore*valueOrZero(z)
	return &v
}

// Sign returns -1, 0 or 1
func Sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
