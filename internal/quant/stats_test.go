package quant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPctAndAbsChange(t *testing.T) {
	pct := PctChange(Float(110), Float(100))
	require.NotNil(t, pct)
	assert.InDelta(t, 10.0, *pct, 1e-9)

	abs := AbsChange(Float(110), Float(100))
	require.NotNil(t, abs)
	assert.InDelta(t, 10.0, *abs, 1e-9)

	assert.Nil(t, PctChange(Float(100), Float(0)))
	assert.Nil(t, PctChange(nil, Float(100)))
	assert.Nil(t, AbsChange(Float(1), nil))
}

func TestPearsonAndBeta(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	ys := []float64{2, 4, 6, 8}

	corr := Pearson(xs, ys)
	require.NotNil(t, corr)
	assert.InDelta(t, 1.0, *corr, 1e-9)

	beta := Beta(xs, ys)
	require.NotNil(t, beta)
	assert.InDelta(t, 2.0, *beta, 1e-9)
}

func TestPearsonAndBeta_IdenticalSeries(t *testing.T) {
	rs := []float64{0.001, -0.002, 0.0005, 0.003, -0.001}

	corr := Pearson(rs, rs)
	require.NotNil(t, corr)
	assert.InDelta(t, 1.0, *corr, 1e-9)

	beta := Beta(rs, rs)
	require.NotNil(t, beta)
	assert.InDelta(t, 1.0, *beta, 1e-9)
}

func TestPearsonAndBeta_Undefined(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		ys   []float64
	}{
		{name: "single point", xs: []float64{1}, ys: []float64{2}},
		{name: "length mismatch", xs: []float64{1, 2}, ys: []float64{1, 2, 3}},
		{name: "flat regressor", xs: []float64{3, 3, 3}, ys: []float64{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Pearson(tt.xs, tt.ys))
			assert.Nil(t, Beta(tt.xs, tt.ys))
		})
	}

	// flat dependent series: beta is zero, correlation undefined
	assert.Nil(t, Pearson([]float64{1, 2, 3}, []float64{5, 5, 5}))
	beta := Beta([]float64{1, 2, 3}, []float64{5, 5, 5})
	require.NotNil(t, beta)
	assert.InDelta(t, 0.0, *beta, 1e-12)
}

func TestZScore(t *testing.T) {
	window := []float64{10, 12, 14, 16, 18}

	z := ZScore(16, window)
	require.NotNil(t, z)
	assert.InDelta(t, 0.6324555320336759, *z, 1e-9)

	z = ZScore(15, window)
	require.NotNil(t, z)
	assert.InDelta(t, 0.31622776601683794, *z, 1e-9)

	assert.Nil(t, ZScore(1, []float64{4}))
	assert.Nil(t, ZScore(1, []float64{2, 2, 2}))
}

func TestRelativeStrength(t *testing.T) {
	rs := RelativeStrength(Float(1.2), Float(0.4), Float(0.5), Float(-0.2))
	require.NotNil(t, rs)
	assert.InDelta(t, 0.635, *rs, 1e-9)

	rs = RelativeStrength(Float(1.2), Float(0.4), nil, nil)
	require.NotNil(t, rs)
	assert.InDelta(t, 0.48, *rs, 1e-9)

	assert.Nil(t, RelativeStrength(nil, Float(0.4), Float(1), Float(1)))
	assert.Nil(t, RelativeStrength(Float(0.4), nil, Float(1), Float(1)))
}

func TestSign(t *testing.T) {
	assert.Equal(t, 1, Sign(0.2))
	assert.Equal(t, -1, Sign(-3))
	assert.Equal(t, 0, Sign(0))
}
