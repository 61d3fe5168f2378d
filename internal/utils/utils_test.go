package utils

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatistics(t *testing.T) {
	assert.Equal(t, 10, SumSlice([]int{1, 2, 3, 4}))
	mean, variance := MeanAndVariance([]float64{1, 2, 3, 4}, true)
	assert.Equal(t, 2.5, mean)
	assert.InDelta(t, 5./3., variance, 1e-15)
	assert.Zero(t, Average([]int{}))
}

func TestLogBinarySearch(t *testing.T) {
	lo, hi := LogBinarySearch(func(x float64) bool { return x*x > 2e-20 }, 1e-20, 1, 1e-9)
	assert.Less(t, lo, hi)
	assert.InEpsilon(t, math.Sqrt(2e-20), hi, 1e-8)
}

func TestReadFloatPairs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.dat")
	require.NoError(t, os.WriteFile(path, []byte("# eV l\n13.6 0\n\n 24.6  1\n"), 0600))
	rows, err := ReadFloatPairs(path)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{13.6, 0}, {24.6, 1}}, rows)

	require.NoError(t, os.WriteFile(path, []byte("1 2 3\n"), 0600))
	_, err = ReadFloatPairs(path)
	assert.Error(t, err)
}

func TestWriteAsCSV(t *testing.T) {
	dir := t.TempDir()
	data := CSV{{"10", "b"}, {"2", "a"}, {"1:3", "c"}}
	require.NoError(t, WriteAsCSV(data, false, dir, "fields", "Rho_000001", []string{"node", "v"}))
	content, err := os.ReadFile(filepath.Join(dir, "Rho_000001_fields.csv"))
	require.NoError(t, err)
	assert.Equal(t, "node,v\n1:3,c\n2,a\n10,b\n", string(content))
}
