package piconuclear

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalMaxima(t *testing.T) {
	tests := []struct {
		name string
		x    []float64
		want []int
	}{
		{"single", []float64{0, 1, 0}, []int{1}},
		{"odd plateau", []float64{0, 1, 2, 2, 2, 1, 0}, []int{3}},
		{"even plateau rounds down", []float64{0, 1, 2, 2, 1}, []int{2}},
		{"edges are not maxima", []float64{5, 0, 5}, []int{}},
		{"plateau reaching the end", []float64{0, 1, 1, 1}, []int{}},
		{"two maxima", []float64{0, 3, 1, 4, 0}, []int{1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, localMaxima(tt.x))
		})
	}
}

func TestSelectByDistance(t *testing.T) {
	x := []float64{0, 5, 0, 4, 0, 6, 0}
	assert.Equal(t, []int{1, 5}, selectByDistance(x, localMaxima(x), 3))
	assert.Equal(t, []int{1, 3, 5}, selectByDistance(x, localMaxima(x), 1))

	// equal heights: the later peak is kept
	tie := []float64{0, 3, 0, 3, 0}
	assert.Equal(t, []int{3}, selectByDistance(tie, localMaxima(tie), 3))
}

func TestProminence(t *testing.T) {
	x := []float64{0, 5, 1, 3, 0}
	assert.Equal(t, 5.0, prominence(x, 1))
	assert.Equal(t, 2.0, prominence(x, 3))

	// threshold is inclusive
	assert.Equal(t, []int{1, 3}, FindPeaks(x, 2, 1))
	assert.Equal(t, []int{1}, FindPeaks(x, 2.01, 1))
}
