package piconuclear

import "sort"

// localMaxima returns the indices of all local maxima of x. A flat top
// counts once, at its middle (rounded down). The first and last samples
// are never maxima.
func localMaxima(x []float64) []int {
	peaks := make([]int, 0)
	n := len(x)
	i := 1
	for i < n-1 {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < n-1 && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				left := i
				right := ahead - 1
				peaks = append(peaks, (left+right)/2)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

// selectByDistance drops peaks closer than distance to a higher peak.
// Higher peaks are handled first; among equal heights the later one wins.
func selectByDistance(x []float64, peaks []int, distance int) []int {
	if distance <= 1 || len(peaks) < 2 {
		return peaks
	}
	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}

	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] < x[peaks[order[b]]]
	})

	for i := len(order) - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	selected := make([]int, 0, len(peaks))
	for i, p := range peaks {
		if keep[i] {
			selected = append(selected, p)
		}
	}
	return selected
}

// prominence is the height of the peak above the higher of the two lowest
// points reached before x rises above the peak on either side.
func prominence(x []float64, peak int) float64 {
	leftMin := x[peak]
	for i := peak; i >= 0 && x[i] <= x[peak]; i-- {
		if x[i] < leftMin {
			leftMin = x[i]
		}
	}
	rightMin := x[peak]
	for i := peak; i < len(x) && x[i] <= x[peak]; i++ {
		if x[i] < rightMin {
			rightMin = x[i]
		}
	}
	return x[peak] - max(leftMin, rightMin)
}

// FindPeaks returns, in ascending order, the local maxima of x spaced at
// least distance samples apart whose prominence is at least minProminence.
func FindPeaks(x []float64, minProminence float64, distance int) []int {
	peaks := selectByDistance(x, localMaxima(x), distance)
	selected := make([]int, 0, len(peaks))
	for _, p := range peaks {
		if prominence(x, p) >= minProminence {
			selected = append(selected, p)
		}
	}
	return selected
}
