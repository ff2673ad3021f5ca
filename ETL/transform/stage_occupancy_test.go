package transform

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bruteForceOccupancy(intervals []stageInterval, frames []int64) []int {
	counts := make([]int, len(frames))
	for i, frame := range frames {
		records := make(map[string]bool)
		for _, iv := range intervals {
			if iv.start <= frame && frame <= iv.end {
				records[iv.record] = true
			}
		}
		counts[i] = len(records)
	}
	return counts
}

func TestSweepOccupancyInclusiveBounds(t *testing.T) {
	intervals := []stageInterval{
		{record: "a", start: 10, end: 20},
		{record: "b", start: 20, end: 30},
	}
	frames := []int64{0, 10, 20, 21, 30, 31}

	assert.Equal(t, []int{0, 1, 2, 1, 1, 0}, sweepOccupancy(intervals, frames))
}

func TestSweepOccupancyCountsDistinctRecords(t *testing.T) {
	// Два пересекающихся интервала одной записи дают одну единицу заполненности
	intervals := []stageInterval{
		{record: "a", start: 0, end: 50},
		{record: "a", start: 10, end: 20},
		{record: "b", start: 15, end: 15},
	}
	frames := []int64{5, 15, 30, 60}

	assert.Equal(t, []int{1, 2, 1, 0}, sweepOccupancy(intervals, frames))
}

func TestSweepOccupancyMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		n := rng.Intn(40)
		intervals := make([]stageInterval, 0, n)
		for i := 0; i < n; i++ {
			start := rng.Int63n(100)
			intervals = append(intervals, stageInterval{
				record: fmt.Sprintf("r%d", rng.Intn(10)),
				start:  start,
				end:    start + rng.Int63n(30),
			})
		}
		frames := make([]int64, 0, 14)
		for f := int64(0); f <= 130; f += 10 {
			frames = append(frames, f)
		}

		expected := bruteForceOccupancy(intervals, frames)
		actual := sweepOccupancy(append([]stageInterval(nil), intervals...), frames)
		require.Equal(t, expected, actual, "round %d", round)
	}
}
