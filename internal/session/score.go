package session

import (
	"fmt"
	"math"
)

// QuestionScore returns round(100 * passed / total). A question without test
// cases scores 0.
func QuestionScore(passed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(passed) / float64(total)))
}

// Aggregate returns the rounded mean of the given scores, or 0 when there are none.
func Aggregate(scores []int) int {
	if len(scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return int(math.Round(float64(sum) / float64(len(scores))))
}

// FormatRemaining renders seconds as mm:ss for the exam header.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
