package bridge

import (
	"math"
	"time"

	"github.com/vovakirdan/chatbridge/schema"
)

// EstimatedTickRate converts an average tick duration into ticks per second,
// never exceeding schema.MaxTickRate.
func EstimatedTickRate(avg time.Duration) float64 {
	if avg <= 0 {
		return schema.MaxTickRate
	}
	return math.Min(schema.MaxTickRate, float64(time.Second)/float64(avg))
}
