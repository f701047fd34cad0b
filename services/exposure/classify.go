package exposure

import "time"

// Reference classification constants.
const (
	DirectSunlightLux = 20000.0
	HighLuxNotice     = 1000.0
	TickIncrement     = 2 * time.Second
)

// Classifier decides whether a reading counts as direct sunlight and how
// much exposure a bright tick is worth. HighLux is a separate, lower notice
// level; zero disables it. Use Default or fill Threshold and Step.
type Classifier struct {
	Threshold float64
	Step      time.Duration
	HighLux   float64
}

// Default returns the classifier with the reference thresholds and step.
func Default() Classifier {
	return Classifier{Threshold: DirectSunlightLux, Step: TickIncrement, HighLux: HighLuxNotice}
}

// Classify reports whether lux is at or above the threshold.
func (c Classifier) Classify(lux float64) bool { return lux >= c.Threshold }

// High reports whether lux is strictly above the notice level.
func (c Classifier) High(lux float64) bool { return c.HighLux > 0 && lux > c.HighLux }

// Increment is the exposure credited for one bright tick.
func (c Classifier) Increment() time.Duration { return c.Step }

// Classify applies the reference threshold.
func Classify(lux float64) bool { return lux >= DirectSunlightLux }
