package types

// CostMetrics accumulates named counters across sections and stages.
type CostMetrics map[string]float64

// Add increments name by v. Negative values are ignored so no counter ever
// decreases.
func (c CostMetrics) Add(name string, v float64) {
	if v < 0 {
		return
	}
	c[name] += v
}

// Merge adds every counter of other into c.
func (c CostMetrics) Merge(other CostMetrics) {
	for k, v := range other {
		c.Add(k, v)
	}
}

// TimingStage is one named stage duration.
type TimingStage struct {
	Stage   string  `json:"stage"`
	Seconds float64 `json:"seconds"`
}

// TimingMetrics is the append-only list of stage durations in run order.
type TimingMetrics []TimingStage

// Total sums all recorded stage durations.
func (t TimingMetrics) Total() float64 {
	sum := 0.0
	for _, s := range t {
		sum += s.Seconds
	}
	return sum
}
