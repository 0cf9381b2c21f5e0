// Package scoring converts raw reaction counters into a quality score.
// It is pure arithmetic: no I/O, no state.
package scoring

// BaseScore is the score of a contribution nobody has reacted to yet.
const BaseScore = 10.0

// Curve maps ordered count thresholds to score values. A count earns the
// value of the highest threshold strictly below it, or 0 when it does not
// exceed the smallest threshold. When there are more thresholds than
// values, counts past the last valued tier keep the last value.
type Curve struct {
	Thresholds []int64
	Values     []float64
}

var (
	FlagCurve     = Curve{Thresholds: []int64{0, 4, 8, 16, 32}, Values: []float64{1, 2, 4, 8, 16}}
	DownvoteCurve = Curve{Thresholds: []int64{0, 5, 10, 20, 50}, Values: []float64{1, 2, 4, 8, 16}}
	UpvoteCurve   = Curve{Thresholds: []int64{0, 1, 10, 50, 200, 1000}, Values: []float64{1, 2, 4, 8, 16}}
)

// Eval returns the curve value for count.
func (c Curve) Eval(count int64) float64 {
	tier := -1
	for i, threshold := range c.Thresholds {
		if threshold < count {
			tier = i
		}
	}
	if tier < 0 {
		return 0
	}
	if tier >= len(c.Values) {
		tier = len(c.Values) - 1
	}
	return c.Values[tier]
}

// Score derives the quality score of a reactable from its counters.
// The result is unbounded in both directions on purpose: heavy flagging or
// downvoting keeps eroding the score, and popular content keeps earning.
func Score(upvotes, downvotes, flags int64) float64 {
	return BaseScore -
		FlagCurve.Eval(flags) -
		DownvoteCurve.Eval(downvotes) +
		UpvoteCurve.Eval(upvotes)
}
