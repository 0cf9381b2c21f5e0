package scoring

import (
	"testing"
)

func TestCurveEval(t *testing.T) {
	testCases := []struct {
		name  string
		curve Curve
		count int64
		want  float64
	}{
		{name: "zero count earns nothing", curve: FlagCurve, count: 0, want: 0},
		{name: "first flag tier", curve: FlagCurve, count: 1, want: 1},
		{name: "at threshold stays in lower tier", curve: FlagCurve, count: 4, want: 1},
		{name: "past threshold moves up", curve: FlagCurve, count: 5, want: 2},
		{name: "top flag tier", curve: FlagCurve, count: 100, want: 16},
		{name: "downvote mid tier", curve: DownvoteCurve, count: 11, want: 4},
		{name: "single upvote", curve: UpvoteCurve, count: 1, want: 1},
		{name: "two upvotes", curve: UpvoteCurve, count: 2, want: 2},
		{name: "past last valued upvote tier clamps", curve: UpvoteCurve, count: 5000, want: 16},
	}

	for _, tc := range testCases {
		if got := tc.curve.Eval(tc.count); got != tc.want {
			t.Errorf("%s: Eval(%d) = %v, want %v", tc.name, tc.count, got, tc.want)
		}
	}
}

func TestCurveEvalMonotonic(t *testing.T) {
	for _, curve := range []Curve{FlagCurve, DownvoteCurve, UpvoteCurve} {
		prev := curve.Eval(0)
		for count := int64(1); count <= 2000; count++ {
			cur := curve.Eval(count)
			if cur < prev {
				t.Fatalf("Eval(%d) = %v is below Eval(%d) = %v", count, cur, count-1, prev)
			}
			prev = cur
		}
	}
}

func TestScoreFreshReactable(t *testing.T) {
	if got := Score(0, 0, 0); got != BaseScore {
		t.Errorf("Score(0, 0, 0) = %v, want %v", got, BaseScore)
	}
}

func TestScore(t *testing.T) {
	testCases := []struct {
		name                     string
		upvotes, downvotes, flags int64
		want                     float64
	}{
		{name: "one upvote", upvotes: 1, want: 11},
		{name: "one downvote", downvotes: 1, want: 9},
		{name: "one flag", flags: 1, want: 9},
		{name: "everything at once", upvotes: 20, downvotes: 6, flags: 5, want: 10 - 2 - 2 + 4},
		{name: "buried", downvotes: 100, flags: 100, want: 10 - 16 - 16},
	}

	for _, tc := range testCases {
		if got := Score(tc.upvotes, tc.downvotes, tc.flags); got != tc.want {
			t.Errorf("%s: Score(%d, %d, %d) = %v, want %v",
				tc.name, tc.upvotes, tc.downvotes, tc.flags, got, tc.want)
		}
	}
}

func TestScoreIdempotent(t *testing.T) {
	first := Score(42, 7, 3)
	second := Score(42, 7, 3)
	if first != second {
		t.Errorf("same counters produced different scores: %v then %v", first, second)
	}
}
