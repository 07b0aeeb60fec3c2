package modules

import (
	"fmt"

	apperrors "coinpulse/pkg/errors"
)

// Scorer returns a raw signed sentiment score for text: negative is
// unfavorable, zero neutral, positive favorable.
type Scorer interface {
	Score(text string) float64
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(text string) float64

func (f ScorerFunc) Score(text string) float64 { return f(text) }

// Normalize maps a raw score from [-5, 5] onto [0, 100]. Scores outside that
// range extend linearly and are not clamped.
func Normalize(raw float64) float64 {
	return ((raw + 5) / 10) * 100
}

type Bucket string

const (
	Positive Bucket = "positive"
	Neutral  Bucket = "neutral"
	Negative Bucket = "negative"
)

// Thresholds splits normalized scores into buckets: above Positive is
// positive, below Negative is negative, anything in between (inclusive) is
// neutral.
type Thresholds struct {
	Positive float64
	Negative float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Positive: 60, Negative: 40}
}

func (t Thresholds) Validate() error {
	if t.Negative > t.Positive {
		return apperrors.ValidationError(fmt.Sprintf("negative threshold %.2f exceeds positive threshold %.2f", t.Negative, t.Positive))
	}
	return nil
}

func (t Thresholds) Classify(normalized float64) Bucket {
	switch {
	case normalized > t.Positive:
		return Positive
	case normalized >= t.Negative:
		return Neutral
	default:
		return Negative
	}
}

// BucketCounts tallies classified posts.
type BucketCounts struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

func (c *BucketCounts) Add(b Bucket) {
	switch b {
	case Positive:
		c.Positive++
	case Neutral:
		c.Neutral++
	case Negative:
		c.Negative++
	}
}

func (c BucketCounts) Total() int {
	return c.Positive + c.Neutral + c.Negative
}

// WeightedScore is the aggregated 0-100 score: positive posts weigh 100,
// neutral 50, negative 0. It is 0 when there are no posts.
func (c BucketCounts) WeightedScore() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c.Positive*100+c.Neutral*50) / float64(total)
}
