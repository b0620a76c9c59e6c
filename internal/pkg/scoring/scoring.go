package scoring

import (
	"math"
	"strings"
	"unicode/utf16"
)

const (
	MaxEngagement = 40
	MaxContent    = 30
	MaxVirality   = 30
	MaxTotal      = 100
)

// Metrics are the raw inputs for a single mention.
type Metrics struct {
	Likes       int
	Retweets    int
	Replies     int
	Quotes      int
	Text        string
	HasImage    bool
	HasVideo    bool
	HasHashtags bool
}

type Breakdown struct {
	Engagement int `json:"engagement"`
	Content    int `json:"content"`
	Virality   int `json:"virality"`
}

type Result struct {
	Total     int       `json:"total"`
	Breakdown Breakdown `json:"breakdown"`
}

// Score is deterministic: identical metrics always produce identical results,
// which is what allows stored mentions to never be re-scored.
func Score(m Metrics) Result {
	engagement := EngagementScore(m)
	content := ContentScore(m)
	virality := ViralityScore(m)

	total := int(math.Round(engagement + float64(content) + float64(virality)))
	if total > MaxTotal {
		total = MaxTotal
	}
	if total < 0 {
		total = 0
	}

	return Result{
		Total: total,
		Breakdown: Breakdown{
			Engagement: int(math.Round(engagement)),
			Content:    content,
			Virality:   virality,
		},
	}
}

// EngagementScore compresses the weighted interaction sum logarithmically so a
// single viral post cannot dominate. Range 0..40.
func EngagementScore(m Metrics) float64 {
	// Summed in float64; counters near the int limit would wrap as integers.
	weighted := float64(nonNeg(m.Likes)) +
		float64(nonNeg(m.Retweets))*3 +
		float64(nonNeg(m.Replies))*2 +
		float64(nonNeg(m.Quotes))*5
	score := math.Log10(weighted+1) * 10
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	return math.Min(MaxEngagement, score)
}

// ContentScore rewards well-sized posts with media. Range 0..30.
func ContentScore(m Metrics) int {
	score := 0

	// Length is measured in UTF-16 code units, the unit the platform counts in.
	length := len(utf16.Encode([]rune(m.Text)))
	switch {
	case length >= 50 && length <= 280:
		score += 15
	case length >= 20:
		score += 10
	default:
		score += 5
	}

	if m.HasImage {
		score += 10
	}
	if m.HasVideo {
		score += 15
	}

	if m.HasHashtags {
		tags := strings.Count(m.Text, "#")
		switch {
		case tags >= 1 && tags <= 2:
			score += 5
		case tags > 5:
			score -= 5
		}
	}

	if score > MaxContent {
		return MaxContent
	}
	if score < 0 {
		return 0
	}
	return score
}

// ViralityScore maps the share of retweets in total engagement onto fixed steps.
func ViralityScore(m Metrics) int {
	likes, rts, replies := float64(nonNeg(m.Likes)), float64(nonNeg(m.Retweets)), float64(nonNeg(m.Replies))
	total := likes + rts + replies
	if total == 0 {
		return 0
	}
	ratio := rts / total
	switch {
	case ratio > 0.3:
		return 30
	case ratio > 0.2:
		return 25
	case ratio > 0.1:
		return 20
	case ratio > 0.05:
		return 15
	default:
		return 10
	}
}

func nonNeg(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
