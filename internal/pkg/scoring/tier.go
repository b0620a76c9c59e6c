package scoring

const (
	TierLegendary = "legendary"
	TierEpic      = "epic"
	TierRare      = "rare"
	TierCommon    = "common"
	TierPeasant   = "peasant"
)

// RewardTier labels a quality score for display.
func RewardTier(score int) string {
	switch {
	case score >= 90:
		return TierLegendary
	case score >= 75:
		return TierEpic
	case score >= 50:
		return TierRare
	case score >= 25:
		return TierCommon
	default:
		return TierPeasant
	}
}
