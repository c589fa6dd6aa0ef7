package feedback

// CalculateActualScore 把互动指标折算为 0-15 的实际分。
// 互动率 = (点赞 + 2×转发 + 3×回复) / 曝光量，按区间映射基础分，
// 高曝光量追加奖励分，总分不超过 15。零曝光记 0 分。
func CalculateActualScore(m EngagementMetrics) int {
	if m.Impressions <= 0 {
		return 0
	}
	rate := float64(m.Likes+2*m.Reshares+3*m.Replies) / float64(m.Impressions)

	var score int
	switch {
	case rate >= 0.05:
		score = 15
	case rate >= 0.03:
		score = 13
	case rate >= 0.02:
		score = 10
	case rate >= 0.01:
		score = 7
	case rate >= 0.005:
		score = 5
	default:
		score = 3
	}

	switch {
	case m.Impressions >= 10000:
		score += 2
	case m.Impressions >= 5000:
		score++
	}
	if score > 15 {
		score = 15
	}
	return score
}
