package scoring

import "math"

// RewardPolicy turns a score into a per-project reward.
type RewardPolicy struct {
	Divisor float64
	// Floor truncates to whole units instead of rounding to four decimals.
	Floor bool
}

func DefaultRewardPolicy() RewardPolicy {
	return RewardPolicy{Divisor: 300}
}

func (p RewardPolicy) PerProject(score int) float64 {
	d := p.Divisor
	if d <= 0 {
		d = 300
	}
	v := float64(score) / d
	if p.Floor {
		return math.Floor(v)
	}
	return round4(v)
}

// Derive splits the reward across projects. Every project gets the same
// per-project amount; the total is that amount times the project count.
func (p RewardPolicy) Derive(score int, projects []string) (map[string]float64, float64) {
	per := p.PerProject(score)
	rewards := make(map[string]float64, len(projects))
	for _, name := range projects {
		rewards[name] = per
	}
	return rewards, round4(per * float64(len(rewards)))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
