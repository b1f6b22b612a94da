package domain

import "example.com/challengeengine/internal/route"

// Qualifies reports whether a finished activity satisfies the challenge rules.
func Qualifies(c *Challenge, a *Activity) bool {
	if c.ActivityType != ActivityTypeAll && c.ActivityType != a.Type {
		return false
	}
	if minLength := c.Rules.MinActivityLength; minLength != nil && a.Metrics.Distance < *minLength {
		return false
	}
	if minMinutes := c.Rules.MinActivityDuration; minMinutes != nil && a.Metrics.Duration < *minMinutes*60 {
		return false
	}
	if len(c.Rules.AllowedLocations) > 0 && !route.AnyWithin(a.Route, c.Rules.AllowedLocations) {
		return false
	}
	return true
}

// ContributionValue is the amount a qualifying activity adds to progress, in
// the goal unit of the challenge type.
func ContributionValue(t ChallengeType, a *Activity) float64 {
	switch t {
	case ChallengeTypeDistance:
		return a.Metrics.Distance / 1000
	case ChallengeTypeTime:
		return a.Metrics.Duration / 60
	case ChallengeTypeElevation:
		return a.Metrics.ElevationGain
	case ChallengeTypeFrequency:
		return 1
	default:
		return 0
	}
}
