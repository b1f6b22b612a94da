package route

// Metrics are the values derived from a route.
type Metrics struct {
	// Distance in meters.
	Distance float64 `json:"distance"`
	// Duration in seconds.
	Duration      float64 `json:"duration"`
	ElevationGain float64 `json:"elevationGain"`
	ElevationLoss float64 `json:"elevationLoss"`
	// AverageSpeed and MaxSpeed in km/h.
	AverageSpeed float64 `json:"averageSpeed"`
	MaxSpeed     float64 `json:"maxSpeed"`
	// Pace in minutes per km; nil when the distance is zero.
	Pace *float64 `json:"pace,omitempty"`
}

// Compute derives metrics from samples ordered by non-decreasing timestamp.
// Fewer than two samples yield zero-valued metrics.
func Compute(samples []Sample) (Metrics, error) {
	for _, s := range samples {
		if err := ValidateSample(s); err != nil {
			return Metrics{}, err
		}
	}

	var m Metrics
	if len(samples) < 2 {
		return m, nil
	}

	// Each leg ends at a sample: its reported speed wins, otherwise the leg's
	// derived speed counts.
	for i, s := range samples {
		if s.Speed != nil && *s.Speed > m.MaxSpeed {
			m.MaxSpeed = *s.Speed
		}
		if i == 0 {
			continue
		}
		prev := samples[i-1]

		leg := Distance(prev.Point(), s.Point())
		m.Distance += leg

		if prev.Elevation != nil && s.Elevation != nil {
			delta := *s.Elevation - *prev.Elevation
			if delta > 0 {
				m.ElevationGain += delta
			} else {
				m.ElevationLoss -= delta
			}
		}

		if s.Speed != nil {
			continue
		}
		if dt := s.Timestamp.Sub(prev.Timestamp).Seconds(); dt > 0 {
			if speed := kmh(leg, dt); speed > m.MaxSpeed {
				m.MaxSpeed = speed
			}
		}
	}

	if d := samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp).Seconds(); d > 0 {
		m.Duration = d
	}
	if m.Duration > 0 {
		m.AverageSpeed = kmh(m.Distance, m.Duration)
	}
	if m.Distance > 0 {
		pace := (m.Duration / 60) / (m.Distance / 1000)
		m.Pace = &pace
	}
	return m, nil
}

func kmh(meters, seconds float64) float64 {
	return (meters / 1000) / (seconds / 3600)
}
