package sensor

// DefaultThreshold is the hysteresis applied between two valid readings, in
// milli-Celsius.
const DefaultThreshold = 200

// ChangeFilter decides whether a reading differs enough from the last
// recorded one to be worth recording.
type ChangeFilter struct {
	Threshold int
}

// HasChanged reports whether candidate should be recorded after previous.
// Two values differ when they are more than Threshold apart; any other pair
// differs when it is not exactly equal, so the first reading and every
// transition into or out of an error state are always recorded.
func (f ChangeFilter) HasChanged(candidate, previous Reading) bool {
	if candidate.Kind == Value && previous.Kind == Value {
		d := candidate.MilliCelsius - previous.MilliCelsius
		if d < 0 {
			d = -d
		}
		return d > f.Threshold
	}
	return candidate != previous
}
