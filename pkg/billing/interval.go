package billing

import "fmt"

// IntervalOneTime labels prices that are paid once.
const IntervalOneTime = "one-time"

// IntervalLabel derives the human-readable cadence from a recurring interval unit and count.
// Unknown units fall back to the raw unit name.
func IntervalLabel(unit string, count int64) string {
	if unit == "" {
		return IntervalOneTime
	}
	if count <= 1 {
		switch unit {
		case "day":
			return "daily"
		case "week":
			return "weekly"
		case "month":
			return "monthly"
		case "year":
			return "yearly"
		default:
			return unit
		}
	}
	return fmt.Sprintf("every-%d-%ss", count, unit)
}
