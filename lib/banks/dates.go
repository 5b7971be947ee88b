package banks

import "time"

// ParseDate parses an institution's date rendering and truncates it to
// a civil date in UTC. Posted dates have no meaningful time component,
// carrying one around just breaks key derivation across timezones.
func ParseDate(layout, value string) (time.Time, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, err
	}
	return Midnight(t), nil
}

func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
