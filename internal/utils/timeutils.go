package utils

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// DurationMinutes converts a pair of timestamps into minute duration.
func DurationMinutes(start, end time.Time) float64 {
	if end.Before(start) {
		start, end = end, start
	}
	return end.Sub(start).Minutes()
}

var (
	lookbackPattern = regexp.MustCompile(`^(?:last\s+|now\s*-\s*)?(\d+(?:\.\d+)?)\s*([smhdw])$`)
	nowPattern      = regexp.MustCompile(`^time\s*>=?\s*now\(\)\s*-\s*(\d+(?:\.\d+)?)\s*([smhdw])$`)
	absolutePattern = regexp.MustCompile(`^time\s*>=?\s*(\d+)ms\s+and\s+time\s*<=?\s*(\d+)ms$`)
)

// TimeFilter is a parsed dashboard time filter: either a look-back or an absolute range.
type TimeFilter struct {
	Raw      string
	Lookback time.Duration
	From     time.Time
	To       time.Time
}

// ParseTimeFilter accepts look-back forms ("90m", "last 1.5h", "now-2d", "time >= now() - 90m")
// and absolute ranges ("time >= 1700000000000ms and time <= 1700000300000ms", "<RFC3339>/<RFC3339>").
func ParseTimeFilter(value string) (TimeFilter, error) {
	raw := value
	s := strings.ToLower(strings.TrimSpace(value))
	if s == "" {
		return TimeFilter{}, fmt.Errorf("empty time filter")
	}

	if m := lookbackPattern.FindStringSubmatch(s); m != nil {
		return lookbackFilter(raw, m[1], m[2])
	}
	if m := nowPattern.FindStringSubmatch(s); m != nil {
		return lookbackFilter(raw, m[1], m[2])
	}
	if m := absolutePattern.FindStringSubmatch(s); m != nil {
		from, err1 := strconv.ParseInt(m[1], 10, 64)
		to, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 != nil || err2 != nil {
			return TimeFilter{}, fmt.Errorf("parse time filter %q: invalid epoch", value)
		}
		return absoluteFilter(raw, time.UnixMilli(from).UTC(), time.UnixMilli(to).UTC())
	}
	if parts := strings.SplitN(strings.TrimSpace(value), "/", 2); len(parts) == 2 {
		from, err := ParseRFC3339(strings.TrimSpace(parts[0]))
		if err != nil {
			return TimeFilter{}, fmt.Errorf("parse time filter %q: %w", value, err)
		}
		to, err := ParseRFC3339(strings.TrimSpace(parts[1]))
		if err != nil {
			return TimeFilter{}, fmt.Errorf("parse time filter %q: %w", value, err)
		}
		return absoluteFilter(raw, from, to)
	}
	return TimeFilter{}, fmt.Errorf("unrecognised time filter %q", value)
}

func lookbackFilter(raw, amount, unit string) (TimeFilter, error) {
	n, err := strconv.ParseFloat(amount, 64)
	if err != nil || n <= 0 {
		return TimeFilter{}, fmt.Errorf("parse time filter %q: invalid amount", raw)
	}
	return TimeFilter{Raw: raw, Lookback: time.Duration(n * float64(unitDuration(unit)))}, nil
}

func absoluteFilter(raw string, from, to time.Time) (TimeFilter, error) {
	if !to.After(from) {
		return TimeFilter{}, fmt.Errorf("parse time filter %q: end must follow start", raw)
	}
	return TimeFilter{Raw: raw, From: from, To: to}, nil
}

func unitDuration(unit string) time.Duration {
	switch unit {
	case "s":
		return time.Second
	case "h":
		return time.Hour
	case "d":
		return 24 * time.Hour
	case "w":
		return 7 * 24 * time.Hour
	default:
		return time.Minute
	}
}

// IsLookback reports whether the filter is relative to "now".
func (f TimeFilter) IsLookback() bool {
	return f.Lookback > 0
}

// Duration returns the length of the window.
func (f TimeFilter) Duration() time.Duration {
	if f.IsLookback() {
		return f.Lookback
	}
	return f.To.Sub(f.From)
}

// Minutes returns the window length rounded to whole minutes.
func (f TimeFilter) Minutes() int {
	return int(math.Round(f.Duration().Minutes()))
}

// Window resolves the filter against now.
func (f TimeFilter) Window(now time.Time) (time.Time, time.Time) {
	if f.IsLookback() {
		return now.Add(-f.Lookback), now
	}
	return f.From, f.To
}

// DurationLabel renders a compact label such as "90m", "6h" or "2d".
func DurationLabel(minutes int) string {
	switch {
	case minutes <= 0:
		return "0m"
	case minutes%(24*60) == 0:
		return fmt.Sprintf("%dd", minutes/(24*60))
	case minutes%60 == 0:
		return fmt.Sprintf("%dh", minutes/60)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
