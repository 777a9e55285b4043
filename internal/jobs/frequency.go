package jobs

import "github.com/gorhill/cronexpr"

// NormalizeFrequency canonicalises a briefing frequency at add time. Plain
// words map onto cron macros; anything that parses as a cron expression is
// kept verbatim; everything else falls back to daily. The value is stored
// informationally only; the sweep does not gate on it.
func NormalizeFrequency(s string) string {
	switch s {
	case "", "daily", "@daily", "every day":
		return "@daily"
	case "weekly", "@weekly", "every week":
		return "@weekly"
	case "hourly", "@hourly", "every hour":
		return "@hourly"
	}
	if _, err := cronexpr.Parse(s); err == nil {
		return s
	}
	return "@daily"
}
