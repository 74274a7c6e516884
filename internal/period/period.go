// Package period derives labeled reporting windows from a year and an
// optional quarter selector.
package period

import (
	"fmt"
	"strings"
	"time"
)

// Period is a half-open [Start, End) reporting window in UTC.
type Period struct {
	Label string
	Start time.Time
	End   time.Time
}

func quarter(year, q int) Period {
	startMonth := time.Month(1 + (q-1)*3)
	start := time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Label: fmt.Sprintf("%d-Q%d", year, q),
		Start: start,
		End:   start.AddDate(0, 3, 0),
	}
}

// Derive returns the periods selected for a year. An empty selector yields
// all four quarters in order; "all" yields the single full-year period;
// "Q1".."Q4" (case-insensitive) yields one quarter. Anything else is an
// error attributed to user input.
func Derive(year int, selector string) ([]Period, error) {
	switch strings.ToUpper(strings.TrimSpace(selector)) {
	case "":
		return []Period{quarter(year, 1), quarter(year, 2), quarter(year, 3), quarter(year, 4)}, nil
	case "ALL":
		return []Period{{
			Label: fmt.Sprintf("%d", year),
			Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC),
		}}, nil
	case "Q1":
		return []Period{quarter(year, 1)}, nil
	case "Q2":
		return []Period{quarter(year, 2)}, nil
	case "Q3":
		return []Period{quarter(year, 3)}, nil
	case "Q4":
		return []Period{quarter(year, 4)}, nil
	default:
		return nil, fmt.Errorf("invalid period %q: expected Q1-Q4 or all", selector)
	}
}
