package adapters

import (
	"regexp"
	"sort"
	"strconv"
)

var yearKey = regexp.MustCompile(`^\d+$`)

func AdaptUserStats(raw any) UserStats {
	v, _ := DecodeUserStats(raw)
	return v
}

// DecodeUserStats maps the backend's call counters onto the dashboard's
// request counters. Daily and session counts are not provided by the backend.
func DecodeUserStats(raw any) (UserStats, error) {
	obj := unwrapData(raw)
	if obj == nil {
		return UserStats{}, shapeError(raw, "object")
	}
	return UserStats{
		TotalRequests:     intField(obj, "total_calls", "total_requests"),
		RequestsThisMonth: intField(obj, "monthly_calls", "requests_this_month", "total_calls"),
		APIKeysCount:      intField(obj, "active_keys", "api_keys_count"),
	}, nil
}

func AdaptEmissionStats(raw any) EmissionStats {
	v, _ := DecodeEmissionStats(raw)
	return v
}

// DecodeEmissionStats derives the summary figures from the histogram objects
// under "statistics": the year range from numeric by_year keys, coverage from
// the number of by_state keys and the pollutant list from by_pollutant keys.
func DecodeEmissionStats(raw any) (EmissionStats, error) {
	stats := EmissionStats{Pollutants: []string{}}
	obj := asMap(raw)
	if obj == nil {
		return stats, shapeError(raw, "object")
	}
	statistics := asMap(obj["statistics"])
	if statistics == nil {
		return stats, shapeError(obj["statistics"], "statistics object")
	}

	stats.TotalRecords = intField(statistics, "total_records")
	stats.StatesCovered = len(asMap(statistics["by_state"]))
	stats.YearsRange = yearsRange(asMap(statistics["by_year"]))
	stats.Pollutants = sortedKeys(asMap(statistics["by_pollutant"]))
	return stats, nil
}

func yearsRange(byYear map[string]any) YearsRange {
	var r YearsRange
	first := true
	for key := range byYear {
		if !yearKey.MatchString(key) {
			continue
		}
		year, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if first || year < r.Min {
			r.Min = year
		}
		if first || year > r.Max {
			r.Max = year
		}
		first = false
	}
	return r
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
