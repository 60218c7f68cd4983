package adapters

import (
	"fmt"
	"regexp"
	"strconv"
)

var rateLimitPattern = regexp.MustCompile(`(\d+)/(\d+)`)

func AdaptDeveloperStats(raw any) DeveloperStats {
	v, _ := DecodeDeveloperStats(raw)
	return v
}

func DecodeDeveloperStats(raw any) (DeveloperStats, error) {
	data := unwrapData(raw)
	if data == nil {
		return DeveloperStats{}, shapeError(raw, "object")
	}
	return DeveloperStats{
		RequestsCount:      intField(data, "total_calls", "requests_count"),
		RequestsLimit:      intField(data, "requests_limit"),
		RateLimitRemaining: intField(data, "rate_limit_remaining"),
		RateLimitReset:     intField(data, "rate_limit_reset"),
	}, nil
}

func AdaptUsageAnalytics(raw any) UsageAnalytics {
	v, _ := DecodeUsageAnalytics(raw)
	return v
}

// DecodeUsageAnalytics totals the usage_count of every activity entry.
func DecodeUsageAnalytics(raw any) (UsageAnalytics, error) {
	usage := UsageAnalytics{
		Period:         "24h",
		EndpointsUsage: []EndpointUsage{},
	}
	data := unwrapData(raw)
	if data == nil {
		return usage, shapeError(raw, "object")
	}

	if hours, ok := toInt(data["window_hours"]); ok && hours != 0 {
		usage.Period = fmt.Sprintf("%dh", hours)
	}

	var err error
	if activity, ok := data["activity"]; ok && activity != nil {
		list := asList(activity)
		if list == nil {
			err = shapeError(activity, "activity array")
		} else {
			usage.EndpointsUsage, err = mapList(list, func(entry map[string]any) EndpointUsage {
				endpoint := stringField(entry, "prefix", "key_id")
				if endpoint == "" {
					endpoint = "unknown"
				}
				return EndpointUsage{Endpoint: endpoint, Count: intField(entry, "usage_count")}
			})
		}
	}
	for _, e := range usage.EndpointsUsage {
		usage.TotalRequests += e.Count
	}
	return usage, err
}

// ParseRateLimitInfo parses "<limit>/<window_seconds>", for example
// "1000/3600". Empty, non-matching or out of range strings yield zero limits.
func ParseRateLimitInfo(limit string) RateLimitInfo {
	info := RateLimitInfo{Raw: limit}
	match := rateLimitPattern.FindStringSubmatch(limit)
	if match == nil {
		return info
	}
	l, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return info
	}
	w, err := strconv.ParseInt(match[2], 10, 64)
	if err != nil {
		return info
	}
	info.Limit = l
	info.WindowSeconds = w
	return info
}

func AdaptRateLimits(raw any) RateLimits {
	v, _ := DecodeRateLimits(raw)
	return v
}

// DecodeRateLimits reads the account default ("rate_limit" or "default") and
// the per-key limits ("keys" or "api_keys"), each a "<limit>/<window>" string.
func DecodeRateLimits(raw any) (RateLimits, error) {
	limits := RateLimits{Keys: []KeyRateLimit{}}
	data := unwrapData(raw)
	if data == nil {
		return limits, shapeError(raw, "object")
	}

	limits.Default = ParseRateLimitInfo(stringField(data, "rate_limit", "default"))

	list := asList(data["keys"])
	if list == nil {
		list = asList(data["api_keys"])
	}
	var err error
	limits.Keys, err = mapList(list, func(entry map[string]any) KeyRateLimit {
		return KeyRateLimit{
			KeyID:     stringField(entry, "key_id", "id"),
			Prefix:    toString(entry["prefix"]),
			RateLimit: ParseRateLimitInfo(toString(entry["rate_limit"])),
		}
	})
	return limits, err
}
