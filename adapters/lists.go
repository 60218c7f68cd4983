package adapters

import (
	"fmt"

	"github.com/jrsteele09/go-dashboard-client/internal/utils"
)

// mapList applies fn to every object element of list. Non-object elements are
// skipped and reported.
func mapList[T any](list []any, fn func(map[string]any) T) ([]T, error) {
	out := make([]T, 0, len(list))
	var errs []error
	for i, item := range list {
		obj := asMap(item)
		if obj == nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, shapeError(item, "object")))
			continue
		}
		out = append(out, fn(obj))
	}
	return out, joinItemErrors(errs)
}

func decodeList[T any](raw any, fn func(map[string]any) T, fields ...string) ([]T, error) {
	list, err := unwrapList(raw, fields...)
	if err != nil {
		return []T{}, err
	}
	return mapList(list, fn)
}

func AdaptAPIKeys(raw any) []APIKey {
	v, _ := DecodeAPIKeys(raw)
	return v
}

// DecodeAPIKeys accepts a bare array or {"api_keys": [...]}.
func DecodeAPIKeys(raw any) ([]APIKey, error) {
	return decodeList(raw, apiKeyFromObject, "api_keys", "data")
}

func AdaptAPIKey(raw any) APIKey {
	v, _ := DecodeAPIKey(raw)
	return v
}

// DecodeAPIKey maps a single key, bare or wrapped in "api_key" or "data".
func DecodeAPIKey(raw any) (APIKey, error) {
	obj := asMap(raw)
	if obj == nil {
		return APIKey{Permissions: []string{}}, shapeError(raw, "object")
	}
	for _, wrapper := range []string{"api_key", "data"} {
		if inner := asMap(obj[wrapper]); inner != nil {
			key := apiKeyFromObject(inner)
			if key.Key == "" {
				key.Key = toString(obj["key"])
			}
			return key, nil
		}
	}
	return apiKeyFromObject(obj), nil
}

func apiKeyFromObject(obj map[string]any) APIKey {
	return APIKey{
		ID:          stringField(obj, "id", "key_id"),
		Name:        toString(obj["name"]),
		Prefix:      toString(obj["prefix"]),
		Permissions: utils.ToStringSlice(obj["permissions"]),
		IsActive:    toBool(obj["is_active"]),
		LastUsed:    stringField(obj, "last_used", "last_used_at"),
		UsageCount:  intField(obj, "usage_count"),
		CreatedAt:   toString(obj["created_at"]),
		Key:         toString(obj["key"]),
	}
}

func AdaptSessions(raw any) []Session {
	v, _ := DecodeSessions(raw)
	return v
}

// DecodeSessions accepts a bare array or {"sessions": [...]}.
func DecodeSessions(raw any) ([]Session, error) {
	return decodeList(raw, func(obj map[string]any) Session {
		return Session{
			ID:         toString(obj["id"]),
			DeviceInfo: stringField(obj, "device_info", "user_agent"),
			IPAddress:  toString(obj["ip_address"]),
			Location:   toString(obj["location"]),
			LastActive: stringField(obj, "last_active", "updated_at"),
			CreatedAt:  toString(obj["created_at"]),
		}
	}, "sessions", "data")
}

func AdaptNotifications(raw any) []Notification {
	v, _ := DecodeNotifications(raw)
	return v
}

// DecodeNotifications renames the backend's "read" flag to IsRead and
// stringifies numeric ids.
func DecodeNotifications(raw any) ([]Notification, error) {
	return decodeList(raw, func(obj map[string]any) Notification {
		read := obj["read"]
		if read == nil {
			read = obj["is_read"]
		}
		return Notification{
			ID:        toString(obj["id"]),
			Title:     toString(obj["title"]),
			Message:   toString(obj["message"]),
			Category:  toString(obj["category"]),
			IsRead:    toBool(read),
			CreatedAt: toString(obj["created_at"]),
		}
	}, "data", "notifications")
}

func AdaptNotificationCount(raw any) int64 {
	v, _ := DecodeNotificationCount(raw)
	return v
}

// DecodeNotificationCount accepts a bare number or an object carrying
// "count" or "unread_count", optionally under "data".
func DecodeNotificationCount(raw any) (int64, error) {
	if n, ok := toInt(raw); ok {
		return n, nil
	}
	obj := unwrapData(raw)
	if obj == nil {
		return 0, shapeError(raw, "number or object")
	}
	return intField(obj, "count", "unread_count", "unread"), nil
}

func AdaptEmissions(raw any) []EmissionData {
	v, _ := DecodeEmissions(raw)
	return v
}

// DecodeEmissions accepts a bare array or the {"status", "data", "source"}
// envelope. Values arriving as numeric strings are coerced to numbers.
func DecodeEmissions(raw any) ([]EmissionData, error) {
	envelopeSource := toString(asMap(raw)["source"])
	return decodeList(raw, func(obj map[string]any) EmissionData {
		year, _ := toInt(obj["year"])
		source := toString(obj["source"])
		if source == "" {
			source = envelopeSource
		}
		return EmissionData{
			ID:        stringField(obj, "id", "facility_id", "hash"),
			State:     toString(obj["state"]),
			Year:      int(year),
			Pollutant: toString(obj["pollutant"]),
			Value:     floatField(obj, "value", "amount", "emission_value"),
			Unit:      unitOf(obj),
			Source:    source,
		}
	}, "data", "emissions")
}

func unitOf(obj map[string]any) string {
	if unit := stringField(obj, "unit", "unit_type"); unit != "" {
		return unit
	}
	return "unknown"
}
