package adapters

import "github.com/jrsteele09/go-dashboard-client/internal/utils"

func AdaptCalculations(raw any) []Calculation {
	v, _ := DecodeCalculations(raw)
	return v
}

// DecodeCalculations accepts a bare array or one wrapped in "calculations",
// "data" or "history".
func DecodeCalculations(raw any) ([]Calculation, error) {
	return decodeList(raw, calculationFromObject, "calculations", "data", "history")
}

func AdaptCalculation(raw any) Calculation {
	v, _ := DecodeCalculation(raw)
	return v
}

// DecodeCalculation maps a single record, bare or wrapped in "calculation" or
// "data".
func DecodeCalculation(raw any) (Calculation, error) {
	obj := asMap(raw)
	if obj == nil {
		return Calculation{Input: map[string]any{}, Result: map[string]any{}}, shapeError(raw, "object")
	}
	for _, wrapper := range []string{"calculation", "data"} {
		if inner := asMap(obj[wrapper]); inner != nil {
			obj = inner
			break
		}
	}
	return calculationFromObject(obj), nil
}

func calculationFromObject(obj map[string]any) Calculation {
	input := asMap(obj["input"])
	if input == nil {
		input = map[string]any{}
	}
	result := asMap(obj["result"])
	if result == nil {
		result = map[string]any{}
	}
	ts := toTime(obj["timestamp"])
	if ts.IsZero() {
		ts = toTime(obj["created_at"])
	}
	return Calculation{
		ID:        utils.PtrOrNil(toString(obj["id"])),
		Company:   toString(obj["company"]),
		Input:     input,
		Result:    result,
		Timestamp: ts,
		Name:      utils.PtrOrNil(toString(obj["name"])),
	}
}
