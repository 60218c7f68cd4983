// Package adapters normalises backend payloads into the client's stable types.
//
// Every adapter comes in two forms. DecodeX validates the payload shape and
// maps it, reporting what was wrong alongside a best-effort value. AdaptX is
// total: it never panics, never returns nil collections, and falls back to the
// zero shape of its type on missing or malformed input. Callers that want
// malformed payloads to fail loudly (development builds) use DecodeX.
package adapters

import (
	"errors"
	"fmt"
)

var errMissing = errors.New("payload is empty")

func shapeError(raw any, want string) error {
	if raw == nil {
		return errMissing
	}
	return fmt.Errorf("expected %s, got %T", want, raw)
}

// joinItemErrors folds per-item problems into one error, keeping the first few.
func joinItemErrors(errs []error) error {
	const keep = 3
	if len(errs) == 0 {
		return nil
	}
	if len(errs) > keep {
		errs = append(errs[:keep:keep], fmt.Errorf("and %d more", len(errs)-keep))
	}
	return errors.Join(errs...)
}

// AdaptObject returns raw as a JSON object, or an empty one. Used for
// responses whose content is opaque to the client (calculation results,
// validation reports, export packages).
func AdaptObject(raw any) map[string]any {
	v, _ := DecodeObject(raw)
	return v
}

func DecodeObject(raw any) (map[string]any, error) {
	if obj := asMap(raw); obj != nil {
		return obj, nil
	}
	return map[string]any{}, shapeError(raw, "object")
}
