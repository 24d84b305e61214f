package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/agroconnect/gate-go/claims"
)

// ErrMalformedBody is returned when a lookup response has neither a
// "profile" nor a "profiles" key, or the value has the wrong shape.
var ErrMalformedBody = errors.New("gate/profile: malformed response body")

// Normalize decides profile existence from a lookup response body.
//
// Two shapes are accepted. {"profile": {...}} exists when the value is
// non-null. {"profiles": [{"user_id": 7}, ...]} exists when some element's
// user_id equals userID. Keys are matched case-insensitively and any other
// top-level keys are ignored. A non-null "profile" wins over "profiles" when
// a body carries both.
func Normalize(body []byte, userID string) (bool, error) {
	var top map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&top); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	single, hasProfile := field(top, "profile")
	if hasProfile && !isNull(single) {
		return true, nil
	}
	if raw, ok := field(top, "profiles"); ok {
		return anyOwnedBy(raw, userID)
	}
	if hasProfile {
		return false, nil
	}
	return false, ErrMalformedBody
}

func anyOwnedBy(raw json.RawMessage, userID string) (bool, error) {
	if isNull(raw) {
		return false, nil
	}
	var items []map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return false, fmt.Errorf("%w: profiles: %v", ErrMalformedBody, err)
	}
	if userID == "" {
		return false, nil
	}
	for _, it := range items {
		for k, v := range it {
			if strings.EqualFold(k, "user_id") && v != nil && claims.StringOf(v) == userID {
				return true, nil
			}
		}
	}
	return false, nil
}

// field returns top[name], preferring an exact key over a case-folded one.
func field(top map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	if v, ok := top[name]; ok {
		return v, true
	}
	for k, v := range top {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
