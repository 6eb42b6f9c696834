package venue

import (
	"encoding/json"
	"strconv"
)

// decodeNumber parses a JSON number that the venue may encode as a native
// JSON number, a quoted string, or leave absent. Malformed values return a
// *DecodeError rather than a zero value, so callers can drop the record
// instead of corrupting an aggregate with a silent 0.
func decodeNumber(field string, raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, &DecodeError{Field: field, Value: nil}
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		f, err := strconv.ParseFloat(asString, 64)
		if err != nil {
			return 0, &DecodeError{Field: field, Value: asString}
		}
		return f, nil
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber, nil
	}

	return 0, &DecodeError{Field: field, Value: string(raw)}
}

// decodeOptionalLiquidationPrice handles the three observed encodings of
// "no liquidation price known": an absent key, JSON null, and the literal
// string "null". All three yield a nil pointer rather than a synthetic zero.
func decodeOptionalLiquidationPrice(raw json.RawMessage) (*float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	trimmed := string(raw)
	if trimmed == "null" {
		return nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" || asString == "null" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(asString, 64)
		if err != nil {
			return nil, &DecodeError{Field: "liquidationPx", Value: asString}
		}
		return &f, nil
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return &asNumber, nil
	}

	return nil, &DecodeError{Field: "liquidationPx", Value: string(raw)}
}
