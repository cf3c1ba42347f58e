package enums

import "fmt"

// WasteReason categorizes a stock write-off.
type WasteReason string

const (
	WasteReasonSpill    WasteReason = "spill"
	WasteReasonExpired  WasteReason = "expired"
	WasteReasonQuality  WasteReason = "quality"
	WasteReasonDamaged  WasteReason = "damaged"
	WasteReasonOverbrew WasteReason = "overbrew"
	WasteReasonOther    WasteReason = "other"
)

var validWasteReasons = []WasteReason{
	WasteReasonSpill,
	WasteReasonExpired,
	WasteReasonQuality,
	WasteReasonDamaged,
	WasteReasonOverbrew,
	WasteReasonOther,
}

// WasteReasons returns the configured write-off categories in display order.
func WasteReasons() []WasteReason {
	out := make([]WasteReason, len(validWasteReasons))
	copy(out, validWasteReasons)
	return out
}

// String implements fmt.Stringer.
func (w WasteReason) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WasteReason.
func (w WasteReason) IsValid() bool {
	for _, candidate := range validWasteReasons {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWasteReason converts raw input into a WasteReason.
func ParseWasteReason(value string) (WasteReason, error) {
	for _, candidate := range validWasteReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid waste reason %q", value)
}
