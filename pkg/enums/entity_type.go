package enums

import "fmt"

// EntityType names the kind of record an audit entry references.
type EntityType string

const (
	EntityTypeUser          EntityType = "User"
	EntityTypeInventoryItem EntityType = "InventoryItem"
	EntityTypeWasteLog      EntityType = "WasteLog"
)

var validEntityTypes = []EntityType{
	EntityTypeUser,
	EntityTypeInventoryItem,
	EntityTypeWasteLog,
}

// String implements fmt.Stringer.
func (e EntityType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EntityType.
func (e EntityType) IsValid() bool {
	for _, candidate := range validEntityTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEntityType converts raw input into an EntityType.
func ParseEntityType(value string) (EntityType, error) {
	for _, candidate := range validEntityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entity type %q", value)
}
