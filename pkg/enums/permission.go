package enums

import "fmt"

// Permission names one guarded action.
type Permission string

const (
	PermissionViewInventory   Permission = "view_inventory"
	PermissionAddItem         Permission = "add_item"
	PermissionUpdateItem      Permission = "update_item"
	PermissionAdjustStock     Permission = "adjust_stock"
	PermissionDeleteItem      Permission = "delete_item"
	PermissionRecordWaste     Permission = "record_waste"
	PermissionViewActivity    Permission = "view_activity"
	PermissionViewAudit       Permission = "view_audit"
	PermissionExportInventory Permission = "export_inventory"
	PermissionExportReports   Permission = "export_reports"
	PermissionManageUsers     Permission = "manage_users"
)

var validPermissions = []Permission{
	PermissionViewInventory,
	PermissionAddItem,
	PermissionUpdateItem,
	PermissionAdjustStock,
	PermissionDeleteItem,
	PermissionRecordWaste,
	PermissionViewActivity,
	PermissionViewAudit,
	PermissionExportInventory,
	PermissionExportReports,
	PermissionManageUsers,
}

// String implements fmt.Stringer.
func (p Permission) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Permission.
func (p Permission) IsValid() bool {
	for _, candidate := range validPermissions {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePermission converts raw input into a Permission.
func ParsePermission(value string) (Permission, error) {
	for _, candidate := range validPermissions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid permission %q", value)
}
