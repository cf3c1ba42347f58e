package authz

import (
	"fmt"

	"github.com/brewmetric/brewmetric-core/pkg/db/models"
	"github.com/brewmetric/brewmetric-core/pkg/enums"
	pkgerrors "github.com/brewmetric/brewmetric-core/pkg/errors"
)

// staffAllowed is the fixed allow-list for the staff role. Admins bypass it.
var staffAllowed = map[enums.Permission]struct{}{
	enums.PermissionViewInventory:   {},
	enums.PermissionAddItem:         {},
	enums.PermissionAdjustStock:     {},
	enums.PermissionRecordWaste:     {},
	enums.PermissionViewActivity:    {},
	enums.PermissionExportInventory: {},
}

// Permitted reports whether the user may perform the action. A nil user is
// always denied; admins are permitted everything.
func Permitted(user *models.User, perm enums.Permission) bool {
	if user == nil || !perm.IsValid() {
		return false
	}
	switch user.Role {
	case enums.RoleAdmin:
		return true
	case enums.RoleStaff:
		_, ok := staffAllowed[perm]
		return ok
	}
	return false
}

// Require returns a forbidden error unless the user may perform the action.
// Services call it before touching inventory or audit state.
func Require(user *models.User, perm enums.Permission) error {
	if Permitted(user, perm) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("not permitted: %s", perm))
}
