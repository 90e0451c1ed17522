package auth

import "strings"

// Permission modules correspond to the REST collections.
const (
	ModuleProducts   = "products"
	ModuleSuppliers  = "suppliers"
	ModuleCustomers  = "customers"
	ModuleQuotations = "quotations"
	ModuleOrders     = "orders"
	ModuleDeals      = "deals"
	ModuleAdmin      = "admin"
)

// Permission actions.
const (
	PermActionView   = "view"
	PermActionCreate = "create"
	PermActionEdit   = "edit"
	PermActionDelete = "delete"
)

// Roles.
const (
	RoleAdmin    = "admin"
	RoleUser     = "user"
	RoleReadonly = "readonly"
)

// HasPermission applies the fixed role matrix: admin may do anything,
// user everything outside the admin module, readonly only view.
func HasPermission(role, module, action string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleUser:
		return module != ModuleAdmin
	case RoleReadonly:
		return action == PermActionView && module != ModuleAdmin
	}
	return false
}

// MapAPIPathToPermission maps an API path (relative to /api/v1/) and method
// to (module, action). Empty strings mean no permission check applies.
func MapAPIPathToPermission(apiPath, method string) (module, action string) {
	parts := strings.Split(strings.Trim(apiPath, "/"), "/")
	switch method {
	case "GET", "HEAD":
		action = PermActionView
	case "POST":
		action = PermActionCreate
	case "PUT", "PATCH":
		action = PermActionEdit
	case "DELETE":
		action = PermActionDelete
	}

	switch parts[0] {
	case "products":
		module = ModuleProducts
		// bulk-update and import modify existing rows
		if len(parts) == 2 && (parts[1] == "bulk-update" || parts[1] == "import") {
			action = PermActionEdit
		}
	case "suppliers":
		module = ModuleSuppliers
	case "customers":
		module = ModuleCustomers
	case "quotations":
		module = ModuleQuotations
		// converting a quotation creates an order
		if len(parts) == 3 && parts[2] == "convert" {
			module, action = ModuleOrders, PermActionCreate
		}
	case "orders":
		module = ModuleOrders
	case "deals":
		module = ModuleDeals
	case "users", "audit", "backups":
		module = ModuleAdmin
	default:
		return "", ""
	}
	return module, action
}
