// Package policy decides whether a resolved caller may perform an action.
package policy

import "github.com/greenway-eco/backend/internal/models"

// Action is a protected operation.
type Action string

const (
	ViewListing    Action = "view-listing"
	CreateListing  Action = "create-listing"
	EditListing    Action = "edit-listing"
	DeleteListing  Action = "delete-listing"
	ViewProfile    Action = "view-profile"
	OpenChat       Action = "open-chat"
	AskChatbot     Action = "ask-chatbot"
	ViewAdminPanel Action = "view-admin-panel"
	ManageRoles    Action = "manage-roles"
)

// Deny reasons.
const (
	ReasonWrongRole    = "wrong role"
	ReasonNoPermission = "no permission"
)

// resourceScoped actions are allowed for the owner of the target resource.
var resourceScoped = map[Action]bool{
	EditListing:   true,
	DeleteListing: true,
}

// requiredRole lists actions reserved for a single role.
var requiredRole = map[Action]models.Role{
	CreateListing:  models.RoleOwner,
	ViewAdminPanel: models.RoleAdmin,
	ManageRoles:    models.RoleAdmin,
}

// open actions are allowed for any resolved identity.
var open = map[Action]bool{
	ViewListing: true,
	ViewProfile: true,
	OpenChat:    true,
	AskChatbot:  true,
}

// Resource is the target of a resource-scoped action. The zero value has no owner.
type Resource struct {
	OwnerID string
}

// Decision is the outcome of Authorize. Reason is empty when Allowed.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Authorize applies the rules in order: admins may do anything, the owner of a
// resource may edit or delete it, role-restricted actions need that role, open
// actions are allowed, and everything else is denied.
//
// A resource owned by a deleted account still authorizes that account's id.
func Authorize(role models.Role, callerID string, action Action, resource Resource) Decision {
	if role == models.RoleAdmin {
		return allow()
	}
	if resourceScoped[action] && callerID != "" && resource.OwnerID == callerID {
		return allow()
	}
	if required, ok := requiredRole[action]; ok {
		if role == required {
			return allow()
		}
		return deny(ReasonWrongRole)
	}
	if open[action] {
		return allow()
	}
	return deny(ReasonNoPermission)
}
