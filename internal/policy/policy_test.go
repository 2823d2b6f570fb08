package policy

import (
	"testing"

	"github.com/greenway-eco/backend/internal/models"
)

var allActions = []Action{
	ViewListing, CreateListing, EditListing, DeleteListing,
	ViewProfile, OpenChat, AskChatbot, ViewAdminPanel, ManageRoles,
	Action("unknown"),
}

func TestAdminIsAlwaysAllowed(t *testing.T) {
	resources := []Resource{{}, {OwnerID: "someone"}, {OwnerID: "a1"}}
	for _, action := range allActions {
		for _, res := range resources {
			if d := Authorize(models.RoleAdmin, "a1", action, res); !d.Allowed {
				t.Fatalf("admin denied %s on %+v: %s", action, res, d.Reason)
			}
		}
	}
}

func TestOwnerOfResource(t *testing.T) {
	listing := Resource{OwnerID: "X"}

	if d := Authorize(models.RoleOwner, "X", DeleteListing, listing); !d.Allowed {
		t.Fatalf("owner X should delete own listing, got %s", d.Reason)
	}
	if d := Authorize(models.RoleOwner, "X", EditListing, listing); !d.Allowed {
		t.Fatalf("owner X should edit own listing, got %s", d.Reason)
	}
	if d := Authorize(models.RoleOwner, "Y", DeleteListing, listing); d.Allowed {
		t.Fatalf("owner Y must not delete listing of X")
	}
	if d := Authorize(models.RoleUser, "Y", EditListing, listing); d.Allowed || d.Reason != ReasonNoPermission {
		t.Fatalf("expected no permission, got %+v", d)
	}
}

func TestFormerOwnerKeepsAccess(t *testing.T) {
	// the account behind X may have been demoted or deleted
	if d := Authorize(models.RoleUser, "X", DeleteListing, Resource{OwnerID: "X"}); !d.Allowed {
		t.Fatalf("expected former owner id to stay authorized")
	}
}

func TestEmptyCallerNeverMatchesOwnerlessResource(t *testing.T) {
	if d := Authorize(models.RoleUser, "", DeleteListing, Resource{}); d.Allowed {
		t.Fatalf("empty caller id must not match an empty owner id")
	}
}

func TestRoleRestrictedActions(t *testing.T) {
	cases := []struct {
		role    models.Role
		action  Action
		allowed bool
	}{
		{models.RoleOwner, CreateListing, true},
		{models.RoleUser, CreateListing, false},
		{models.RolePerson, CreateListing, false},
		{models.RoleOwner, ViewAdminPanel, false},
		{models.RoleUser, ManageRoles, false},
	}
	for _, tc := range cases {
		d := Authorize(tc.role, "caller", tc.action, Resource{})
		if d.Allowed != tc.allowed {
			t.Fatalf("%s %s: expected allowed=%v, got %+v", tc.role, tc.action, tc.allowed, d)
		}
		if !d.Allowed && d.Reason != ReasonWrongRole {
			t.Fatalf("%s %s: expected reason %q, got %q", tc.role, tc.action, ReasonWrongRole, d.Reason)
		}
	}
}

func TestOpenActions(t *testing.T) {
	for _, action := range []Action{ViewListing, ViewProfile, OpenChat, AskChatbot} {
		for _, role := range []models.Role{models.RolePerson, models.RoleUser, models.RoleOwner} {
			if d := Authorize(role, "caller", action, Resource{}); !d.Allowed {
				t.Fatalf("%s should be open to %s", action, role)
			}
		}
	}
}

func TestUnknownActionDenied(t *testing.T) {
	if d := Authorize(models.RoleOwner, "caller", Action("export-bookings"), Resource{}); d.Allowed || d.Reason != ReasonNoPermission {
		t.Fatalf("expected no permission, got %+v", d)
	}
}
