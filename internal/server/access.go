package server

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/bookly/authcore/internal/auth"
)

const RolePublic = "public"

var (
	anyAccount = []string{string(auth.RoleUser), string(auth.RoleAdmin)}
	adminOnly  = []string{string(auth.RoleAdmin)}
	public     = []string{RolePublic}
)

type AccessRule struct {
	Method string
	Path   string
	Roles  []string
}

// endpointAccess lists the roles allowed on every API route. Routes
// registered without an entry panic at startup.
var endpointAccess = []AccessRule{
	{Method: http.MethodPost, Path: "/api/auth/register", Roles: public},
	{Method: http.MethodPost, Path: "/api/auth/login", Roles: public},
	{Method: http.MethodPost, Path: "/api/auth/logout", Roles: public},
	{Method: http.MethodPost, Path: "/api/auth/send-reset-otp", Roles: public},
	{Method: http.MethodPost, Path: "/api/auth/reset-password", Roles: public},

	{Method: http.MethodPost, Path: "/api/auth/send-verify-otp", Roles: anyAccount},
	{Method: http.MethodPost, Path: "/api/auth/verify-account", Roles: anyAccount},
	{Method: http.MethodGet, Path: "/api/auth/is-auth", Roles: anyAccount},
	{Method: http.MethodGet, Path: "/api/accounts/{id}", Roles: anyAccount},
	{Method: http.MethodPatch, Path: "/api/accounts/{id}", Roles: anyAccount},

	{Method: http.MethodGet, Path: "/api/admin/accounts/{id}", Roles: adminOnly},
	{Method: http.MethodGet, Path: "/api/admin/accounts/{id}/audit", Roles: adminOnly},
}

func accessRoles(method, path string) []string {
	for _, rule := range endpointAccess {
		if rule.Method == method && rule.Path == path {
			return rule.Roles
		}
	}
	panic(fmt.Sprintf("missing access roles for %s %s", method, path))
}

func roleAllowed(roles []string, role string) bool {
	return slices.Contains(roles, role)
}

func isPublicAccess(roles []string) bool {
	return roleAllowed(roles, RolePublic)
}
