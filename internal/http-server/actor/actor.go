package actor

import (
	"net/http"
	"strings"

	"salon-service/internal/models"
)

// FromRequest reads the actor identity supplied by the edge. Unknown role
// strings are dropped; an absent header means an anonymous customer.
func FromRequest(r *http.Request) models.Actor {
	a := models.Actor{ID: r.Header.Get("X-Actor-Id")}

	for _, raw := range strings.Split(r.Header.Get("X-Actor-Roles"), ",") {
		if role, ok := models.ParseRole(strings.TrimSpace(raw)); ok {
			a.Roles = append(a.Roles, role)
		}
	}

	if len(a.Roles) == 0 {
		a.Roles = []models.Role{models.RoleCustomer}
	}

	return a
}
