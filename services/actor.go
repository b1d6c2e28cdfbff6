package services

import "github.com/kendall-kelly/atelier-api/models"

// Actor is the authenticated caller of a lifecycle operation.
// It is passed explicitly to every operation instead of living in shared state.
type Actor struct {
	UserID uint
	Role   string
}

// ActorFromUser builds the actor for a persisted user
func ActorFromUser(u *models.User) Actor {
	return Actor{UserID: u.ID, Role: u.Role}
}

func (a Actor) IsDesigner() bool { return a.Role == models.RoleDesigner }

func (a Actor) IsSupplier() bool { return a.Role == models.RoleSupplier }
