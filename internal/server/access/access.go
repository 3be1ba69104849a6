// Package access holds the object visibility rules. The predicates are
// pure; the service layer turns a refusal into its access-denied error.
package access

import "github.com/mosaicedu/notevault/internal/server/models"

// CanRead reports whether actorID may read obj. Public objects are readable
// by anyone, including anonymous actors. Private and unlisted objects are
// readable only by their owner; resolving an unlisted link happens a layer
// above, so down here unlisted behaves like private.
func CanRead(obj *models.StoredObject, actorID string) bool {
	if obj.Visibility == models.VisibilityPublic {
		return true
	}
	return actorID != "" && obj.OwnerID == actorID
}

// CanModify reports whether actorID may change or delete obj. Visibility
// never grants mutation; only the owner qualifies.
func CanModify(obj *models.StoredObject, actorID string) bool {
	return actorID != "" && obj.OwnerID == actorID
}
