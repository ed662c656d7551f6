package dispatch

import (
	"context"
	"fmt"

	"bizpulse/internal/alert"
	"bizpulse/internal/directory"
)

// RecipientPolicy resolves who is notified of an event.
type RecipientPolicy func(ctx context.Context, dir directory.Directory, e alert.Event) ([]directory.User, error)

func AllAdmins(ctx context.Context, dir directory.Directory, _ alert.Event) ([]directory.User, error) {
	return dir.ByRoles(ctx, directory.RoleAdmin)
}

func AdminsAndManagers(ctx context.Context, dir directory.Directory, _ alert.Event) ([]directory.User, error) {
	return dir.ByRoles(ctx, directory.RoleAdmin, directory.RoleManager)
}

// ManagerChain notifies the managers above the event's subject, falling back
// to the initiator and then to all admins when no chain exists.
func ManagerChain(ctx context.Context, dir directory.Directory, e alert.Event) ([]directory.User, error) {
	var userID int64
	if s, ok := e.(alert.Subjected); ok {
		userID = s.SubjectUserID()
	}
	if userID == 0 {
		if by := e.InitiatedBy(); by != nil {
			userID = by.ID
		}
	}

	if userID != 0 {
		chain, err := dir.ManagerChain(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve manager chain of user %d: %w", userID, err)
		}
		if len(chain) > 0 {
			return chain, nil
		}
	}
	return AllAdmins(ctx, dir, e)
}

// DefaultRecipientPolicies maps event types to their recipient policy.
// Types without an entry go to all admins.
func DefaultRecipientPolicies() map[string]RecipientPolicy {
	return map[string]RecipientPolicy{
		alert.TypeHighValueSale:  AdminsAndManagers,
		alert.TypeUnusualExpense: ManagerChain,
		alert.TypeGoalFailed:     ManagerChain,
	}
}

func dedupeUsers(users []directory.User) []directory.User {
	seen := make(map[int64]bool, len(users))
	out := users[:0:0]
	for _, u := range users {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	return out
}
