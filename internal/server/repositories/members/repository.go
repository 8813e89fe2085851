package members

import "context"

type Repository interface {
	MembersOf(ctx context.Context, cabinetID string) (map[string]struct{}, error)
	Add(ctx context.Context, cabinetID, userID string) error
}
