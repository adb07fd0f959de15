package bot

import "context"

// AccessChecker gates who may search. Implementations may call out to a
// membership API; errors are treated as a denial.
type AccessChecker interface {
	Allowed(ctx context.Context, userID int64) (bool, error)
}

// AllowList admits the listed users. An empty list admits everyone.
type AllowList map[int64]struct{}

func NewAllowList(ids []int64) AllowList {
	list := make(AllowList, len(ids))
	for _, id := range ids {
		list[id] = struct{}{}
	}
	return list
}

func (l AllowList) Allowed(_ context.Context, userID int64) (bool, error) {
	if len(l) == 0 {
		return true, nil
	}
	_, ok := l[userID]
	return ok, nil
}
