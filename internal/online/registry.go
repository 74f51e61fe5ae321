/*
@Author: Lzww
@LastEditTime: 2026-10-14 20:52:37
@Description: Session advertisement registry
@Language: Go

┌──────────────────────────────────────┐
│         Subsystem                    │
│  (lobby.Backend)                     │
│  - CreateSession()                   │
│  - FindSessions()                    │
│  - JoinSession()                     │
└──────────────┬───────────────────────┘
               │ Registry
┌──────────────▼───────────────────────┐
│  - Advertise()                       │
│  - Get() / Update() / Remove()       │
│  - Search()                          │
└──────────────┬───────────────────────┘
	┌──────────┼──────────┐
┌───▼────┐ ┌───▼───┐ ┌────▼───┐
│ Memory │ │ Redis │ │  etcd  │
└────────┘ └───────┘ └────────┘
*/
package online

import (
	"context"
	"sort"
	"time"
)

// Registry stores session advertisements
type Registry interface {
	// Advertise stores a new advertisement
	Advertise(ctx context.Context, adv *Advertisement) error

	// Get retrieves an advertisement by key
	Get(ctx context.Context, key string) (*Advertisement, error)

	// Update atomically applies fn to the stored advertisement
	Update(ctx context.Context, key string, fn func(*Advertisement) error) (*Advertisement, error)

	// Remove deletes an advertisement
	Remove(ctx context.Context, key string) error

	// Search lists advertisements matching q, oldest first
	Search(ctx context.Context, q Query) ([]*Advertisement, error)

	// Count returns the number of stored advertisements
	Count(ctx context.Context) (int, error)

	// Close releases the registry's resources
	Close() error
}

// Refresher is implemented by registries whose advertisements expire
// unless the owner refreshes them
type Refresher interface {
	// Refresh extends the lifetime of the advertisement under key
	Refresh(ctx context.Context, key string) error

	// RefreshInterval is how often a live advertisement must be refreshed
	RefreshInterval() time.Duration
}

// filterAdvertisements applies q to advs and sorts the survivors by creation time
func filterAdvertisements(advs []*Advertisement, q Query) []*Advertisement {
	out := make([]*Advertisement, 0, len(advs))
	for _, adv := range advs {
		if adv.Matches(q) {
			out = append(out, adv)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
