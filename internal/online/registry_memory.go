/*
@Author: Lzww
@LastEditTime: 2026-10-14 21:03:55
@Description: Registry memory implementation
@Language: Go
*/
package online

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRegistry is an in-memory implementation of Registry
type MemoryRegistry struct {
	mu     sync.RWMutex
	ads    map[string]*Advertisement
	closed bool
}

// NewMemoryRegistry creates a new in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		ads: make(map[string]*Advertisement),
	}
}

// Advertise stores a new advertisement
func (r *MemoryRegistry) Advertise(ctx context.Context, adv *Advertisement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, exists := r.ads[adv.Key]; exists {
		return fmt.Errorf("%w: %s", ErrAdvertisementExists, adv.Key)
	}

	r.ads[adv.Key] = adv.Clone()
	return nil
}

// Get retrieves an advertisement by key
func (r *MemoryRegistry) Get(ctx context.Context, key string) (*Advertisement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adv, exists := r.ads[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAdvertisementNotFound, key)
	}

	return adv.Clone(), nil
}

// Update atomically applies fn to the stored advertisement
func (r *MemoryRegistry) Update(ctx context.Context, key string, fn func(*Advertisement) error) (*Advertisement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.ads[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAdvertisementNotFound, key)
	}

	adv := stored.Clone()
	if err := fn(adv); err != nil {
		return nil, err
	}
	r.ads[key] = adv

	return adv.Clone(), nil
}

// Remove deletes an advertisement
func (r *MemoryRegistry) Remove(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ads[key]; !exists {
		return fmt.Errorf("%w: %s", ErrAdvertisementNotFound, key)
	}
	delete(r.ads, key)

	return nil
}

// Search lists advertisements matching q
func (r *MemoryRegistry) Search(ctx context.Context, q Query) ([]*Advertisement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Advertisement, 0, len(r.ads))
	for _, adv := range r.ads {
		all = append(all, adv.Clone())
	}

	return filterAdvertisements(all, q), nil
}

// Count returns the number of stored advertisements
func (r *MemoryRegistry) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ads), nil
}

// Close marks the registry closed
func (r *MemoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
