package online

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// EtcdConfig etcd connection configuration
type EtcdConfig struct {
	Endpoints   []string      // etcd endpoints
	DialTimeout time.Duration // dial timeout
	Username    string        // optional
	Password    string        // optional
}

// NewEtcdClient creates an etcd client from config
func NewEtcdClient(config *EtcdConfig) (*clientv3.Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config is nil")
	}

	clientConfig := clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
	}

	if config.Username != "" {
		clientConfig.Username = config.Username
		clientConfig.Password = config.Password
	}

	client, err := clientv3.New(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	return client, nil
}

// EtcdRegistry stores each advertisement under its own lease, kept alive
// while this process hosts it. A crashed host's advertisements expire with
// their lease.
type EtcdRegistry struct {
	client *clientv3.Client
	logger *zap.Logger
	prefix string
	ttl    int64

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

// EtcdRegistryConfig etcd registry configuration
type EtcdRegistryConfig struct {
	Client *clientv3.Client
	Logger *zap.Logger
	Prefix string        // key prefix, default "/lobby/ads/"
	TTL    time.Duration // lease TTL, default 10s
}

// NewEtcdRegistry creates a new etcd-based registry
func NewEtcdRegistry(config *EtcdRegistryConfig) (*EtcdRegistry, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("etcd client is required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Prefix == "" {
		config.Prefix = "/lobby/ads/"
	}
	ttl := int64(config.TTL / time.Second)
	if ttl <= 0 {
		ttl = 10
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &EtcdRegistry{
		client: config.Client,
		logger: config.Logger,
		prefix: config.Prefix,
		ttl:    ttl,
		leases: make(map[string]clientv3.LeaseID),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Advertise stores a new advertisement under a fresh lease
func (r *EtcdRegistry) Advertise(ctx context.Context, adv *Advertisement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	data, err := json.Marshal(adv)
	if err != nil {
		return fmt.Errorf("failed to marshal advertisement: %w", err)
	}

	lease, err := r.client.Grant(ctx, r.ttl)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	key := r.prefix + adv.Key
	resp, err := r.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(data), clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		r.client.Revoke(context.Background(), lease.ID)
		return fmt.Errorf("failed to advertise session: %w", err)
	}
	if !resp.Succeeded {
		r.client.Revoke(context.Background(), lease.ID)
		return fmt.Errorf("%w: %s", ErrAdvertisementExists, adv.Key)
	}

	keepAliveCh, err := r.client.KeepAlive(r.ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep alive: %w", err)
	}
	r.leases[adv.Key] = lease.ID
	go r.watchKeepAlive(adv.Key, keepAliveCh)

	r.logger.Info("Advertisement registered",
		zap.String("key", key),
		zap.Int64("ttl", r.ttl),
		zap.Int64("lease_id", int64(lease.ID)))

	return nil
}

// watchKeepAlive drains keep-alive responses until the lease ends
func (r *EtcdRegistry) watchKeepAlive(key string, ch <-chan *clientv3.LeaseKeepAliveResponse) {
	for {
		select {
		case <-r.ctx.Done():
			return
		case resp, ok := <-ch:
			if !ok {
				r.logger.Debug("Keep alive channel closed", zap.String("key", key))
				return
			}
			if resp != nil {
				r.logger.Debug("Keep alive response received",
					zap.String("key", key),
					zap.Int64("ttl", resp.TTL))
			}
		}
	}
}

// Get retrieves an advertisement by key
func (r *EtcdRegistry) Get(ctx context.Context, key string) (*Advertisement, error) {
	adv, _, err := r.get(ctx, key)
	return adv, err
}

func (r *EtcdRegistry) get(ctx context.Context, key string) (*Advertisement, int64, error) {
	resp, err := r.client.Get(ctx, r.prefix+key)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get advertisement: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrAdvertisementNotFound, key)
	}

	adv, err := decodeAdvertisement(resp.Kvs[0].Value)
	if err != nil {
		return nil, 0, err
	}
	return adv, resp.Kvs[0].ModRevision, nil
}

// Update applies fn with a compare-and-swap on the key's mod revision.
// The existing lease is kept.
func (r *EtcdRegistry) Update(ctx context.Context, key string, fn func(*Advertisement) error) (*Advertisement, error) {
	etcdKey := r.prefix + key

	for i := 0; i < maxUpdateRetries; i++ {
		adv, rev, err := r.get(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := fn(adv); err != nil {
			return nil, err
		}

		data, err := json.Marshal(adv)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal advertisement: %w", err)
		}

		resp, err := r.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(etcdKey), "=", rev)).
			Then(clientv3.OpPut(etcdKey, string(data), clientv3.WithIgnoreLease())).
			Commit()
		if err != nil {
			return nil, fmt.Errorf("failed to update advertisement: %w", err)
		}
		if resp.Succeeded {
			return adv, nil
		}

		r.logger.Debug("Advertisement update conflict, retrying",
			zap.String("key", key),
			zap.Int("attempt", i+1))
	}

	return nil, fmt.Errorf("failed to update advertisement %s: too many conflicts", key)
}

// Remove deletes an advertisement and revokes its lease when held locally
func (r *EtcdRegistry) Remove(ctx context.Context, key string) error {
	resp, err := r.client.Delete(ctx, r.prefix+key)
	if err != nil {
		return fmt.Errorf("failed to remove advertisement: %w", err)
	}

	r.mu.Lock()
	leaseID, held := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if held {
		if _, err := r.client.Revoke(ctx, leaseID); err != nil {
			r.logger.Warn("Failed to revoke lease", zap.Error(err))
		}
	}

	if resp.Deleted == 0 {
		return fmt.Errorf("%w: %s", ErrAdvertisementNotFound, key)
	}
	return nil
}

// Search lists advertisements matching q
func (r *EtcdRegistry) Search(ctx context.Context, q Query) ([]*Advertisement, error) {
	resp, err := r.client.Get(ctx, r.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list advertisements: %w", err)
	}

	advs := make([]*Advertisement, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		adv, err := decodeAdvertisement(kv.Value)
		if err != nil {
			r.logger.Warn("Invalid advertisement in etcd",
				zap.String("key", string(kv.Key)),
				zap.Error(err))
			continue
		}
		advs = append(advs, adv)
	}

	return filterAdvertisements(advs, q), nil
}

// Count returns the number of stored advertisements
func (r *EtcdRegistry) Count(ctx context.Context) (int, error) {
	resp, err := r.client.Get(ctx, r.prefix, clientv3.WithPrefix(), clientv3.WithCountOnly())
	if err != nil {
		return 0, fmt.Errorf("failed to count advertisements: %w", err)
	}
	return int(resp.Count), nil
}

// Close revokes every locally held lease and closes the client
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	for key, leaseID := range r.leases {
		if _, err := r.client.Revoke(context.Background(), leaseID); err != nil {
			r.logger.Warn("Failed to revoke lease",
				zap.String("key", key),
				zap.Error(err))
		}
	}
	r.leases = map[string]clientv3.LeaseID{}

	r.cancel()
	err := r.client.Close()

	r.logger.Info("Etcd registry closed")

	return err
}
