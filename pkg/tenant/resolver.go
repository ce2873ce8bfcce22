package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tansucloud/tansu-outbox/pkg/model"
)

var ErrUnknownTenant = errors.New("unknown tenant")

// Resolver hands the dispatcher a unit-of-work root for the tenant it is
// scoped to. Implementations decide whether tenants share a store or get
// their own.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*gorm.DB, error)
}

// SingleStoreResolver serves every tenant from one shared store.
type SingleStoreResolver struct {
	db *gorm.DB
}

func NewSingleStoreResolver(db *gorm.DB) *SingleStoreResolver {
	return &SingleStoreResolver{db: db}
}

func (r *SingleStoreResolver) Resolve(ctx context.Context, name string) (*gorm.DB, error) {
	if r.db == nil {
		return nil, errors.New("store is not configured")
	}
	return r.db, nil
}

// Opener turns a DSN into a database handle. Injectable for tests.
type Opener func(dsn string) (*gorm.DB, error)

// RegistryResolver looks tenants up in a registry database and opens a
// dedicated handle per tenant, cached for the life of the resolver.
type RegistryResolver struct {
	registry *gorm.DB
	open     Opener

	mu      sync.Mutex
	handles map[string]*gorm.DB
}

func NewRegistryResolver(registry *gorm.DB, open Opener) *RegistryResolver {
	if open == nil {
		open = func(dsn string) (*gorm.DB, error) {
			return gorm.Open(postgres.Open(dsn), &gorm.Config{})
		}
	}
	return &RegistryResolver{
		registry: registry,
		open:     open,
		handles:  make(map[string]*gorm.DB),
	}
}

func (r *RegistryResolver) Resolve(ctx context.Context, name string) (*gorm.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handle, ok := r.handles[name]; ok {
		return handle, nil
	}

	var tenant model.Tenant
	err := r.registry.WithContext(ctx).Where("name = ?", name).First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTenant, name)
		}
		return nil, err
	}

	handle, err := r.open(tenant.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store for tenant %s: %w", name, err)
	}
	r.handles[name] = handle
	return handle, nil
}
