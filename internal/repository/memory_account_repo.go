package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"identity-service/internal/model"
)

// MemoryAccountRepository keeps accounts in process memory. It enforces the
// same uniqueness rules as the database-backed repositories.
type MemoryAccountRepository struct {
	mu          sync.RWMutex
	byID        map[string]model.Account
	byEmail     map[string]string
	byFederated map[string]string
	now         func() time.Time
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:        make(map[string]model.Account),
		byEmail:     make(map[string]string),
		byFederated: make(map[string]string),
		now:         time.Now,
	}
}

func (r *MemoryAccountRepository) FindByEmail(_ context.Context, email string) (model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return model.Account{}, model.ErrAccountNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryAccountRepository) FindByFederatedID(_ context.Context, federatedID string) (model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byFederated[federatedID]
	if !ok || federatedID == "" {
		return model.Account{}, model.ErrAccountNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryAccountRepository) Create(_ context.Context, a *model.Account) error {
	if !a.HasAuthPath() {
		return ErrNoAuthPath
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	email := model.NormalizeEmail(a.Email)
	if _, exists := r.byEmail[email]; exists {
		return model.ErrDuplicateIdentity
	}
	if a.FederatedID != "" {
		if _, exists := r.byFederated[a.FederatedID]; exists {
			return model.ErrDuplicateIdentity
		}
	}

	now := r.now().UTC()
	a.ID = uuid.NewString()
	a.Email = email
	if a.Role == "" {
		a.Role = model.RoleUser
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	r.byID[a.ID] = *a
	r.byEmail[email] = a.ID
	if a.FederatedID != "" {
		r.byFederated[a.FederatedID] = a.ID
	}
	return nil
}

func (r *MemoryAccountRepository) Update(_ context.Context, id string, patch model.AccountPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[id]
	if !ok {
		return model.ErrAccountNotFound
	}
	if patch.IsEmpty() {
		return nil
	}

	if patch.Email != nil {
		normalized := model.NormalizeEmail(*patch.Email)
		patch.Email = &normalized
	}
	next := patch.Apply(current)

	if next.Email != current.Email {
		if owner, exists := r.byEmail[next.Email]; exists && owner != id {
			return model.ErrDuplicateIdentity
		}
	}
	if next.FederatedID != current.FederatedID && next.FederatedID != "" {
		if owner, exists := r.byFederated[next.FederatedID]; exists && owner != id {
			return model.ErrDuplicateIdentity
		}
	}

	delete(r.byEmail, current.Email)
	r.byEmail[next.Email] = id
	if current.FederatedID != "" {
		delete(r.byFederated, current.FederatedID)
	}
	if next.FederatedID != "" {
		r.byFederated[next.FederatedID] = id
	}

	next.UpdatedAt = r.now().UTC()
	r.byID[id] = next
	return nil
}

func (r *MemoryAccountRepository) Ping(context.Context) error {
	return nil
}
