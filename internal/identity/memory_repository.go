package identity

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	users   map[string]User
	byPhone map[string]string
	byEmail map[string]string
}

// NewMemoryRepository builds an in-memory user store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		users:   make(map[string]User),
		byPhone: make(map[string]string),
		byEmail: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPhone[user.Phone]; exists {
		return ErrPhoneTaken
	}
	if user.Email != "" {
		if _, exists := r.byEmail[user.Email]; exists {
			return ErrEmailTaken
		}
		r.byEmail[user.Email] = user.ID
	}
	r.byPhone[user.Phone] = user.ID
	r.users[user.ID] = clone(user)
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return clone(user), nil
}

func (r *memoryRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	r.mu.RLock()
	id, ok := r.byPhone[phone]
	r.mu.RUnlock()
	if !ok {
		return User{}, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *memoryRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok || email == "" {
		return User{}, ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *memoryRepository) UpdateProfile(_ context.Context, id, name, avatar string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	user.Name = name
	user.Avatar = avatar
	r.users[id] = user
	return clone(user), nil
}

func (r *memoryRepository) UpdatePassword(_ context.Context, id string, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = append([]byte(nil), hash...)
	r.users[id] = user
	return nil
}

func (r *memoryRepository) UpdatePasswordByPhone(ctx context.Context, phone string, hash []byte) error {
	r.mu.RLock()
	id, ok := r.byPhone[phone]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return r.UpdatePassword(ctx, id, hash)
}

func (r *memoryRepository) UpdatePhone(_ context.Context, id, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	if owner, exists := r.byPhone[phone]; exists && owner != id {
		return ErrPhoneTaken
	}
	delete(r.byPhone, user.Phone)
	user.Phone = phone
	r.byPhone[phone] = id
	r.users[id] = user
	return nil
}

func (r *memoryRepository) UpdateEmail(_ context.Context, id, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	if owner, exists := r.byEmail[email]; exists && owner != id {
		return ErrEmailTaken
	}
	if user.Email != "" {
		delete(r.byEmail, user.Email)
	}
	user.Email = email
	r.byEmail[email] = id
	r.users[id] = user
	return nil
}

func (r *memoryRepository) UpdateRole(_ context.Context, id string, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.Role = role
	r.users[id] = user
	return nil
}

func (r *memoryRepository) List(_ context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, clone(user))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byPhone, user.Phone)
	if user.Email != "" {
		delete(r.byEmail, user.Email)
	}
	delete(r.users, id)
	return nil
}

func clone(u User) User {
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	return u
}
