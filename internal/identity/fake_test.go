package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greenway-eco/backend/internal/models"
	"github.com/greenway-eco/backend/pkg/queue"
)

type fakeAccounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Account
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[uuid.UUID]*models.Account{}}
}

func (f *fakeAccounts) Create(_ context.Context, email, hash, name string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Email == email {
			return nil, ErrEmailExists
		}
	}
	a := &models.Account{ID: uuid.New(), Email: email, PasswordHash: hash, DisplayName: name, CreatedAt: time.Now()}
	f.byID[a.ID] = a
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (f *fakeAccounts) SetRoleClaim(_ context.Context, id uuid.UUID, role models.Role) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	a.RoleClaim = role
	a.ClaimVersion++
	return a.ClaimVersion, nil
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (f *fakeAccounts) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return ErrAccountNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeMailer struct {
	sent []queue.EmailPayload
}

func (m *fakeMailer) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	m.sent = append(m.sent, p)
	return nil
}
