// Package admin implements the admin panel and role management.
package admin

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/greenway-eco/backend/internal/directory"
	"github.com/greenway-eco/backend/internal/models"
)

// ErrInvalidRole is returned for roles that cannot be granted.
var ErrInvalidRole = errors.New("role must be user, owner or admin")

// Accounts is the account service used for role changes.
type Accounts interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	SetRoleClaim(ctx context.Context, userID string, role models.Role) error
}

// Profiles is the identity directory.
type Profiles interface {
	FetchProfile(ctx context.Context, role models.Role, userID string) (*models.Person, error)
	SaveProfile(ctx context.Context, p *models.Person) error
	RemoveProfile(ctx context.Context, role models.Role, userID string) error
	ListPartition(ctx context.Context, partition string) ([]models.Person, error)
}

// Listings lists listings.
type Listings interface {
	List(ctx context.Context, ownerID string) ([]models.Listing, error)
}

// Panel is the admin overview.
type Panel struct {
	Users    []models.Person  `json:"users"`
	Owners   []models.Person  `json:"owners"`
	Admins   []models.Person  `json:"admins"`
	Listings []models.Listing `json:"listings"`
}

// Service builds the panel and grants roles.
type Service struct {
	accounts Accounts
	profiles Profiles
	listings Listings
	logger   *zap.Logger
}

// NewService creates an admin service. listings may be nil for role
// management only.
func NewService(accounts Accounts, profiles Profiles, listings Listings, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{accounts: accounts, profiles: profiles, listings: listings, logger: logger}
}

// Panel returns every profile by partition and every listing.
func (s *Service) Panel(ctx context.Context) (*Panel, error) {
	p := &Panel{}
	for partition, dst := range map[string]*[]models.Person{
		models.PartitionUsers:  &p.Users,
		models.PartitionOwners: &p.Owners,
		models.PartitionAdmins: &p.Admins,
	} {
		people, err := s.profiles.ListPartition(ctx, partition)
		if err != nil {
			return nil, err
		}
		*dst = people
	}
	p.Listings = []models.Listing{}
	if s.listings != nil {
		list, err := s.listings.List(ctx, "")
		if err != nil {
			return nil, err
		}
		p.Listings = list
	}
	return p, nil
}

// currentProfile finds the account's profile in any partition.
func (s *Service) currentProfile(ctx context.Context, userID string) (*models.Person, error) {
	for _, role := range []models.Role{models.RoleAdmin, models.RoleOwner, models.RoleUser} {
		p, err := s.profiles.FetchProfile(ctx, role, userID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, directory.ErrNotFound) {
			return nil, err
		}
	}
	return nil, directory.ErrNotFound
}

// Promote grants role to the account registered with email: the profile
// moves to the role's partition and the claim is set. Existing tokens of the
// account go stale.
func (s *Service) Promote(ctx context.Context, email string, role models.Role) (*models.Person, error) {
	if models.ParseRole(string(role)) == models.RolePerson {
		return nil, ErrInvalidRole
	}
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	userID := a.ID.String()

	prev, err := s.currentProfile(ctx, userID)
	if err != nil && !errors.Is(err, directory.ErrNotFound) {
		return nil, err
	}
	name := a.DisplayName
	if prev != nil && prev.DisplayName != "" {
		name = prev.DisplayName
	}
	if name == "" {
		name = a.Email
	}
	next, err := models.NewPerson(userID, name, a.Email, role)
	if err != nil {
		return nil, err
	}
	if err := s.profiles.SaveProfile(ctx, next); err != nil {
		return nil, err
	}
	if err := s.accounts.SetRoleClaim(ctx, userID, role); err != nil {
		return nil, fmt.Errorf("set role claim: %w", err)
	}
	if prev != nil && prev.Partition() != next.Partition() {
		if err := s.profiles.RemoveProfile(ctx, prev.Role, userID); err != nil {
			s.logger.Error("old profile not removed after promotion",
				zap.String("user_id", userID),
				zap.String("partition", prev.Partition()),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("role granted", zap.String("user_id", userID), zap.String("role", string(role)))
	return next, nil
}
