// Package directory maps accounts to the node store partition that holds
// their profile record and reads and writes those records.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/greenway-eco/backend/internal/kvstore"
	"github.com/greenway-eco/backend/internal/models"
)

// ErrNotFound is returned when no profile exists for an id in its partition.
var ErrNotFound = errors.New("profile not found")

// ErrEmptyName is returned by Rename for a blank display name.
var ErrEmptyName = errors.New("display name is required")

// PartitionForRole returns the partition for role. Only the exact strings
// "admin" and "owner" map to their own partitions; anything else, including
// other spellings, maps to users.
func PartitionForRole(role string) string {
	switch models.Role(role) {
	case models.RoleAdmin, models.RoleOwner:
		return models.Role(role).Info().Partition
	}
	return models.PartitionUsers
}

// Directory reads and writes profile records.
type Directory struct {
	store kvstore.Store
}

// New creates a Directory over the given node store.
func New(store kvstore.Store) *Directory {
	return &Directory{store: store}
}

func profilePath(role models.Role, userID string) string {
	return kvstore.Join(role.Info().Partition, userID)
}

// FetchProfile looks up userID in the partition for role.
func (d *Directory) FetchProfile(ctx context.Context, role models.Role, userID string) (*models.Person, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrNotFound
	}
	var rec models.PersonRecord
	err := kvstore.GetJSON(ctx, d.store, profilePath(role, userID), &rec)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch profile %s: %w", userID, err)
	}
	fallback := role
	if fallback == models.RolePerson || fallback == "" {
		fallback = models.RoleUser
	}
	p := models.PersonFromRecord(userID, rec, fallback)
	return &p, nil
}

// SaveProfile writes p to its partition, replacing any previous record.
// The person fallback role is stored as user.
func (d *Directory) SaveProfile(ctx context.Context, p *models.Person) error {
	if p.Role == models.RolePerson || p.Role == "" {
		p.Role = models.RoleUser
	}
	if err := d.store.Set(ctx, profilePath(p.Role, p.UserID), p.ToRecord()); err != nil {
		return fmt.Errorf("save profile %s: %w", p.UserID, err)
	}
	return nil
}

// Rename changes the display name of an existing profile.
func (d *Directory) Rename(ctx context.Context, role models.Role, userID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if _, err := d.FetchProfile(ctx, role, userID); err != nil {
		return err
	}
	if err := d.store.Update(ctx, profilePath(role, userID), map[string]any{"display_name": name}); err != nil {
		return fmt.Errorf("rename profile %s: %w", userID, err)
	}
	return nil
}

// RemoveProfile deletes the profile record. Removing a missing record is not an error.
func (d *Directory) RemoveProfile(ctx context.Context, role models.Role, userID string) error {
	if err := d.store.Remove(ctx, profilePath(role, userID)); err != nil {
		return fmt.Errorf("remove profile %s: %w", userID, err)
	}
	return nil
}

// ListPartition returns every profile stored in partition, in insertion order.
// Records that fail to decode are skipped.
func (d *Directory) ListPartition(ctx context.Context, partition string) ([]models.Person, error) {
	nodes, err := d.store.Children(ctx, partition)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", partition, err)
	}
	fallback := roleForPartition(partition)
	people := make([]models.Person, 0, len(nodes))
	for _, n := range nodes {
		var rec models.PersonRecord
		if err := json.Unmarshal(n.Value, &rec); err != nil {
			continue
		}
		people = append(people, models.PersonFromRecord(n.Key, rec, fallback))
	}
	return people, nil
}

// LookupDisplayName returns the display name of userID, checking owners and
// then users. It falls back to the id itself.
func (d *Directory) LookupDisplayName(ctx context.Context, userID string) string {
	for _, role := range []models.Role{models.RoleOwner, models.RoleUser} {
		p, err := d.FetchProfile(ctx, role, userID)
		if err == nil && p.DisplayName != "" {
			return p.DisplayName
		}
	}
	return userID
}

func roleForPartition(partition string) models.Role {
	switch partition {
	case models.PartitionAdmins:
		return models.RoleAdmin
	case models.PartitionOwners:
		return models.RoleOwner
	}
	return models.RoleUser
}
