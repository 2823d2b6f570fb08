// Package listings manages the lifecycle of experience and lodging listings.
// Every mutation is checked against the access policy.
package listings

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/greenway-eco/backend/internal/apperr"
	"github.com/greenway-eco/backend/internal/kvstore"
	"github.com/greenway-eco/backend/internal/models"
	"github.com/greenway-eco/backend/internal/policy"
	"github.com/greenway-eco/backend/pkg/storage"
)

const partition = "listings"

// Fields is the client-supplied content of a listing.
type Fields struct {
	Name        string   `json:"name" validate:"required,max=120"`
	Description string   `json:"description" validate:"required,max=5000"`
	Price       int      `json:"price" validate:"gte=0"`
	Images      []string `json:"images" validate:"dive,url"`
	MapURL      string   `json:"map_url" validate:"omitempty,url"`
}

func (f *Fields) normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	f.MapURL = strings.TrimSpace(f.MapURL)
	for i, img := range f.Images {
		f.Images[i] = strings.TrimSpace(img)
	}
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Price       *int      `json:"price"`
	Images      *[]string `json:"images"`
	MapURL      *string   `json:"map_url"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Images == nil && p.MapURL == nil
}

// ImageCleaner is told about the images of deleted listings.
type ImageCleaner interface {
	CleanupImages(ctx context.Context, listing models.Listing)
}

// DenialObserver counts policy denials.
type DenialObserver interface {
	ObserveDenial(action, reason string)
}

// Manager implements create, read, update and delete of listings over the
// node store.
type Manager struct {
	store    kvstore.Store
	validate *validator.Validate
	cleaner  ImageCleaner
	denials  DenialObserver
	bucket   string
	region   string
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager creates a listing manager. cleaner may be nil.
func NewManager(store kvstore.Store, cleaner ImageCleaner, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Manager{store: store, validate: v, cleaner: cleaner, logger: logger, now: time.Now}
}

// WithImageBucket makes the manager reject images in bucket that were not
// uploaded by the listing's owner.
func (m *Manager) WithImageBucket(bucket, region string) *Manager {
	m.bucket, m.region = bucket, region
	return m
}

// WithDenialObserver reports edit and delete denials to o.
func (m *Manager) WithDenialObserver(o DenialObserver) *Manager {
	m.denials = o
	return m
}

func listingPath(id string) string {
	return kvstore.Join(partition, id)
}

// check validates f and converts the first failure into a validation error
// naming the field.
func (m *Manager) check(f *Fields) error {
	err := m.validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("", "invalid listing")
	}
	fe := verrs[0]
	field := fe.Field()
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	return apperr.Validation(field, validationMessage(fe))
}

// checkImageOwnership rejects bucket images stored under another owner's
// folder. URLs outside the bucket are not checked.
func (m *Manager) checkImageOwnership(ownerID string, images []string) error {
	if m.bucket == "" {
		return nil
	}
	for _, u := range images {
		key, ok := storage.KeyFromURL(m.bucket, m.region, u)
		if ok && !storage.OwnsListingImage(ownerID, key) {
			return apperr.Validation("images", "images must be uploaded by the listing owner")
		}
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gte":
		return fe.Field() + " must not be negative"
	case "max":
		return fe.Field() + " is too long"
	case "url":
		return fe.Field() + " must be a valid URL"
	}
	return fe.Field() + " is invalid"
}

// Create stores a new listing owned by ownerID and returns its id. Callers
// must have passed the create-listing policy check.
func (m *Manager) Create(ctx context.Context, ownerID string, f Fields) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", apperr.Validation("owner_id", "owner_id is required")
	}
	f.normalize()
	if err := m.check(&f); err != nil {
		return "", err
	}
	if err := m.checkImageOwnership(ownerID, f.Images); err != nil {
		return "", err
	}
	if f.Images == nil {
		f.Images = []string{}
	}
	now := m.now().UTC()
	rec := models.ListingRecord{
		Name:        f.Name,
		Description: f.Description,
		Price:       f.Price,
		OwnerID:     ownerID,
		Images:      f.Images,
		MapURL:      f.MapURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := m.store.Push(ctx, partition, rec)
	if err != nil {
		return "", apperr.Service("listing could not be saved", err)
	}
	m.logger.Info("listing created", zap.String("listing_id", id), zap.String("owner_id", ownerID))
	return id, nil
}

// Read returns the listing with id.
func (m *Manager) Read(ctx context.Context, id string) (*models.Listing, error) {
	id, err := kvstore.Clean(id)
	if err != nil || strings.Contains(id, "/") {
		return nil, apperr.NotFound("listing not found")
	}
	var rec models.ListingRecord
	if err := kvstore.GetJSON(ctx, m.store, listingPath(id), &rec); err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, apperr.NotFound("listing not found")
		}
		return nil, apperr.Service("listing could not be loaded", err)
	}
	l := rec.ToListing(id)
	return &l, nil
}

// List returns all listings in creation order. A non-empty ownerID keeps only
// that owner's listings.
func (m *Manager) List(ctx context.Context, ownerID string) ([]models.Listing, error) {
	nodes, err := m.store.Children(ctx, partition)
	if err != nil {
		return nil, apperr.Service("listings could not be loaded", err)
	}
	list := make([]models.Listing, 0, len(nodes))
	for _, n := range nodes {
		var rec models.ListingRecord
		if err := json.Unmarshal(n.Value, &rec); err != nil {
			m.logger.Warn("skipping malformed listing", zap.String("listing_id", n.Key), zap.Error(err))
			continue
		}
		if ownerID != "" && rec.OwnerID != ownerID {
			continue
		}
		list = append(list, rec.ToListing(n.Key))
	}
	return list, nil
}

func (m *Manager) authorize(l *models.Listing, callerID string, role models.Role, action policy.Action) error {
	d := policy.Authorize(role, callerID, action, policy.Resource{OwnerID: l.OwnerID})
	if !d.Allowed {
		m.logger.Info("listing action denied",
			zap.String("listing_id", l.ID),
			zap.String("user_id", callerID),
			zap.String("action", string(action)),
			zap.String("reason", d.Reason),
		)
		if m.denials != nil {
			m.denials.ObserveDenial(string(action), d.Reason)
		}
		return apperr.Unauthorized(d.Reason)
	}
	return nil
}

// Update applies patch to the listing when the caller owns it or is an
// admin. Only presented fields change.
func (m *Manager) Update(ctx context.Context, id, callerID string, role models.Role, patch Patch) (*models.Listing, error) {
	l, err := m.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(l, callerID, role, policy.EditListing); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return l, nil
	}

	merged := Fields{Name: l.Name, Description: l.Description, Price: l.Price, Images: l.Images, MapURL: l.MapURL}
	changes := map[string]any{}
	if patch.Name != nil {
		merged.Name = *patch.Name
	}
	if patch.Description != nil {
		merged.Description = *patch.Description
	}
	if patch.Price != nil {
		merged.Price = *patch.Price
	}
	if patch.Images != nil {
		merged.Images = append([]string{}, (*patch.Images)...)
	}
	if patch.MapURL != nil {
		merged.MapURL = *patch.MapURL
	}
	merged.normalize()
	if err := m.check(&merged); err != nil {
		return nil, err
	}
	if patch.Images != nil {
		if err := m.checkImageOwnership(l.OwnerID, merged.Images); err != nil {
			return nil, err
		}
	}

	if patch.Name != nil {
		changes["name"] = merged.Name
	}
	if patch.Description != nil {
		changes["description"] = merged.Description
	}
	if patch.Price != nil {
		changes["price"] = merged.Price
	}
	if patch.Images != nil {
		changes["images"] = merged.Images
	}
	if patch.MapURL != nil {
		changes["map_url"] = merged.MapURL
	}
	now := m.now().UTC()
	changes["updated_at"] = now

	if err := m.store.Update(ctx, listingPath(l.ID), changes); err != nil {
		return nil, apperr.Service("listing could not be updated", err)
	}
	l.Name, l.Description, l.Price, l.Images, l.MapURL = merged.Name, merged.Description, merged.Price, merged.Images, merged.MapURL
	l.UpdatedAt = now
	return l, nil
}

// Delete removes the listing when the caller owns it or is an admin.
func (m *Manager) Delete(ctx context.Context, id, callerID string, role models.Role) error {
	l, err := m.Read(ctx, id)
	if err != nil {
		return err
	}
	if err := m.authorize(l, callerID, role, policy.DeleteListing); err != nil {
		return err
	}
	if err := m.store.Remove(ctx, listingPath(l.ID)); err != nil {
		return apperr.Service("listing could not be deleted", err)
	}
	m.logger.Info("listing deleted", zap.String("listing_id", l.ID), zap.String("user_id", callerID))
	if m.cleaner == nil || len(l.Images) == 0 {
		return nil
	}
	gone := *l
	gone.Images = m.unusedImages(ctx, l)
	if len(gone.Images) > 0 {
		m.cleaner.CleanupImages(ctx, gone)
	}
	return nil
}

// unusedImages returns the images of the removed listing l that none of its
// owner's remaining listings reference.
func (m *Manager) unusedImages(ctx context.Context, l *models.Listing) []string {
	others, err := m.List(ctx, l.OwnerID)
	if err != nil {
		m.logger.Warn("image cleanup skipped: remaining listings unavailable", zap.String("listing_id", l.ID), zap.Error(err))
		return nil
	}
	inUse := make(map[string]bool)
	for _, o := range others {
		for _, img := range o.Images {
			inUse[img] = true
		}
	}
	var unused []string
	for _, img := range l.Images {
		if !inUse[img] {
			unused = append(unused, img)
		}
	}
	return unused
}
