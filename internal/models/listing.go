package models

import "time"

// Listing is an experience or lodging offered by an owner.
type Listing struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int       `json:"price"`
	OwnerID     string    `json:"owner_id"`
	Images      []string  `json:"images"`
	MapURL      string    `json:"map_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListingRecord is the stored shape of a listing under listings/<id>.
type ListingRecord struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int       `json:"price"`
	OwnerID     string    `json:"owner_id"`
	Images      []string  `json:"images"`
	MapURL      string    `json:"map_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToListing attaches the store-assigned id to the record.
func (r ListingRecord) ToListing(id string) Listing {
	images := r.Images
	if images == nil {
		images = []string{}
	}
	return Listing{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		OwnerID:     r.OwnerID,
		Images:      images,
		MapURL:      r.MapURL,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
