package photos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"photo-gallery/internal/models"
	"photo-gallery/internal/storage"
)

var (
	ErrNotFound        = errors.New("photo not found")
	ErrInvalidCategory = errors.New("invalid category")
)

// Update holds the fields to change on a photo. Empty strings and a nil File
// leave the existing value in place.
type Update struct {
	Title       string
	Description string
	Category    string
	File        *File
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDs overrides the photo id generator.
func WithIDs(newID func() string) Option {
	return func(r *Repository) { r.newID = newID }
}

// Repository holds one user's photos. Every mutation goes through the
// persisted collection first and is then mirrored in memory.
type Repository struct {
	collections *storage.Collections
	userID      string
	photos      []models.Photo
	category    string
	lastErr     string
	now         func() time.Time
	newID       func() string
}

// NewRepository creates a repository for userID and loads its photos.
func NewRepository(collections *storage.Collections, userID string, opts ...Option) (*Repository, error) {
	r := &Repository{
		collections: collections,
		userID:      userID,
		category:    models.CategoryAll,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Load(); err != nil {
		return nil, err
	}
	return r, nil
}

// UserID returns the owner this repository was created for.
func (r *Repository) UserID() string {
	return r.userID
}

// Load replaces the in-memory list with the owner's persisted photos.
func (r *Repository) Load() error {
	all, err := r.collections.Photos()
	if err != nil {
		return r.record(err)
	}
	owned := make([]models.Photo, 0, len(all))
	for _, p := range all {
		if p.UserID == r.userID {
			owned = append(owned, p)
		}
	}
	r.photos = owned
	return nil
}

// All returns every loaded photo, ignoring the category filter.
func (r *Repository) All() []models.Photo {
	out := make([]models.Photo, len(r.photos))
	copy(out, r.photos)
	return out
}

// Photos returns the loaded photos in the selected category.
func (r *Repository) Photos() []models.Photo {
	if r.category == models.CategoryAll {
		return r.All()
	}
	var out []models.Photo
	for _, p := range r.photos {
		if p.Category == r.category {
			out = append(out, p)
		}
	}
	return out
}

// Get returns an owned photo by id.
func (r *Repository) Get(id string) (models.Photo, bool) {
	for _, p := range r.photos {
		if p.ID == id {
			return p, true
		}
	}
	return models.Photo{}, false
}

// SelectedCategory returns the current filter.
func (r *Repository) SelectedCategory() string {
	return r.category
}

// SelectCategory sets the filter to models.CategoryAll or one of models.Categories.
func (r *Repository) SelectCategory(category string) error {
	if category != models.CategoryAll && !models.IsCategory(category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	r.category = category
	return nil
}

// LastError is the message of the most recent failed operation, or "".
func (r *Repository) LastError() string {
	return r.lastErr
}

// Add reads file, stores it as a new photo and appends it to the list.
func (r *Repository) Add(ctx context.Context, file File, title, description, category string) (*models.Photo, error) {
	p, err := r.add(ctx, file, title, description, category)
	return p, r.record(err)
}

func (r *Repository) add(ctx context.Context, file File, title, description, category string) (*models.Photo, error) {
	if !models.IsCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	url, err := ReadDataURL(ctx, file)
	if err != nil {
		return nil, err
	}

	photo := models.Photo{
		ID:          r.newID(),
		UserID:      r.userID,
		URL:         url,
		Title:       title,
		Description: description,
		Category:    category,
		CreatedAt:   models.FormatTimestamp(r.now()),
	}

	err = r.collections.UpdatePhotos(func(all []models.Photo) ([]models.Photo, error) {
		return append(all, photo), nil
	})
	if err != nil {
		return nil, err
	}

	r.photos = append(r.photos, photo)
	return &photo, nil
}

// Update changes a photo by id and reloads the list. The id is looked up
// across every user's photos, not only the owner's.
func (r *Repository) Update(ctx context.Context, id string, u Update) error {
	return r.record(r.update(ctx, id, u))
}

func (r *Repository) update(ctx context.Context, id string, u Update) error {
	if u.Category != "" && !models.IsCategory(u.Category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, u.Category)
	}

	err := r.collections.UpdatePhotos(func(all []models.Photo) ([]models.Photo, error) {
		idx := -1
		for i, p := range all {
			if p.ID == id {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, ErrNotFound
		}

		photo := all[idx]
		if u.File != nil {
			url, err := ReadDataURL(ctx, *u.File)
			if err != nil {
				return nil, err
			}
			photo.URL = url
		}
		if u.Title != "" {
			photo.Title = u.Title
		}
		if u.Description != "" {
			photo.Description = u.Description
		}
		if u.Category != "" {
			photo.Category = u.Category
		}
		all[idx] = photo
		return all, nil
	})
	if err != nil {
		return err
	}
	return r.Load()
}

// Delete removes a photo by id. Unknown ids are ignored.
func (r *Repository) Delete(id string) error {
	return r.record(r.delete(id))
}

func (r *Repository) delete(id string) error {
	err := r.collections.UpdatePhotos(func(all []models.Photo) ([]models.Photo, error) {
		kept := make([]models.Photo, 0, len(all))
		for _, p := range all {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(all) {
			return nil, storage.ErrNoChange
		}
		return kept, nil
	})
	if err != nil {
		return err
	}

	owned := make([]models.Photo, 0, len(r.photos))
	for _, p := range r.photos {
		if p.ID != id {
			owned = append(owned, p)
		}
	}
	r.photos = owned
	return nil
}

func (r *Repository) record(err error) error {
	if err != nil {
		r.lastErr = err.Error()
		return err
	}
	r.lastErr = ""
	return nil
}
