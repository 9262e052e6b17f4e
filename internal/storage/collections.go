package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"golang.org/x/text/unicode/norm"

	"photo-gallery/internal/models"
)

var (
	// ErrCorrupt is returned when a persisted key does not hold the expected JSON shape.
	ErrCorrupt = errors.New("corrupt stored value")
	// ErrNoChange makes an update function leave the stored collection untouched.
	ErrNoChange = errors.New("no change")
)

// Collections reads and writes the typed users, photos and currentUser keys of a Store.
// Records are validated on read and malformed ones are skipped. UpdateUsers and
// UpdatePhotos write skipped records back as they were stored.
type Collections struct {
	store  Store
	schema *Schema
}

// NewCollections binds a Store to a Schema.
func NewCollections(store Store, schema *Schema) *Collections {
	return &Collections{store: store, schema: schema}
}

// Store returns the underlying key/value store.
func (c *Collections) Store() Store {
	return c.store
}

// Users returns every valid persisted user.
func (c *Collections) Users() ([]models.User, error) {
	raws, err := c.readArray(KeyUsers)
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(raws))
	for i, raw := range raws {
		var u models.User
		if !c.decode(DefUser, KeyUsers, i, raw, &u) {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// SaveUsers replaces the persisted users collection.
func (c *Collections) SaveUsers(users []models.User) error {
	out := make([]models.User, len(users))
	for i, u := range users {
		out[i] = normalizeUser(u)
	}
	return c.write(KeyUsers, out)
}

// UpdateUsers passes the valid persisted users to fn and stores what it returns.
func (c *Collections) UpdateUsers(fn func([]models.User) ([]models.User, error)) error {
	return update(c, KeyUsers, DefUser, fn, func(u models.User) string { return u.ID }, normalizeUser)
}

// Photos returns every valid persisted photo, regardless of owner.
func (c *Collections) Photos() ([]models.Photo, error) {
	raws, err := c.readArray(KeyPhotos)
	if err != nil {
		return nil, err
	}
	photos := make([]models.Photo, 0, len(raws))
	for i, raw := range raws {
		var p models.Photo
		if !c.decode(DefPhoto, KeyPhotos, i, raw, &p) {
			continue
		}
		photos = append(photos, p)
	}
	return photos, nil
}

// SavePhotos replaces the persisted photos collection.
func (c *Collections) SavePhotos(photos []models.Photo) error {
	out := make([]models.Photo, len(photos))
	for i, p := range photos {
		out[i] = normalizePhoto(p)
	}
	return c.write(KeyPhotos, out)
}

// UpdatePhotos passes the valid persisted photos to fn and stores what it returns.
func (c *Collections) UpdatePhotos(fn func([]models.Photo) ([]models.Photo, error)) error {
	return update(c, KeyPhotos, DefPhoto, fn, func(p models.Photo) string { return p.ID }, normalizePhoto)
}

// CurrentUser returns the persisted session, or nil when there is none.
// A malformed record counts as no session.
func (c *Collections) CurrentUser() (*models.User, error) {
	v, ok, err := c.store.Get(KeyCurrentUser)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", KeyCurrentUser, err)
	}
	if !ok {
		return nil, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(v), &probe); err != nil || probe == nil {
		return nil, fmt.Errorf("%s: %w", KeyCurrentUser, ErrCorrupt)
	}

	var u models.User
	if !c.decode(DefUser, KeyCurrentUser, 0, json.RawMessage(v), &u) {
		return nil, nil
	}
	return &u, nil
}

// SetCurrentUser persists u as the session.
func (c *Collections) SetCurrentUser(u models.User) error {
	return c.write(KeyCurrentUser, normalizeUser(u))
}

// ClearCurrentUser removes the persisted session.
func (c *Collections) ClearCurrentUser() error {
	if err := c.store.Remove(KeyCurrentUser); err != nil {
		return fmt.Errorf("remove %s: %w", KeyCurrentUser, err)
	}
	return nil
}

func (c *Collections) readArray(key string) ([]json.RawMessage, error) {
	v, ok, err := c.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal([]byte(v), &raws); err != nil {
		return nil, fmt.Errorf("%s: %w", key, ErrCorrupt)
	}
	return raws, nil
}

func (c *Collections) decode(def, key string, i int, raw json.RawMessage, out any) bool {
	if err := c.schema.Validate(def, raw); err != nil {
		log.Printf("Skipping malformed %s record %d: %v", key, i, err)
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Printf("Skipping malformed %s record %d: %v", key, i, err)
		return false
	}
	return true
}

// update runs fn over the valid records of key. Returned records take the
// slot of the stored record with the same id and new ones are appended.
// Records that failed validation stay where they were, unchanged.
func update[T any](c *Collections, key, def string, fn func([]T) ([]T, error), id func(T) string, normalize func(T) T) error {
	raws, err := c.readArray(key)
	if err != nil {
		return err
	}

	valid := make([]T, 0, len(raws))
	ok := make([]bool, len(raws))
	for i, raw := range raws {
		var v T
		if c.decode(def, key, i, raw, &v) {
			valid = append(valid, v)
			ok[i] = true
		}
	}
	validIDs := make([]string, len(valid))
	for i, v := range valid {
		validIDs[i] = id(v)
	}

	next, err := fn(valid)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}

	slots := make(map[string][]int, len(next))
	for i, v := range next {
		slots[id(v)] = append(slots[id(v)], i)
	}
	used := make([]bool, len(next))
	out := make([]json.RawMessage, 0, len(raws)+len(next))
	encode := func(v T) error {
		b, err := json.Marshal(normalize(v))
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		out = append(out, b)
		return nil
	}

	k := 0
	for i, raw := range raws {
		if !ok[i] {
			out = append(out, raw)
			continue
		}
		vid := validIDs[k]
		k++
		idx := slots[vid]
		if len(idx) == 0 {
			continue
		}
		slots[vid] = idx[1:]
		used[idx[0]] = true
		if err := encode(next[idx[0]]); err != nil {
			return err
		}
	}
	for i, v := range next {
		if !used[i] {
			if err := encode(v); err != nil {
				return err
			}
		}
	}
	return c.write(key, out)
}

func (c *Collections) write(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.store.Set(key, string(data)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func normalizeUser(u models.User) models.User {
	u.Email = NormalizeEmail(u.Email)
	u.Name = norm.NFC.String(u.Name)
	return u
}

func normalizePhoto(p models.Photo) models.Photo {
	p.Title = norm.NFC.String(p.Title)
	p.Description = norm.NFC.String(p.Description)
	return p
}

// NormalizeEmail returns the canonical (NFC) form used to store and compare emails.
func NormalizeEmail(email string) string {
	return norm.NFC.String(email)
}
