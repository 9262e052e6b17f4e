package handlers

import (
	"errors"
	"html/template"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"photo-gallery/internal/guard"
	"photo-gallery/internal/models"
	"photo-gallery/internal/photos"
)

// CategoryDef defines the properties of a category.
type CategoryDef struct {
	ID    string
	Icon  string
	Color string
}

var categories = []CategoryDef{
	{"Nature", "🌿", "#4ade80"},
	{"Architecture", "🏛️", "#818cf8"},
	{"Portrait", "🧑", "#f472b6"},
	{"Travel", "✈️", "#60a5fa"},
	{"Food", "🍽️", "#fbbf24"},
	{"Animals", "🐾", "#fb923c"},
	{"Art", "🎨", "#a78bfa"},
	{"Other", "📦", "#94a3b8"},
}

// CategoryStyle defines the visual style for a category.
type CategoryStyle struct {
	Icon  string
	Color string
}

func getCategoryStyle(category string) CategoryStyle {
	for _, c := range categories {
		if c.ID == category {
			return CategoryStyle{Icon: c.Icon, Color: c.Color}
		}
	}
	return CategoryStyle{Icon: "📦", Color: "#94a3b8"}
}

var funcs = template.FuncMap{
	"categoryStyle": getCategoryStyle,
}

// PhotoItem represents a photo in the gallery grid.
type PhotoItem struct {
	models.Photo
	Created       string
	CategoryStyle CategoryStyle
}

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	User       *models.User
	Photos     []PhotoItem
	Total      int
	Stats      []CategoryStat
	Categories []CategoryDef
	Selected   string
	Error      string
}

// EditViewModel is the data passed to the edit form template.
type EditViewModel struct {
	Photo      PhotoItem
	Categories []CategoryDef
	Error      string
}

func newPhotoItem(p models.Photo) PhotoItem {
	created := p.CreatedAt
	if t := p.Created(); !t.IsZero() {
		created = t.Format("Jan 02, 2006 15:04")
	}
	return PhotoItem{Photo: p, Created: created, CategoryStyle: getCategoryStyle(p.Category)}
}

func (h *Handlers) repository(r *http.Request) (*photos.Repository, *models.User, error) {
	st := GetClientFromContext(r)
	user := st.Session.User()
	if user == nil {
		return nil, nil, errors.New("no session")
	}
	repo, err := photos.NewRepository(st.Collections, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return repo, user, nil
}

// Dashboard renders the gallery for the session user.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	repo, user, err := h.repository(r)
	if err != nil {
		log.Printf("Dashboard error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.renderDashboard(w, r, http.StatusOK, repo, user, r.URL.Query().Get("category"), "")
}

func (h *Handlers) renderDashboard(w http.ResponseWriter, r *http.Request, status int, repo *photos.Repository, user *models.User, category, errMsg string) {
	if category != "" {
		// Unknown filters fall back to showing everything.
		_ = repo.SelectCategory(category)
	}

	list := repo.Photos()
	items := make([]PhotoItem, 0, len(list))
	for _, p := range list {
		items = append(items, newPhotoItem(p))
	}

	all := repo.All()
	h.renderStatus(w, r, status, "dashboard.html", DashboardViewModel{
		User:       user,
		Photos:     items,
		Total:      len(all),
		Stats:      categoryStats(all),
		Categories: categories,
		Selected:   repo.SelectedCategory(),
		Error:      errMsg,
	})
}

// CreatePhoto handles a photo upload.
func (h *Handlers) CreatePhoto(w http.ResponseWriter, r *http.Request) {
	repo, user, err := h.repository(r)
	if err != nil {
		log.Printf("CreatePhoto error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		h.renderDashboard(w, r, http.StatusBadRequest, repo, user, "", "Invalid upload: "+err.Error())
		return
	}

	file, closeFile, err := formFile(r, "photo")
	if err != nil || file == nil {
		h.renderDashboard(w, r, http.StatusBadRequest, repo, user, "", "Please choose a photo to upload")
		return
	}
	defer closeFile()

	_, err = repo.Add(r.Context(), *file,
		strings.TrimSpace(r.FormValue("title")),
		strings.TrimSpace(r.FormValue("description")),
		r.FormValue("category"),
	)
	if err != nil {
		if !errors.Is(err, photos.ErrFileRead) && !errors.Is(err, photos.ErrInvalidCategory) {
			log.Printf("CreatePhoto error: %v", err)
		}
		h.renderDashboard(w, r, http.StatusBadRequest, repo, user, "", repo.LastError())
		return
	}

	http.Redirect(w, r, guard.RouteDashboard, http.StatusSeeOther)
}

// EditPhotoForm renders the form to edit an owned photo.
func (h *Handlers) EditPhotoForm(w http.ResponseWriter, r *http.Request) {
	repo, _, err := h.repository(r)
	if err != nil {
		log.Printf("EditPhotoForm error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	p, ok := repo.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "Photo not found", http.StatusNotFound)
		return
	}
	h.render(w, r, "edit.html", EditViewModel{Photo: newPhotoItem(p), Categories: categories})
}

// UpdatePhoto handles the edit form submission. The id may belong to any user.
func (h *Handlers) UpdatePhoto(w http.ResponseWriter, r *http.Request) {
	repo, _, err := h.repository(r)
	if err != nil {
		log.Printf("UpdatePhoto error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	id := r.PathValue("id")
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := parseAnyForm(r, h.opts.MaxUploadBytes); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	file, closeFile, err := formFile(r, "photo")
	if err != nil {
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}
	if closeFile != nil {
		defer closeFile()
	}

	err = repo.Update(r.Context(), id, photos.Update{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Category:    r.FormValue("category"),
		File:        file,
	})
	switch {
	case errors.Is(err, photos.ErrNotFound):
		http.Error(w, "Photo not found", http.StatusNotFound)
		return
	case err != nil:
		if p, ok := repo.Get(id); ok {
			h.renderStatus(w, r, http.StatusBadRequest, "edit.html", EditViewModel{
				Photo:      newPhotoItem(p),
				Categories: categories,
				Error:      repo.LastError(),
			})
			return
		}
		http.Error(w, repo.LastError(), http.StatusBadRequest)
		return
	}

	h.thumbs.Forget(id)
	http.Redirect(w, r, guard.RouteDashboard, http.StatusSeeOther)
}

// DeletePhoto removes a photo. Unknown ids are ignored.
func (h *Handlers) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	repo, _, err := h.repository(r)
	if err != nil {
		log.Printf("DeletePhoto error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	id := r.PathValue("id")
	if err := repo.Delete(id); err != nil {
		log.Printf("DeletePhoto error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.thumbs.Forget(id)
	http.Redirect(w, r, guard.RouteDashboard, http.StatusSeeOther)
}

// Thumbnail serves a JPEG thumbnail of an owned photo. Images the decoder
// does not understand are served unchanged.
func (h *Handlers) Thumbnail(w http.ResponseWriter, r *http.Request) {
	repo, _, err := h.repository(r)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	p, ok := repo.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "Photo not found", http.StatusNotFound)
		return
	}

	thumb, err := h.thumbs.Thumbnail(p)
	if err != nil {
		h.serveDataURL(w, p)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(thumb)
}

// Image serves the original payload of an owned photo.
func (h *Handlers) Image(w http.ResponseWriter, r *http.Request) {
	repo, _, err := h.repository(r)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	p, ok := repo.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "Photo not found", http.StatusNotFound)
		return
	}
	h.serveDataURL(w, p)
}

func (h *Handlers) serveDataURL(w http.ResponseWriter, p models.Photo) {
	mediaType, data, err := photos.ParseDataURL(p.URL)
	if err != nil {
		log.Printf("Photo %s has an unreadable payload: %v", p.ID, err)
		http.Error(w, "Unreadable photo", http.StatusUnprocessableEntity)
		return
	}
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}

// parseAnyForm accepts both multipart and urlencoded bodies.
func parseAnyForm(r *http.Request, maxMemory int64) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		return r.ParseMultipartForm(maxMemory)
	}
	return r.ParseForm()
}

// formFile returns the uploaded file in field, or nil when none was sent.
func formFile(r *http.Request, field string) (*photos.File, func(), error) {
	if r.MultipartForm == nil {
		return nil, nil, nil
	}
	f, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if header.Size == 0 && header.Filename == "" {
		f.Close()
		return nil, nil, nil
	}
	return &photos.File{
		Name:        header.Filename,
		ContentType: contentType(header),
		Body:        f,
	}, func() { f.Close() }, nil
}

func contentType(header *multipart.FileHeader) string {
	ct := header.Header.Get("Content-Type")
	if ct == "application/octet-stream" {
		// Let the reader sniff it.
		return ""
	}
	return ct
}
