package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/patidost/listing-service/internal/listing/cache"
	"github.com/patidost/listing-service/internal/listing/domain"
)

// HandleListListings serves the cached snapshot. Query parameters species,
// purpose, q and mine narrow it.
func (h *Handler) HandleListListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := cache.Filter{
		Species: domain.Species(q.Get("species")),
		Purpose: domain.Purpose(q.Get("purpose")),
		Query:   q.Get("q"),
	}
	if mine, _ := strconv.ParseBool(q.Get("mine")); mine {
		f.OwnerID, _ = UserIDFromContext(r.Context())
	}
	writeJSON(w, http.StatusOK, toListingResponses(h.deps.Listings.Select(f)))
}

func (h *Handler) HandleGetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := listingID(w, r)
	if !ok {
		return
	}
	if l, found := h.deps.Listings.Get(id); found {
		writeJSON(w, http.StatusOK, toListingResponse(l))
		return
	}
	l, err := h.deps.Mutations.GetListingByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

func (h *Handler) HandleRefreshListings(w http.ResponseWriter, r *http.Request) {
	h.deps.Listings.Refresh(r.Context())
	writeJSON(w, http.StatusOK, toListingResponses(h.deps.Listings.Select(cache.Filter{})))
}

func (h *Handler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	if h.deps.Alerts == nil {
		writeJSON(w, http.StatusOK, []alertResponse{})
		return
	}
	writeJSON(w, http.StatusOK, toAlertResponses(h.deps.Alerts.Recent()))
}

// HandleCreateListing takes a multipart form with the listing fields and one
// or more "images" files; the first file becomes the primary image.
func (h *Handler) HandleCreateListing(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.deps.MaxUploadBytes); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid multipart form", nil)
		return
	}
	draft := domain.Draft{
		Name:        r.FormValue("name"),
		Species:     domain.Species(r.FormValue("species")),
		Breed:       r.FormValue("breed"),
		Purpose:     domain.Purpose(r.FormValue("purpose")),
		Description: r.FormValue("description"),
		Location:    r.FormValue("location"),
	}
	if raw := strings.TrimSpace(r.FormValue("age")); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "age must be a whole number", []string{"age"})
			return
		}
		draft.Age = &age
	}
	images, err := formImages(r, "images")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), []string{"images"})
		return
	}
	draft.Images = images

	listing, err := h.deps.Mutations.Create(r.Context(), draft, func(done, total int) {
		h.logger.Debug("HandleCreateListing: upload progress", "done", done, "total", total)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingResponse(listing))
}

// HandleUpdateListing applies only the form fields that are present. An
// "image" file replaces the primary image.
func (h *Handler) HandleUpdateListing(w http.ResponseWriter, r *http.Request) {
	id, ok := listingID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(h.deps.MaxUploadBytes); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid multipart form", nil)
		return
	}
	var patch domain.Patch
	if v, ok := formField(r, "name"); ok {
		patch.Name = &v
	}
	if v, ok := formField(r, "species"); ok {
		s := domain.Species(v)
		patch.Species = &s
	}
	if v, ok := formField(r, "breed"); ok {
		patch.Breed = &v
	}
	if v, ok := formField(r, "age"); ok {
		age, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "age must be a whole number", []string{"age"})
			return
		}
		patch.Age = &age
	}
	if v, ok := formField(r, "purpose"); ok {
		p := domain.Purpose(v)
		patch.Purpose = &p
	}
	if v, ok := formField(r, "description"); ok {
		patch.Description = &v
	}
	if v, ok := formField(r, "location"); ok {
		patch.Location = &v
	}
	img, err := formImage(r, "image")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, err.Error(), []string{"image"})
		return
	}
	patch.Image = img

	if err := h.deps.Mutations.Update(r.Context(), id, patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleDeleteListing(w http.ResponseWriter, r *http.Request) {
	id, ok := listingID(w, r)
	if !ok {
		return
	}
	listing, found := h.deps.Listings.Get(id)
	if !found {
		var err error
		if listing, err = h.deps.Mutations.GetListingByID(r.Context(), id); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if err := h.deps.Mutations.Delete(r.Context(), listing); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func listingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "invalid listing id", []string{"id"})
		return 0, false
	}
	return id, true
}

func formField(r *http.Request, key string) (string, bool) {
	if r.MultipartForm == nil {
		return "", false
	}
	vs, ok := r.MultipartForm.Value[key]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func formImages(r *http.Request, key string) ([]domain.Image, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var images []domain.Image
	for _, fh := range r.MultipartForm.File[key] {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("cannot open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", fh.Filename, err)
		}
		images = append(images, domain.Image{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return images, nil
}

func formImage(r *http.Request, key string) (*domain.Image, error) {
	images, err := formImages(r, key)
	if err != nil || len(images) == 0 {
		return nil, err
	}
	return &images[0], nil
}
