package handlers

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxUploadSize caps source images at 10MB.
const maxUploadSize = 10 << 20

var allowedExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

// Upload accepts a multipart image, stores it under a random name, and
// returns the URL the static file server exposes it at.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "multipart field 'file' required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "only .png, .jpg and .jpeg files are accepted")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read upload")
		return
	}

	key := uuid.NewString() + ext
	if _, err := a.Files.Write(r.Context(), key, data); err != nil {
		a.Logger.Error().Err(err).Str("key", key).Msg("upload write failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}

	a.json(w, http.StatusCreated, map[string]string{"imageUrl": "/uploads/" + key})
}
