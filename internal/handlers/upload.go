package handlers

import (
	"net/http"

	"github.com/medivuno/medivuno-backend/internal/services"
)

// UploadHandler accepts attachment uploads and returns the file descriptor
// the client embeds in a file message.
type UploadHandler struct {
	sessions   *services.SessionService
	cloudinary *services.CloudinaryService
}

func NewUploadHandler(sessions *services.SessionService, cloudinary *services.CloudinaryService) *UploadHandler {
	return &UploadHandler{sessions: sessions, cloudinary: cloudinary}
}

// Upload handles multipart attachment uploads to Cloudinary.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	userID, ok, err := h.sessions.ValidateSession(r.Context(), token)
	if err != nil || !ok || userID == "" {
		respondJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "invalid session token",
		})
		return
	}

	if h.cloudinary == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success": false,
			"message": "file uploads are not available",
		})
		return
	}

	// Parse multipart form (max 10MB)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "failed to parse form",
		})
		return
	}

	_, fileHeader, err := r.FormFile("file")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "no file provided",
		})
		return
	}

	folder := r.URL.Query().Get("folder")
	if folder == "" {
		folder = "medivuno/chat"
	}

	ref, err := h.cloudinary.UploadAttachment(r.Context(), fileHeader, folder)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "failed to upload file",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"file":    ref,
	})
}
