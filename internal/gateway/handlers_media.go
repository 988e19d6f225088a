package gateway

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/token"
)

const maxUploadBytes = 32 << 20 // 32MiB; the blob itself is never persisted here (spec §1 non-goal).

// handleMediaUpload accepts one multipart upload per UPT and stores only
// an opaque reference string (spec §4.9): the media itself is treated as
// an opaque blob store reached via this capability, explicitly out of
// scope for this repository.
func (s *Server) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	raw, err := bearerToken(r)
	if err != nil {
		writeError(w, err)
		return
	}
	claims, err := s.authority.Verify(raw, token.VerifyOptions{Audience: token.AudienceUPT})
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.store.GetSession(r.Context(), claims.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if claims.Generation != sess.TokenGeneration {
		writeError(w, apierrors.TokenExpired())
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, apierrors.ValidationFailed("body", "malformed multipart body"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, apierrors.ValidationFailed("file", "required"))
		return
	}
	defer file.Close()

	consumed, err := s.store.ConsumeUploadCapability(r.Context(), claims.ID)
	if err != nil {
		writeError(w, apierrors.Internal("consume upload capability", err))
		return
	}
	if !consumed {
		writeError(w, apierrors.TokenAlreadyUsed())
		return
	}
	s.authority.Consume(claims.ID)

	ref := fmt.Sprintf("blob:%s:%s", sess.ID, uuid.NewString())
	if err := s.store.RecordUploadRef(r.Context(), claims.ID, ref); err != nil {
		writeError(w, apierrors.Internal("record upload ref", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"ref": ref})
}
