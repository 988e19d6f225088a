package gateway

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
)

func multipartUploadRequest(t *testing.T, upt string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "clip.webm")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake media bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/media/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+upt)
	return req
}

func TestMediaUploadConsumesOneShotToken(t *testing.T) {
	srv := newTestServer(t)
	sessionID, cookie, _ := bootstrapSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/start", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var started map[string]string
	decodeBody(t, rec, &started)
	upt := started["upt"]
	require.NotEmpty(t, upt)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, multipartUploadRequest(t, upt))
	require.Equal(t, http.StatusCreated, rec.Code)
	var body map[string]string
	decodeBody(t, rec, &body)
	require.Contains(t, body["ref"], "blob:"+sessionID+":")

	// Reusing the same one-shot UPT must fail.
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, multipartUploadRequest(t, upt))
	require.Equal(t, http.StatusForbidden, rec.Code)

	var errBody errorBody
	decodeBody(t, rec, &errBody)
	require.Equal(t, apierrors.KindTokenAlreadyUsed, errBody.Error.Kind)
}

func TestMediaUploadRejectsMissingFile(t *testing.T) {
	srv := newTestServer(t)
	sessionID, cookie, _ := bootstrapSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/interview/"+sessionID+"/start", nil, []*http.Cookie{cookie}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var started map[string]string
	decodeBody(t, rec, &started)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/media/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+started["upt"])

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
