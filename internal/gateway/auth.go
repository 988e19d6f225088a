package gateway

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/token"
)

const sessionCookieName = "ia_session"

// bearerToken extracts the capability token from the Authorization header
// (spec §6: "Bearer <token>" for every token-scoped endpoint).
func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", apierrors.TokenMissing()
	}
	if !strings.HasPrefix(h, "Bearer ") {
		return "", apierrors.TokenInvalid(nil)
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")), nil
}

// cookieToken extracts the User capability token carried as the HttpOnly
// session cookie (spec §6: "session cookie" auth).
func cookieToken(r *http.Request) (string, error) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", apierrors.TokenMissing()
	}
	return c.Value, nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, raw string, exp int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    raw,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   exp,
	})
}

// requireUser verifies the User capability carried by the session cookie
// and returns its claims (claims.Subject is the candidate's email).
func (s *Server) requireUser(r *http.Request) (*token.Claims, error) {
	raw, err := cookieToken(r)
	if err != nil {
		return nil, err
	}
	return s.authority.Verify(raw, token.VerifyOptions{Audience: token.AudienceUser})
}

// requireAudience verifies a bearer capability token scoped to sessionID,
// bound to its current token generation so a transition out of Active
// invalidates every token minted under the prior generation.
func (s *Server) requireAudience(r *http.Request, aud token.Audience, sessionID string, generation int64) (*token.Claims, error) {
	raw, err := bearerToken(r)
	if err != nil {
		return nil, err
	}
	return s.authority.Verify(raw, token.VerifyOptions{Audience: aud, SessionID: sessionID, CurrentGeneration: generation})
}

// sessionForAudience loads the path-bound session and verifies a bearer
// token of the given audience against it in one step, so every
// token-scoped handler gets the same not_found / wrong_session / wrong_
// audience ordering (spec §8 "Token scoping").
func (s *Server) sessionForAudience(r *http.Request, aud token.Audience) (*domain.Session, *token.Claims, error) {
	id := mux.Vars(r)["id"]
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	claims, err := s.requireAudience(r, aud, sess.ID, sess.TokenGeneration)
	if err != nil {
		return nil, nil, err
	}
	return sess, claims, nil
}
