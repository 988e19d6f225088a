package gateway

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
	"github.com/Alpha-ashu/Candidate-Experience/internal/domain"
	"github.com/Alpha-ashu/Candidate-Experience/internal/token"
)

// loginRequest is the only identity input this platform accepts (spec §1
// non-goal: rich identity/MFA flows are out of scope; a single
// email-based sign-in is enough to drive the state machine).
type loginRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" {
		writeError(w, apierrors.ValidationFailed("email", "required"))
		return
	}

	raw, _, _, err := s.authority.Mint(token.AudienceUser, token.MintOptions{Subject: req.Email})
	if err != nil {
		writeError(w, apierrors.Internal("mint user token", err))
		return
	}
	s.setSessionCookie(w, raw, int(token.MaxLifetime[token.AudienceUser].Seconds()))
	writeJSON(w, http.StatusOK, map[string]string{"token": raw})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	claims, err := s.requireUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var cfg domain.Config
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, err)
		return
	}

	sess, err := s.store.CreateSession(r.Context(), claims.Subject, cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	ist, _, _, err := s.authority.Mint(token.AudienceIST, token.MintOptions{SessionID: sess.ID, Generation: sess.TokenGeneration})
	if err != nil {
		writeError(w, apierrors.Internal("mint ist", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": sess.ID,
		"ist":       ist,
		"nextStep":  "precheck",
	})
}

// sessionForUser loads and authorizes ownership of a session for the User-scoped
// read endpoints (summary, review, state, anti-cheat tail, token issuance).
func (s *Server) sessionForUser(r *http.Request) (*domain.Session, error) {
	claims, err := s.requireUser(r)
	if err != nil {
		return nil, err
	}
	id := mux.Vars(r)["id"]
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if sess.Owner != claims.Subject {
		return nil, apierrors.TokenWrongSession()
	}
	return sess, nil
}

func (s *Server) handleIssueACET(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionForUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	acet, _, _, err := s.authority.Mint(token.AudienceACET, token.MintOptions{SessionID: sess.ID, Generation: sess.TokenGeneration})
	if err != nil {
		writeError(w, apierrors.Internal("mint acet", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"acet": acet})
}

func (s *Server) handleIssueAIPT(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionForUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	aipt, _, _, err := s.authority.Mint(token.AudienceAIPT, token.MintOptions{SessionID: sess.ID, Generation: sess.TokenGeneration})
	if err != nil {
		writeError(w, apierrors.Internal("mint aipt", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"aipt": aipt})
}

// handleRefreshTokens mints only the tokens still applicable in the
// session's current state (spec §6): IST while the session hasn't ended,
// WST while a duplex stream is meaningful (Active or Paused).
func (s *Server) handleRefreshTokens(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionForUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	out := map[string]interface{}{}
	if !sess.State.Terminal() {
		ist, _, _, err := s.authority.Mint(token.AudienceIST, token.MintOptions{SessionID: sess.ID, Generation: sess.TokenGeneration})
		if err != nil {
			writeError(w, apierrors.Internal("mint ist", err))
			return
		}
		out["ist"] = ist
	}
	if sess.State == domain.StateActive || sess.State == domain.StatePaused {
		wst, _, _, err := s.authority.Mint(token.AudienceWST, token.MintOptions{SessionID: sess.ID, Generation: sess.TokenGeneration})
		if err != nil {
			writeError(w, apierrors.Internal("mint wst", err))
			return
		}
		out["wst"] = wst
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionForUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if sess.State != domain.StateReady && sess.State != domain.StateActive {
		writeError(w, apierrors.InvalidState(string(sess.State), string(domain.StateReady)))
		return
	}
	wst, _, _, err := s.authority.Mint(token.AudienceWST, token.MintOptions{SessionID: sess.ID, Generation: sess.TokenGeneration})
	if err != nil {
		writeError(w, apierrors.Internal("mint wst", err))
		return
	}
	aipt, _, _, err := s.authority.Mint(token.AudienceAIPT, token.MintOptions{SessionID: sess.ID, Generation: sess.TokenGeneration})
	if err != nil {
		writeError(w, apierrors.Internal("mint aipt", err))
		return
	}
	upt, _, uptID, err := s.authority.Mint(token.AudienceUPT, token.MintOptions{SessionID: sess.ID, Generation: sess.TokenGeneration, OneShot: true})
	if err != nil {
		writeError(w, apierrors.Internal("mint upt", err))
		return
	}
	if err := s.store.IssueUploadCapability(r.Context(), sess.ID, uptID, token.MaxLifetime[token.AudienceUPT]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"wst": wst, "aipt": aipt, "upt": upt})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionForUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": sess.State, "askedCount": sess.AskedCount})
}
