package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/civix-platform/civix"
	"github.com/civix-platform/civix/identity"
	"github.com/civix-platform/civix/metrics/export/prometheus"
	"github.com/civix-platform/civix/session"
	"github.com/gorilla/mux"
)

type userView struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
	Points      uint32 `json:"points"`
}

type stateView struct {
	Authenticated bool      `json:"authenticated"`
	Loading       bool      `json:"loading"`
	Phase         string    `json:"phase"`
	Version       uint64    `json:"version"`
	User          *userView `json:"user,omitempty"`
}

type loginRequest struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Points      uint32 `json:"points"`
}

type signInRequest struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type inspector struct {
	manager *civix.Manager
	emitter *identity.Emitter
}

func newRouter(m *civix.Manager, emitter *identity.Emitter, exporter *prometheus.PrometheusExporter) http.Handler {
	in := &inspector{manager: m, emitter: emitter}

	r := mux.NewRouter()
	r.HandleFunc("/session", in.getSession).Methods(http.MethodGet)
	r.HandleFunc("/capabilities", in.getCapabilities).Methods(http.MethodGet)
	r.HandleFunc("/login", in.postLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", in.postLogout).Methods(http.MethodPost)
	r.HandleFunc("/refresh", in.postRefresh).Methods(http.MethodPost)
	if emitter != nil {
		r.HandleFunc("/signin", in.postSignIn).Methods(http.MethodPost)
	}
	r.Handle("/metrics", exporter.Handler()).Methods(http.MethodGet)
	return r
}

func viewOf(st civix.State) stateView {
	v := stateView{
		Authenticated: st.IsAuthenticated,
		Loading:       st.Loading,
		Phase:         st.Phase.String(),
		Version:       st.Version,
	}
	if st.IsAuthenticated {
		v.User = &userView{
			UserID:      st.User.UserID,
			DisplayName: st.User.DisplayName,
			Email:       st.User.Email,
			Role:        st.User.Role.String(),
			Points:      st.User.Points,
		}
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (in *inspector) getSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(in.manager.State()))
}

func (in *inspector) getCapabilities(w http.ResponseWriter, _ *http.Request) {
	caps := in.manager.Capabilities()
	if caps == nil {
		caps = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"capabilities": caps})
}

func (in *inspector) postLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	role, err := session.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = in.manager.Login(r.Context(), session.Session{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Role:        role,
		Points:      req.Points,
	})
	switch {
	case errors.Is(err, civix.ErrInvalidSession):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeJSON(w, http.StatusOK, viewOf(in.manager.State()))
	}
}

func (in *inspector) postSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UID == "" {
		writeError(w, http.StatusBadRequest, errors.New("uid required"))
		return
	}
	in.emitter.SignIn(identity.Identity{UID: req.UID, DisplayName: req.DisplayName, Email: req.Email})
	writeJSON(w, http.StatusAccepted, viewOf(in.manager.State()))
}

func (in *inspector) postLogout(w http.ResponseWriter, r *http.Request) {
	in.manager.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (in *inspector) postRefresh(w http.ResponseWriter, r *http.Request) {
	err := in.manager.RefreshProfile(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, viewOf(in.manager.State()))
	case errors.Is(err, civix.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, civix.ErrSessionChanged):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, civix.ErrEnrichmentFailed):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusServiceUnavailable, err)
	}
}
