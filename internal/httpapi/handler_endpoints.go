package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/user"
	"path/filepath"

	"pkt.systems/pslog"

	"pkt.systems/fmusd/api"
	"pkt.systems/fmusd/internal/dirlock"
	"pkt.systems/fmusd/internal/fmuconfig"
	"pkt.systems/fmusd/internal/session"
)

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodPost:
		return h.createSession(w, r)
	case http.MethodGet:
		return h.getSession(w, r)
	case http.MethodDelete:
		return h.deleteSession(w, r)
	default:
		return methodNotAllowed(http.MethodPost, http.MethodGet, http.MethodDelete)
	}
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) error {
	var req api.CreateSessionRequest
	if err := h.decodeOptionalJSON(r, &req); err != nil {
		return err
	}
	home := req.UserHome
	if home == "" {
		home = h.userHome
	}
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve user home: %w", err)
		}
	}

	userDir, err := fmuconfig.OpenOrInitUserDir(home, h.clock.Now())
	if err != nil {
		return fmt.Errorf("open user settings: %w", err)
	}
	id, err := h.manager.CreateSession(r.Context(), userDir)
	if err != nil {
		return err
	}
	view, err := h.manager.GetSession(r.Context(), id)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusCreated, sessionResponse(view))
	return nil
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) error {
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	view, err := h.manager.GetSession(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sessionResponse(view))
	return nil
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) error {
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	if err := h.manager.DestroySession(r.Context(), id); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, api.Message{Message: "Session destroyed"})
	return nil
}

func (h *Handler) handleAccessToken(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return methodNotAllowed(http.MethodPost)
	}
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	var req api.AccessTokenRequest
	if err := h.decodeJSON(r, &req); err != nil {
		return err
	}
	token := session.AccessToken{ID: session.TokenID(req.ID), Key: session.Secret(req.Key)}
	if err := h.manager.AddAccessTokenToSession(r.Context(), id, token); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, api.Message{Message: fmt.Sprintf("Access token %s saved to session", req.ID)})
	return nil
}

func (h *Handler) handleProject(w http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodPost:
		return h.attachProject(w, r)
	case http.MethodGet:
		return h.getProject(w, r)
	case http.MethodDelete:
		return h.detachProject(w, r)
	default:
		return methodNotAllowed(http.MethodPost, http.MethodGet, http.MethodDelete)
	}
}

func (h *Handler) attachProject(w http.ResponseWriter, r *http.Request) error {
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	var req api.ProjectPathRequest
	if err := h.decodeOptionalJSON(r, &req); err != nil {
		return err
	}

	var projectDir *fmuconfig.ProjectDir
	if req.Path != "" {
		projectDir, err = fmuconfig.OpenProjectDir(req.Path)
	} else {
		wd, wdErr := os.Getwd()
		if wdErr != nil {
			return fmt.Errorf("resolve working directory: %w", wdErr)
		}
		projectDir, err = fmuconfig.FindNearestProjectDir(wd)
	}
	if errors.Is(err, fmuconfig.ErrNotFound) {
		return httpError{Status: http.StatusNotFound, Code: "project_not_found", Detail: err.Error()}
	}
	if err != nil {
		return fmt.Errorf("open project: %w", err)
	}

	ps, err := h.manager.AddFMUProjectToSession(r.Context(), id, projectDir)
	if err != nil {
		return err
	}
	if err := h.manager.AddRecentProjectToSession(r.Context(), id, projectDir.BasePath()); err != nil {
		pslog.LoggerFromContext(r.Context()).Warn("project.recent.update_failed", "error", err)
	}

	resp, err := projectResponse(ps)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) error {
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	view, err := h.manager.GetSession(r.Context(), id)
	if err != nil {
		return err
	}
	if view.Project == nil {
		return httpError{Status: http.StatusUnauthorized, Code: "no_project", Detail: "no project attached to session"}
	}
	resp, err := projectResponse(*view.Project)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *Handler) detachProject(w http.ResponseWriter, r *http.Request) error {
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	if err := h.manager.RemoveFMUProjectFromSession(r.Context(), id); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, api.Message{Message: "Project closed"})
	return nil
}

func (h *Handler) handleProjectInit(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return methodNotAllowed(http.MethodPost)
	}
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	var req api.ProjectPathRequest
	if err := h.decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Path == "" {
		return httpError{Status: http.StatusBadRequest, Code: "invalid_request", Detail: "path is required"}
	}

	projectDir, err := fmuconfig.InitProjectDir(req.Path, currentUsername(), h.clock.Now())
	if errors.Is(err, fmuconfig.ErrExists) {
		return httpError{Status: http.StatusConflict, Code: "project_exists", Detail: err.Error()}
	}
	if err != nil {
		return fmt.Errorf("init project: %w", err)
	}

	ps, err := h.manager.AddFMUProjectToSession(r.Context(), id, projectDir)
	if err != nil {
		return err
	}
	if err := h.manager.AddRecentProjectToSession(r.Context(), id, projectDir.BasePath()); err != nil {
		pslog.LoggerFromContext(r.Context()).Warn("project.recent.update_failed", "error", err)
	}

	resp, err := projectResponse(ps)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, resp)
	return nil
}

func (h *Handler) handleProjectLock(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return methodNotAllowed(http.MethodPost)
	}
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	ps, err := h.manager.TryAcquireProjectLock(r.Context(), id)
	if err != nil {
		return err
	}
	status, err := h.manager.ProbeProjectLock(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, lockStatusResponse(ps.HoldsLock(), status))
	return nil
}

func (h *Handler) handleProjectLockStatus(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return methodNotAllowed(http.MethodGet)
	}
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	status, err := h.manager.ProbeProjectLock(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, lockStatusResponse(status.HeldBySelf, status))
	return nil
}

func (h *Handler) handleRMSOpen(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return methodNotAllowed(http.MethodPost)
	}
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	var req api.RMSOpenRequest
	if err := h.decodeOptionalJSON(r, &req); err != nil {
		return err
	}
	if h.opener == nil {
		return httpError{Status: http.StatusServiceUnavailable, Code: "rms_unavailable", Detail: "no RMS backend configured"}
	}

	view, err := h.manager.GetSession(r.Context(), id)
	if err != nil {
		return err
	}
	if view.Project == nil {
		return httpError{Status: http.StatusUnauthorized, Code: "no_project", Detail: "no project attached to session"}
	}
	cfg, err := view.Project.Dir.Config()
	if err != nil {
		return fmt.Errorf("read project config: %w", err)
	}
	if cfg.RMSProjectPath == "" {
		return httpError{Status: http.StatusBadRequest, Code: "no_rms_path", Detail: "No RMS project path configured for this project"}
	}
	version := req.Version
	if version == "" {
		version = h.rmsVersion
	}

	project, err := h.opener.Open(r.Context(), cfg.RMSProjectPath, version)
	if err != nil {
		return httpError{Status: http.StatusBadGateway, Code: "rms_open_failed", Detail: err.Error()}
	}
	if err := h.manager.AddRMSProjectToSession(r.Context(), id, project); err != nil {
		_ = project.Close()
		return err
	}
	writeJSON(w, http.StatusOK, api.Message{Message: "RMS project opened"})
	return nil
}

func (h *Handler) handleRMSClose(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodDelete {
		return methodNotAllowed(http.MethodDelete)
	}
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	if err := h.manager.RemoveRMSProjectFromSession(r.Context(), id); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, api.Message{Message: "RMS project closed"})
	return nil
}

func (h *Handler) handleRMSStratColumn(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return methodNotAllowed(http.MethodGet)
	}
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	project, err := h.manager.RMSProject(r.Context(), id)
	if err != nil {
		return err
	}
	zones, err := project.Zones()
	if err != nil {
		return httpError{Status: http.StatusBadGateway, Code: "rms_query_failed", Detail: err.Error()}
	}
	col := api.StratigraphicColumn{Zones: make([]api.StratigraphicZone, 0, len(zones))}
	for _, z := range zones {
		col.Zones = append(col.Zones, api.StratigraphicZone{Name: z.Name, Top: z.Top, Base: z.Base})
	}
	writeJSON(w, http.StatusOK, col)
	return nil
}

func (h *Handler) handleRMSHorizons(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return methodNotAllowed(http.MethodGet)
	}
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	project, err := h.manager.RMSProject(r.Context(), id)
	if err != nil {
		return err
	}
	horizons, err := project.Horizons()
	if err != nil {
		return httpError{Status: http.StatusBadGateway, Code: "rms_query_failed", Detail: err.Error()}
	}
	writeJSON(w, http.StatusOK, api.HorizonList{Horizons: horizons})
	return nil
}

func (h *Handler) handleRMSWells(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return methodNotAllowed(http.MethodGet)
	}
	id, err := requireSessionID(r)
	if err != nil {
		return err
	}
	project, err := h.manager.RMSProject(r.Context(), id)
	if err != nil {
		return err
	}
	wells, err := project.Wells()
	if err != nil {
		return httpError{Status: http.StatusBadGateway, Code: "rms_query_failed", Detail: err.Error()}
	}
	writeJSON(w, http.StatusOK, api.WellList{Wells: wells})
	return nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return methodNotAllowed(http.MethodGet)
	}
	writeJSON(w, http.StatusOK, api.Message{Message: "ok"})
	return nil
}

func sessionResponse(v session.View) api.SessionResponse {
	return api.SessionResponse{
		ID:           v.ID,
		CreatedAt:    v.CreatedAt,
		ExpiresAt:    v.ExpiresAt,
		LastAccessed: v.LastAccessed,
	}
}

func projectResponse(pv session.ProjectView) (api.ProjectResponse, error) {
	cfg, err := pv.Dir.Config()
	if err != nil {
		return api.ProjectResponse{}, fmt.Errorf("read project config: %w", err)
	}
	base := pv.Dir.BasePath()
	return api.ProjectResponse{
		Path:           base,
		ProjectDirName: filepath.Base(base),
		Config: api.ProjectConfig{
			Version:        cfg.Version,
			CreatedAt:      cfg.CreatedAt,
			CreatedBy:      cfg.CreatedBy,
			RMSProjectPath: cfg.RMSProjectPath,
			Masterdata:     cfg.Masterdata,
			Model:          cfg.Model,
			Access:         cfg.Access,
		},
		ReadOnly: !pv.HoldsLock(),
	}, nil
}

func lockStatusResponse(acquired bool, status dirlock.Status) api.LockStatusResponse {
	resp := api.LockStatusResponse{
		Acquired:    acquired,
		FileExists:  status.Exists,
		Held:        status.Held,
		Stale:       status.Stale,
		ReadError:   status.ReadError,
		HolderAlive: status.HolderAlive,
	}
	if status.Info != nil {
		resp.Info = &api.LockInfo{
			SessionID:  status.Info.SessionID,
			PID:        status.Info.PID,
			Hostname:   status.Info.Hostname,
			AcquiredAt: status.Info.AcquiredAt,
		}
	}
	return resp
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}
