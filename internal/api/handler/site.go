package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/sitehost/internal/api/request"
	"github.com/edvin/sitehost/internal/api/response"
	"github.com/edvin/sitehost/internal/model"
	"github.com/edvin/sitehost/internal/workflow"
)

// SiteService is the orchestrator surface the HTTP API exposes.
type SiteService interface {
	CreateSite(ctx context.Context, p workflow.CreateSiteParams) (*model.Site, error)
	DeleteSite(ctx context.Context, name string) error
	ListSites(ctx context.Context) ([]string, error)
	GetSite(ctx context.Context, name string) (*model.Site, error)
	MigrateSite(ctx context.Context, name string) (*model.MigrationResult, error)
	HealthCheck(ctx context.Context, name string) (*model.Health, error)
	BackupSite(ctx context.Context, name string, includeFiles bool) (*model.BackupRecord, error)
	ListBackups(ctx context.Context, name string) ([]model.BackupRecord, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

type Site struct {
	svc SiteService
}

func NewSite(svc SiteService) *Site {
	return &Site{svc: svc}
}

func (h *Site) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateSite
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	site, err := h.svc.CreateSite(r.Context(), workflow.CreateSiteParams{
		Name:          req.SiteName,
		AdminEmail:    req.AdminEmail,
		AdminPassword: req.AdminPassword,
		Apps:          req.Apps,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, site)
}

func (h *Site) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.ListSites(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, names)
}

func (h *Site) Get(w http.ResponseWriter, r *http.Request) {
	name, ok := siteName(w, r)
	if !ok {
		return
	}

	site, err := h.svc.GetSite(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, site)
}

func (h *Site) Delete(w http.ResponseWriter, r *http.Request) {
	name, ok := siteName(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteSite(r.Context(), name); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Site) Migrate(w http.ResponseWriter, r *http.Request) {
	name, ok := siteName(w, r)
	if !ok {
		return
	}

	res, err := h.svc.MigrateSite(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, res)
}

func (h *Site) Health(w http.ResponseWriter, r *http.Request) {
	name, ok := siteName(w, r)
	if !ok {
		return
	}

	health, err := h.svc.HealthCheck(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, health)
}

func (h *Site) CreateBackup(w http.ResponseWriter, r *http.Request) {
	name, ok := siteName(w, r)
	if !ok {
		return
	}

	var req request.Backup
	if err := request.DecodeOptional(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.svc.BackupSite(r.Context(), name, req.WithFiles())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Site) ListBackups(w http.ResponseWriter, r *http.Request) {
	name, ok := siteName(w, r)
	if !ok {
		return
	}

	recs, err := h.svc.ListBackups(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, recs)
}

func (h *Site) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, st)
}

func siteName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := request.RequireSiteName(chi.URLParam(r, "name"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return name, true
}
