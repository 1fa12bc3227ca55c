// Package ui implements the management UI's REST surface (spec §6):
// listing volumes/databases/schemas/tables and a session's recent
// query history. Thin, DTO-only — no new semantics beyond what
// internal/metastore and internal/session already expose.
package ui

import (
	"net/http"

	"github.com/embucket/embucket/internal/api/common"
	"github.com/embucket/embucket/internal/config"
	"github.com/embucket/embucket/internal/metastore"
	"github.com/embucket/embucket/internal/query"
)

type Handler struct {
	engine     *query.Engine
	middleware []func(http.HandlerFunc) http.HandlerFunc
}

// NewHandler builds the UI handler set. Every route requires an
// authenticated caller (common.WithAuth) — the UI surface is the one
// place internal/api/auth's tokens are actually checked.
func NewHandler(engine *query.Engine, validator common.TokenValidator, cfg *config.Config) *Handler {
	return &Handler{
		engine:     engine,
		middleware: []func(http.HandlerFunc) http.HandlerFunc{common.WithAuth(validator, cfg)},
	}
}

func (h *Handler) Routes() []common.Route {
	return []common.Route{
		{Path: "/ui/volumes", Method: http.MethodGet, Handler: h.listVolumes, Middleware: h.middleware},
		{Path: "/ui/databases", Method: http.MethodGet, Handler: h.listDatabases, Middleware: h.middleware},
		{Path: "/ui/databases/{database}/schemas", Method: http.MethodGet, Handler: h.listSchemas, Middleware: h.middleware},
		{Path: "/ui/databases/{database}/schemas/{schema}/tables", Method: http.MethodGet, Handler: h.listTables, Middleware: h.middleware},
		{Path: "/ui/sessions/{sessionID}/history", Method: http.MethodGet, Handler: h.queryHistory, Middleware: h.middleware},
	}
}

type volumeDTO struct {
	Ident string `json:"ident"`
	Kind  string `json:"kind"`
}

func (h *Handler) listVolumes(w http.ResponseWriter, r *http.Request) {
	volumes, err := h.engine.Metastore.ListVolumes(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dtos := make([]volumeDTO, len(volumes))
	for i, v := range volumes {
		dtos[i] = volumeDTO{Ident: v.Ident, Kind: string(v.Kind)}
	}
	common.RespondJSON(w, http.StatusOK, dtos)
}

type databaseDTO struct {
	Ident       string `json:"ident"`
	VolumeIdent string `json:"volume_ident"`
}

func (h *Handler) listDatabases(w http.ResponseWriter, r *http.Request) {
	databases, err := h.engine.Metastore.ListDatabases(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dtos := make([]databaseDTO, len(databases))
	for i, d := range databases {
		dtos[i] = databaseDTO{Ident: d.Ident, VolumeIdent: d.VolumeIdent}
	}
	common.RespondJSON(w, http.StatusOK, dtos)
}

type schemaDTO struct {
	Database string `json:"database"`
	Name     string `json:"name"`
}

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	database := r.PathValue("database")
	schemas, err := h.engine.Metastore.ListSchemas(r.Context(), database)
	if err != nil {
		common.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dtos := make([]schemaDTO, len(schemas))
	for i, s := range schemas {
		dtos[i] = schemaDTO{Database: s.Database, Name: s.Name}
	}
	common.RespondJSON(w, http.StatusOK, dtos)
}

type tableDTO struct {
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`
	Format   string `json:"format"`
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	database := r.PathValue("database")
	schema := r.PathValue("schema")

	tables, err := h.engine.Metastore.ListTables(r.Context(), metastore.SchemaIdent{Database: database, Schema: schema})
	if err != nil {
		common.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dtos := make([]tableDTO, len(tables))
	for i, t := range tables {
		dtos[i] = tableDTO{
			Database: t.Ident.Database,
			Schema:   t.Ident.Schema,
			Table:    t.Ident.Table,
			Format:   string(t.Format),
		}
	}
	common.RespondJSON(w, http.StatusOK, dtos)
}

type historyDTO struct {
	QueryIDs []string `json:"query_ids"`
}

func (h *Handler) queryHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	sess, err := h.engine.Sessions.Get(sessionID)
	if err != nil {
		common.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	common.RespondJSON(w, http.StatusOK, historyDTO{QueryIDs: sess.RecentQueryIDs()})
}
