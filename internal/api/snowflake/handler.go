package snowflake

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/embucket/embucket/internal/api/common"
	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/query"
	"github.com/embucket/embucket/internal/registry"
)

// Handler implements the Snowflake-REST-compatible endpoints over a
// query.Engine. It has nothing to do with internal/api/common's
// opaque-caller auth: a Snowflake session token identifies a C6
// UserSession, not an authenticated principal (spec §4.6.1 sessions
// carry no identity of their own).
type Handler struct {
	engine *query.Engine
}

func NewHandler(engine *query.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Routes() []common.Route {
	return []common.Route{
		{Path: "/session/v1/login-request", Method: http.MethodPost, Handler: h.login},
		{Path: "/session", Method: http.MethodDelete, Handler: h.closeSession},
		{Path: "/queries/v1/query-request", Method: http.MethodPost, Handler: h.query},
		{Path: "/queries/v1/abort-request", Method: http.MethodPost, Handler: h.abort},
		{Path: "/queries/{queryID}/result", Method: http.MethodGet, Handler: h.result},
	}
}

// login implements spec §4.6.1's create_session: it mints a fresh
// session id and ensures the C6 session map holds it. There is no
// password check — account/credential verification is the opaque-
// caller concern internal/api/auth covers for the UI surface, not this
// wire-compatible one.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequestBody
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	sessionID := uuid.NewString()
	h.engine.Sessions.CreateSession(sessionID)

	respondSuccess(w, loginResponseData{Token: sessionID, SessionID: sessionID})
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionToken(r)
	if sessionID != "" {
		h.engine.Sessions.Delete(sessionID)
	}
	respondSuccess(w, nil)
}

// query implements submit/wait for a single SQL statement: async_exec
// requests return the minted query id immediately (client polls
// result), synchronous requests wait inline (spec §4.6.2's
// query(session, sql, ctx) = submit then wait).
func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionToken(r)
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "missing session token")
		return
	}

	var body queryRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.SQLText == "" {
		respondError(w, http.StatusBadRequest, "sqlText is required")
		return
	}

	requestID := r.URL.Query().Get("requestId")

	if body.AsyncExec != nil && *body.AsyncExec {
		queryID, err := h.engine.Submit(r.Context(), sessionID, requestID, body.SQLText)
		if err != nil {
			respondQueryError(w, err)
			return
		}
		respondSuccess(w, queryResponseData{QueryID: queryID})
		return
	}

	queryID, err := h.engine.Submit(r.Context(), sessionID, requestID, body.SQLText)
	if err != nil {
		respondQueryError(w, err)
		return
	}
	res, err := h.engine.Wait(r.Context(), queryID)
	if err != nil {
		respondQueryError(w, err)
		return
	}
	respondSuccess(w, queryResultData(queryID, res))
}

func (h *Handler) abort(w http.ResponseWriter, r *http.Request) {
	var body abortRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	requestID := r.URL.Query().Get("requestId")
	if requestID == "" {
		requestID = body.RequestID
	}

	queryID, ok := h.engine.Registry.LocateQueryID(registry.ByRequestID, requestID)
	if !ok {
		respondSuccess(w, nil)
		return
	}
	if err := h.engine.Abort(queryID); err != nil {
		respondQueryError(w, err)
		return
	}
	respondSuccess(w, nil)
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	queryID := r.PathValue("queryID")
	if queryID == "" {
		respondError(w, http.StatusBadRequest, "missing query id")
		return
	}

	res, err := h.engine.Wait(r.Context(), queryID)
	if err != nil {
		respondQueryError(w, err)
		return
	}
	respondSuccess(w, queryResultData(queryID, res))
}

func queryResultData(queryID string, res query.Result) queryResponseData {
	data := queryResponseData{QueryID: queryID}
	if res.Record != nil {
		cols, rows := rowsFromRecord(res.Record)
		data.RowType = make([]columnType, len(cols))
		for i, c := range cols {
			data.RowType[i] = columnType{Name: c}
		}
		data.RowSet = rows
	}
	return data
}

// sessionToken extracts the session token from the Snowflake-style
// Authorization header (`Snowflake Token="<id>"`), falling back to a
// bare Bearer token for simpler clients.
func sessionToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Snowflake Token=") {
		tok := strings.TrimPrefix(h, "Snowflake Token=")
		return strings.Trim(tok, `"`)
	}
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func respondSuccess(w http.ResponseWriter, data interface{}) {
	common.RespondJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	common.RespondJSON(w, status, envelope{Success: false, Message: message})
}

func respondQueryError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperror.KindOf(err) {
	case apperror.KindMissingSession, apperror.KindQueryIsntRunning:
		status = http.StatusNotFound
	case apperror.KindConcurrencyLimit:
		status = http.StatusTooManyRequests
	case apperror.KindSQLParser, apperror.KindOnlyXStatements, apperror.KindInvalidTableIdentifier,
		apperror.KindInvalidSchemaIdentifier, apperror.KindInvalidBucketIdentifier, apperror.KindInvalidFilePath:
		status = http.StatusBadRequest
	case apperror.KindQueryTimeout:
		status = http.StatusGatewayTimeout
	}
	log.Debug().Err(err).Msg("snowflake query request failed")
	respondError(w, status, err.Error())
}
