// Package snowflake implements the Snowflake-REST-compatible surface
// spec §6 calls for: /session/v1/login-request, /queries/v1/query-
// request, /queries/v1/abort-request, and /queries/{id}/result, thin
// net/http handlers over internal/query + internal/session. Request/
// response shapes are grounded on
// original_source/crates/api-snowflake-rest/src/tests/client.rs and
// sql_test_macro.rs — the only surviving fragments of the original's
// wire format in this pack (the handler crate itself wasn't
// retrieved), so the envelope names (success/message/data, queryId,
// rowType/rowSet) follow those tests rather than a full original
// handler.
package snowflake

// envelope is the standard Snowflake REST response wrapper every
// endpoint returns.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type loginRequestBody struct {
	Data loginRequestData `json:"data"`
}

type loginRequestData struct {
	AccountName string `json:"accountName"`
	LoginName   string `json:"loginName"`
	Password    string `json:"password"`
}

type loginResponseData struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
}

type queryRequestBody struct {
	SQLText   string `json:"sqlText"`
	AsyncExec *bool  `json:"asyncExec,omitempty"`
}

type abortRequestBody struct {
	SQLText   string `json:"sqlText"`
	RequestID string `json:"requestId"`
}

// columnType describes one result column; rowType in a real Snowflake
// response additionally carries precision/scale/nullability, omitted
// here as unneeded by anything this core emits.
type columnType struct {
	Name string `json:"name"`
}

type queryResponseData struct {
	QueryID string          `json:"queryId"`
	RowType []columnType    `json:"rowType,omitempty"`
	RowSet  [][]interface{} `json:"rowSet,omitempty"`
}
