package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"git.uuxo.net/uuxo/maxdiskusage/internal/audit"
	"git.uuxo.net/uuxo/maxdiskusage/internal/auth"
	"git.uuxo.net/uuxo/maxdiskusage/internal/classify"
	"git.uuxo.net/uuxo/maxdiskusage/internal/guard"
	"git.uuxo.net/uuxo/maxdiskusage/internal/policy"
	"git.uuxo.net/uuxo/maxdiskusage/internal/storage"
	"git.uuxo.net/uuxo/maxdiskusage/internal/utils"
)

// WarningHeader carries the warning text of an admitted statement.
const WarningHeader = "X-Disk-Warning"

const (
	userHeaderName = auth.UserHeader
	maxBodyBytes   = 1 << 20
	maxResultRows  = 1000
	recentRecords  = 20
)

// StatementRequest is the body of /v1/admit and /v1/exec.
type StatementRequest struct {
	Statement string        `json:"statement"`
	Args      []interface{} `json:"args,omitempty"`
}

// DecisionResponse describes one guard decision.
type DecisionResponse struct {
	User       string `json:"user,omitempty"`
	Kind       string `json:"kind"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason"`
	Message    string `json:"message,omitempty"`
	Suppressed bool   `json:"suppressed,omitempty"`
}

// ExecResponse is returned by /v1/exec.
type ExecResponse struct {
	DecisionResponse
	RowsAffected int64                    `json:"rows_affected,omitempty"`
	Columns      []string                 `json:"columns,omitempty"`
	Rows         []map[string]interface{} `json:"rows,omitempty"`
}

// StatusResponse is returned by /v1/status.
type StatusResponse struct {
	Version        string         `json:"version"`
	MonitoredPath  string         `json:"monitored_path"`
	Action         string         `json:"action"`
	MinFreeMB      uint64         `json:"min_free_mb"`
	MaxUsedPercent uint64         `json:"max_used_percent"`
	WarnSkipCount  uint64         `json:"warn_skip_count"`
	FreeMB         uint64         `json:"free_mb"`
	Free           string         `json:"free"`
	UsedPercent    uint64         `json:"used_percent"`
	StatError      string         `json:"stat_error,omitempty"`
	Disk           *storage.Usage `json:"disk,omitempty"`
	Recent         []audit.Record `json:"recent,omitempty"`
	HistoryError   string         `json:"history_error,omitempty"`
}

// API serves the admission endpoints.
type API struct {
	guard   *guard.Guard
	auth    *auth.Authenticator
	db      *guard.DB
	history audit.History
	version string
}

// NewAPI builds the admission API. db may be nil, in which case /v1/exec
// answers 503.
func NewAPI(g *guard.Guard, a *auth.Authenticator, db *guard.DB, version string) *API {
	return &API{guard: g, auth: a, db: db, version: version}
}

// WithHistory makes /v1/status list the newest mirrored audit records.
func (a *API) WithHistory(h audit.History) *API {
	a.history = h
	return a
}

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", Instrument("/healthz", HealthHandler()))
	mux.HandleFunc("/v1/admit", Instrument("/v1/admit", CORSWrapper("", a.AdmitHandler())))
	mux.HandleFunc("/v1/exec", Instrument("/v1/exec", CORSWrapper("", a.ExecHandler())))
	mux.HandleFunc("/v1/status", Instrument("/v1/status", CORSWrapper("", a.StatusHandler())))
}

// AdmitHandler evaluates a statement without running it.
func (a *API) AdmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, req, ok := a.decode(w, r)
		if !ok {
			return
		}

		d, err := a.guard.Admit(r.Context(), id, req.Statement)
		resp := newDecisionResponse(id, req.Statement, d)
		if err != nil && !errors.Is(err, guard.ErrBlocked) {
			WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeDecision(w, d, resp)
	}
}

// ExecHandler admits a statement and runs it against the guarded database.
func (a *API) ExecHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.db == nil {
			WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
			return
		}
		id, req, ok := a.decode(w, r)
		if !ok {
			return
		}
		ctx := guard.WithIdentity(r.Context(), id)

		if classify.Statement(req.Statement) == policy.KindSelect {
			rows, d, err := a.db.Query(ctx, req.Statement, req.Args...)
			resp := ExecResponse{DecisionResponse: newDecisionResponse(id, req.Statement, d)}
			if a.execFailed(w, d, resp, err) {
				return
			}
			defer rows.Close()
			resp.Columns, resp.Rows, err = collectRows(rows)
			if err != nil {
				WriteJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeDecision(w, d, resp)
			return
		}

		res, d, err := a.db.Exec(ctx, req.Statement, req.Args...)
		resp := ExecResponse{DecisionResponse: newDecisionResponse(id, req.Statement, d)}
		if a.execFailed(w, d, resp, err) {
			return
		}
		if n, err := res.RowsAffected(); err == nil {
			resp.RowsAffected = n
		}
		writeDecision(w, d, resp)
	}
}

// StatusHandler reports the live configuration and the last disk reading.
func (a *API) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		cfg := a.guard.Config()
		resp := StatusResponse{
			Version:        a.version,
			MonitoredPath:  cfg.MonitoredPath,
			Action:         cfg.Mode.String(),
			MinFreeMB:      cfg.MinFreeMB,
			MaxUsedPercent: cfg.MaxUsedPercent,
			WarnSkipCount:  cfg.WarnSkipCount,
		}

		snap, err := a.guard.Snapshot()
		if err != nil {
			resp.StatError = err.Error()
		} else {
			resp.FreeMB = snap.FreeMB()
			resp.Free = utils.FormatMB(resp.FreeMB)
			resp.UsedPercent = snap.UsedPercent()
		}
		if usage, err := storage.DiskUsage(cfg.MonitoredPath); err == nil {
			resp.Disk = usage
		} else {
			log.Debugf("Disk usage for %s unavailable: %v", cfg.MonitoredPath, err)
		}
		if a.history != nil {
			recent, err := a.history.Recent(r.Context(), recentRecords)
			if err != nil {
				log.Warnf("Cannot read audit history: %v", err)
				resp.HistoryError = err.Error()
			} else {
				resp.Recent = recent
			}
		}
		WriteJSONResponse(w, http.StatusOK, resp)
	}
}

func (a *API) decode(w http.ResponseWriter, r *http.Request) (auth.Identity, StatementRequest, bool) {
	var req StatementRequest
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return auth.Identity{}, req, false
	}

	id, err := a.auth.FromRequest(r)
	if err != nil {
		log.Warnf("Rejected request from %s: %v", utils.GetClientIP(r), err)
		WriteJSONError(w, http.StatusUnauthorized, err.Error())
		return auth.Identity{}, req, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "cannot read body")
		return id, req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return id, req, false
	}
	if req.Statement == "" {
		WriteJSONError(w, http.StatusBadRequest, "statement is required")
		return id, req, false
	}
	return id, req, true
}

// execFailed writes the response for a refused or failed statement and
// reports whether it did.
func (a *API) execFailed(w http.ResponseWriter, d policy.Decision, resp ExecResponse, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, guard.ErrBlocked):
		writeDecision(w, d, resp)
	default:
		log.Warnf("Statement failed after admission: %v", err)
		WriteJSONError(w, http.StatusBadRequest, err.Error())
	}
	return true
}

func newDecisionResponse(id auth.Identity, statement string, d policy.Decision) DecisionResponse {
	return DecisionResponse{
		User:       id.Name,
		Kind:       classify.Statement(statement).String(),
		Outcome:    d.Outcome.String(),
		Reason:     d.Reason.String(),
		Message:    d.Message,
		Suppressed: d.Suppressed,
	}
}

// writeDecision maps a decision to its HTTP status: 507 for a block, 200
// otherwise with the warning text in a header.
func writeDecision(w http.ResponseWriter, d policy.Decision, body interface{}) {
	switch d.Outcome {
	case policy.OutcomeBlock:
		WriteJSONResponse(w, http.StatusInsufficientStorage, body)
	case policy.OutcomeWarn:
		w.Header().Set(WarningHeader, d.Message)
		WriteJSONResponse(w, http.StatusOK, body)
	default:
		WriteJSONResponse(w, http.StatusOK, body)
	}
}

func collectRows(rows *sql.Rows) ([]string, []map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out []map[string]interface{}
	for rows.Next() && len(out) < maxResultRows {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return cols, out, rows.Err()
}
