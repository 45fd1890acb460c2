package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/crystal-mush/gridscript/pkg/boltstore"
	"github.com/crystal-mush/gridscript/pkg/compiler"
	"github.com/crystal-mush/gridscript/pkg/fold"
	"github.com/crystal-mush/gridscript/pkg/tree"
)

// RegisterRESTRoutes registers all REST API endpoints on the web server's mux.
func (ws *WebServer) RegisterRESTRoutes() {
	ws.mux.Handle("POST /api/v1/resolve",
		authMiddleware(ws.auth, true, http.HandlerFunc(ws.handleResolve)))

	ws.mux.Handle("GET /api/v1/scripts",
		authMiddleware(ws.auth, true, http.HandlerFunc(ws.handleListScripts)))
	ws.mux.Handle("GET /api/v1/scripts/{name}",
		authMiddleware(ws.auth, true, http.HandlerFunc(ws.handleGetScript)))
	ws.mux.Handle("PUT /api/v1/scripts/{name}",
		authMiddleware(ws.auth, true, http.HandlerFunc(ws.handlePutScript)))
	ws.mux.Handle("DELETE /api/v1/scripts/{name}",
		authMiddleware(ws.auth, true, http.HandlerFunc(ws.handleDeleteScript)))

	ws.mux.Handle("GET /api/v1/diagnostics",
		authMiddleware(ws.auth, true, http.HandlerFunc(ws.handleDiagnostics)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encoding response: %v", err)
	}
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var d *compiler.Diagnostic
	switch {
	case errors.As(err, &d):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": d.Error(), "diagnostic": d})
	case errors.Is(err, ErrSourceTooLarge):
		http.Error(w, `{"error":"expression too large"}`, http.StatusRequestEntityTooLarge)
	case errors.Is(err, ErrForbidden):
		http.Error(w, `{"error":"permission denied"}`, http.StatusForbidden)
	case errors.Is(err, ErrBadScriptName):
		http.Error(w, `{"error":"invalid script name"}`, http.StatusBadRequest)
	case errors.Is(err, boltstore.ErrNotFound):
		http.Error(w, `{"error":"script not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrNoStore):
		http.Error(w, `{"error":"script storage not configured"}`, http.StatusServiceUnavailable)
	default:
		log.Printf("web: %v", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

// resultData is the JSON shape of a compilation shared by REST and WebSocket.
func resultData(res *compiler.Result, cached bool) map[string]any {
	data := map[string]any{
		"tree":        res.Tree.String(),
		"nodes":       res.Tree,
		"folded":      res.Folded,
		"grammar":     res.Grammar,
		"cached":      cached,
		"duration_us": res.Duration.Microseconds(),
	}
	if res.Value != nil {
		data["value"] = res.Value.String()
		data["kind"] = res.Value.Kind.String()
	}
	return data
}

// envFromJSON converts a decoded JSON object into evaluation bindings.
// Numbers without a fraction or exponent are integers; arrays of three or
// four numbers are vectors and rotations; other arrays are lists.
func envFromJSON(in map[string]any) (fold.Env, error) {
	env := make(fold.Env, len(in))
	for name, raw := range in {
		v, err := jsonValue(raw)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", name, err)
		}
		env[name] = v
	}
	return env, nil
}

func jsonValue(raw any) (tree.Value, error) {
	switch x := raw.(type) {
	case json.Number:
		return jsonNumber(x)
	case float64:
		return jsonNumber(json.Number(strconv.FormatFloat(x, 'g', -1, 64)))
	case string:
		return tree.String(x), nil
	case bool:
		if x {
			return tree.Integer(1), nil
		}
		return tree.Integer(0), nil
	case []any:
		if len(x) == 3 || len(x) == 4 {
			var f [4]float64
			ok := true
			for i, e := range x {
				v, err := jsonValue(e)
				if err != nil || !v.IsNumeric() {
					ok = false
					break
				}
				f[i] = v.AsFloat()
			}
			if ok && len(x) == 3 {
				return tree.Vector(f[0], f[1], f[2]), nil
			}
			if ok {
				return tree.Rotation(f[0], f[1], f[2], f[3]), nil
			}
		}
		list := tree.Value{Kind: tree.KindList, List: []tree.Value{}}
		for _, e := range x {
			v, err := jsonValue(e)
			if err != nil {
				return tree.Value{}, err
			}
			if v.Kind == tree.KindList {
				return tree.Value{}, fmt.Errorf("lists cannot contain lists")
			}
			list.List = append(list.List, v)
		}
		return list, nil
	default:
		return tree.Value{}, fmt.Errorf("unsupported value %v", raw)
	}
}

func jsonNumber(n json.Number) (tree.Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 32); err == nil {
			return tree.Integer(int32(i)), nil
		}
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) {
		return tree.Value{}, fmt.Errorf("bad number %s", s)
	}
	return tree.Float(f), nil
}

// --- Resolve ---

func (ws *WebServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Source string         `json:"source"`
		Script string         `json:"script"`
		Vars   []string       `json:"vars"`
		Env    map[string]any `json:"env"`
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	var (
		res    *compiler.Result
		cached bool
		err    error
	)
	if req.Env != nil {
		env, envErr := envFromJSON(req.Env)
		if envErr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": envErr.Error()})
			return
		}
		res, err = ws.svc.Eval(claims.Author, req.Source, env)
	} else {
		res, cached, err = ws.svc.Compile(claims.Author, req.Script, req.Source, req.Vars)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	data := resultData(res, cached)
	data["source"] = res.Source
	writeJSON(w, http.StatusOK, data)
}

// --- Scripts ---

type scriptJSON struct {
	Name    string   `json:"name"`
	Author  string   `json:"author"`
	Source  string   `json:"source"`
	Vars    []string `json:"vars,omitempty"`
	Updated string   `json:"updated"`
}

func toScriptJSON(sc *boltstore.Script) scriptJSON {
	return scriptJSON{
		Name:    sc.Name,
		Author:  sc.Author,
		Source:  sc.Source,
		Vars:    sc.Vars,
		Updated: sc.Updated.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func (ws *WebServer) handleListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := ws.svc.ListScripts(r.URL.Query().Get("author"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]scriptJSON, 0, len(scripts))
	for _, sc := range scripts {
		out = append(out, toScriptJSON(sc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, map[string]any{"scripts": out, "count": len(out)})
}

func (ws *WebServer) handleGetScript(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	sc, res, err := ws.svc.GetScript(claims.Author, r.PathValue("name"))
	if sc == nil {
		writeServiceError(w, err)
		return
	}
	body := map[string]any{"script": toScriptJSON(sc)}
	var d *compiler.Diagnostic
	switch {
	case res != nil:
		body["result"] = resultData(res, false)
	case errors.As(err, &d):
		body["diagnostic"] = d
	}
	writeJSON(w, http.StatusOK, body)
}

func (ws *WebServer) handlePutScript(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	var req struct {
		Source string   `json:"source"`
		Vars   []string `json:"vars"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	store := ws.svc.Store()
	if store == nil {
		writeServiceError(w, ErrNoStore)
		return
	}
	name := r.PathValue("name")
	_, existsErr := store.GetScript(name)
	sc, res, err := ws.svc.SaveScript(claims.Author, claims.Admin, name, req.Source, req.Vars)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if errors.Is(existsErr, boltstore.ErrNotFound) {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"script": toScriptJSON(sc), "result": resultData(res, false)})
}

func (ws *WebServer) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if err := ws.svc.DeleteScript(claims.Author, claims.Admin, r.PathValue("name")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Diagnostics ---

// handleDiagnostics returns the caller's recent diagnostics. Admins may pass
// all=1 to see every author's.
func (ws *WebServer) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	limit := atoi(r.URL.Query().Get("limit"), 50)
	if limit > 500 {
		limit = 500
	}
	author := claims.Author
	if claims.Admin && r.URL.Query().Get("all") == "1" {
		author = ""
	}
	recs, err := ws.svc.Diagnostics(author, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if recs == nil {
		recs = []DiagRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"diagnostics": recs})
}
