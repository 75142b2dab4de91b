// Package fakedrive is an in-memory fake of the Cloud Drive REST service for
// tests. It issues real HS256 JWTs, stores files per server (not per user),
// records every request, and can be told to fail specific routes.
package fakedrive

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
)

// Route names an endpoint for failure injection and request counting.
type Route string

const (
	RouteSignup   Route = "signup"
	RouteLogin    Route = "login"
	RouteList     Route = "list"
	RouteUpload   Route = "upload"
	RouteDownload Route = "download"
	RouteDelete   Route = "delete"
	RouteRename   Route = "rename"
	RouteContent  Route = "content"
	RouteUpdate   Route = "update"
)

// TokenTTL is the lifetime of issued access tokens.
const TokenTTL = 30 * time.Minute

// timestampLayout matches Python's datetime.isoformat() without offset.
const timestampLayout = "2006-01-02T15:04:05.000000"

// Request is one recorded request.
type Request struct {
	Route         Route
	Method        string
	Path          string
	Name          string // file name for per-file routes
	Authorization string
}

type failure struct {
	route  Route
	name   string // empty matches any name
	status int
}

type file struct {
	id         string
	data       []byte
	owner      string
	modifiedBy string
	createdAt  time.Time
	modifiedAt time.Time
}

// Server is a running fake. Create with New; it shuts down on test cleanup.
type Server struct {
	*httptest.Server

	key []byte
	now func() time.Time

	mu       sync.Mutex
	users    map[string]string
	files    map[string]*file
	nextID   int
	failures []failure
	requests []Request
	listHook func() // runs before a listing response is written
}

// New starts a fake server. It is closed automatically when t finishes.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		key:   []byte("fakedrive-signing-key"),
		now:   func() time.Time { return time.Now().UTC() },
		users: make(map[string]string),
		files: make(map[string]*file),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/token", s.handleLogin)
	mux.HandleFunc("GET /files", s.authed(RouteList, s.handleList))
	mux.HandleFunc("POST /files/upload", s.authed(RouteUpload, s.handleUpload))
	mux.HandleFunc("GET /files/download/{name}", s.authed(RouteDownload, s.handleDownload))
	mux.HandleFunc("DELETE /files/delete/{name}", s.authed(RouteDelete, s.handleDelete))
	mux.HandleFunc("PUT /files/rename/{name}", s.authed(RouteRename, s.handleRename))
	mux.HandleFunc("GET /files/content/{name}", s.authed(RouteContent, s.handleContent))
	mux.HandleFunc("PUT /files/update/{name}", s.authed(RouteUpdate, s.handleUpdate))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

// AddUser registers an account directly.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[username] = password
}

// PutFile stores a file directly, bypassing the API.
func (s *Server) PutFile(name string, data []byte, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.storeLocked(name, data, owner)
}

// File returns a stored file's bytes.
func (s *Server) File(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[name]
	if !ok {
		return nil, false
	}

	return append([]byte(nil), f.data...), true
}

// Names returns the stored file names, sorted.
func (s *Server) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedNamesLocked()
}

// Fail makes every request to route for name answer with status until
// ClearFailures. An empty name matches all names.
func (s *Server) Fail(route Route, name string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = append(s.failures, failure{route: route, name: name, status: status})
}

// ClearFailures removes all injected failures.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = nil
}

// OnList registers a hook that runs before each listing is served.
func (s *Server) OnList(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listHook = fn
}

// Requests returns a copy of all recorded requests.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Request(nil), s.requests...)
}

// Count returns how many requests hit route.
func (s *Server) Count(route Route) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, r := range s.requests {
		if r.Route == route {
			n++
		}
	}

	return n
}

// IssueToken signs an access token for subject valid for ttl. A zero ttl
// produces a token without an exp claim; a negative one an expired token.
func (s *Server) IssueToken(subject string, ttl time.Duration) string {
	claims := jwt.RegisteredClaims{Subject: subject}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(s.now().Add(ttl))
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		panic(fmt.Sprintf("fakedrive: signing token: %v", err))
	}

	return tok
}

func (s *Server) record(r *http.Request, route Route, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, Request{
		Route:         route,
		Method:        r.Method,
		Path:          r.URL.EscapedPath(),
		Name:          name,
		Authorization: r.Header.Get("Authorization"),
	})
}

func (s *Server) injected(route Route, name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.failures {
		if f.route == route && (f.name == "" || f.name == name) {
			return f.status
		}
	}

	return 0
}

// authed validates the bearer token, records the request, and applies
// injected failures before calling next.
func (s *Server) authed(route Route, next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		s.record(r, route, name)

		user, err := s.verify(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")

			return
		}

		if route == RouteUpload {
			name = uploadName(r)
		}

		if status := s.injected(route, name); status != 0 {
			writeDetail(w, status, "injected failure")
			return
		}

		next(w, r, user)
	}
}

func (s *Server) verify(header string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", errors.New("missing bearer token")
	}

	var claims jwt.RegisteredClaims

	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	_, known := s.users[claims.Subject]
	s.mu.Unlock()

	if !known {
		return "", errors.New("unknown user")
	}

	return claims.Subject, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	s.record(r, RouteSignup, "")

	if status := s.injected(RouteSignup, ""); status != 0 {
		writeDetail(w, status, "injected failure")
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	if len(strings.TrimSpace(req.Username)) < 3 || len(req.Password) < 6 {
		writeDetail(w, http.StatusBadRequest, "Username must be > 3 chars and password > 6 chars.")
		return
	}

	s.mu.Lock()
	_, exists := s.users[req.Username]
	if !exists {
		s.users[req.Username] = req.Password
	}
	s.mu.Unlock()

	if exists {
		writeDetail(w, http.StatusConflict, "Username already exists")
		return
	}

	s.writeToken(w, req.Username)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.record(r, RouteLogin, "")

	if status := s.injected(RouteLogin, ""); status != 0 {
		writeDetail(w, status, "injected failure")
		return
	}

	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "password" {
		writeDetail(w, http.StatusUnprocessableEntity, "unsupported grant")
		return
	}

	username := r.PostForm.Get("username")

	s.mu.Lock()
	want, ok := s.users[username]
	s.mu.Unlock()

	if !ok || want != r.PostForm.Get("password") {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")

		return
	}

	s.writeToken(w, username)
}

func (s *Server) writeToken(w http.ResponseWriter, subject string) {
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": s.IssueToken(subject, TokenTTL),
		"token_type":   "bearer",
	})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request, _ string) {
	s.mu.Lock()
	hook := s.listHook
	s.mu.Unlock()

	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]map[string]any, 0, len(s.files))

	for _, name := range s.sortedNamesLocked() {
		f := s.files[name]
		out = append(out, map[string]any{
			"id":                       f.id,
			"name":                     name,
			"size":                     len(f.data),
			"created_at":               f.createdAt.Format(timestampLayout),
			"modified_at":              f.modifiedAt.Format(timestampLayout),
			"uploaded_by":              f.owner,
			"last_modified_by":         f.modifiedBy,
			"file_type":                fileType(name),
			"is_supported_for_preview": previewable(name),
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user string) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "missing file field")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Could not save file.")
		return
	}

	s.mu.Lock()
	s.storeLocked(hdr.Filename, data, user)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"filename": hdr.Filename})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, _ string) {
	data, ok := s.File(r.PathValue("name"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, _ string) {
	name := r.PathValue("name")

	s.mu.Lock()
	_, ok := s.files[name]
	delete(s.files, name)
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "File not found or could not be deleted.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// handleRename keeps the original extension: report.txt + "summary" becomes
// summary.txt.
func (s *Server) handleRename(w http.ResponseWriter, r *http.Request, user string) {
	name := r.PathValue("name")

	var req struct {
		NewNameBase string `json:"new_name_base"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.NewNameBase) == "" {
		writeDetail(w, http.StatusBadRequest, "new_name_base is required")
		return
	}

	target := req.NewNameBase + path.Ext(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[name]
	if !ok {
		writeDetail(w, http.StatusNotFound, "File not found")
		return
	}

	if _, taken := s.files[target]; taken && target != name {
		writeDetail(w, http.StatusConflict, "A file with that name already exists")
		return
	}

	delete(s.files, name)
	f.modifiedBy = user
	f.modifiedAt = s.now()
	s.files[target] = f

	writeJSON(w, http.StatusOK, map[string]string{"new_name": target})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request, _ string) {
	name := r.PathValue("name")

	data, ok := s.File(name)
	if !ok {
		writeDetail(w, http.StatusNotFound, "File not found")
		return
	}

	if isBinary(name, data) {
		writeJSON(w, http.StatusOK, map[string]string{
			"content":  base64.StdEncoding.EncodeToString(data),
			"encoding": "base64",
		})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"content": string(data), "encoding": "utf-8"})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, user string) {
	name := r.PathValue("name")

	var req struct {
		Content string `json:"content"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "content is not valid base64")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[name]
	if !ok {
		writeDetail(w, http.StatusNotFound, "File not found")
		return
	}

	f.data = data
	f.modifiedBy = user
	f.modifiedAt = s.now()

	writeJSON(w, http.StatusOK, map[string]string{"message": "updated"})
}

func (s *Server) storeLocked(name string, data []byte, owner string) {
	now := s.now()

	if f, ok := s.files[name]; ok {
		f.data = append([]byte(nil), data...)
		f.modifiedBy = owner
		f.modifiedAt = now

		return
	}

	s.nextID++
	s.files[name] = &file{
		id:         fmt.Sprint(s.nextID),
		data:       append([]byte(nil), data...),
		owner:      owner,
		modifiedBy: owner,
		createdAt:  now,
		modifiedAt: now,
	}
}

func (s *Server) sortedNamesLocked() []string {
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// uploadName peeks at the multipart filename so failures can be injected
// per uploaded file.
func uploadName(r *http.Request) string {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return ""
	}

	if fhs := r.MultipartForm.File["file"]; len(fhs) > 0 {
		return fhs[0].Filename
	}

	return ""
}

func fileType(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}

	return "unknown"
}

func previewable(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".c", ".jpg", ".jpeg":
		return true
	default:
		return false
	}
}

func isBinary(name string, data []byte) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp":
		return true
	}

	return !utf8.Valid(data)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
