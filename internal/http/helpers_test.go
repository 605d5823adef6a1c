package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	html "github.com/gofiber/template/html/v2"
	"github.com/jmoiron/sqlx"

	"babyshop/internal/config"
	"babyshop/internal/http/handlers"
	applog "babyshop/internal/log"
	"babyshop/internal/repos"
	"babyshop/internal/services"
	"babyshop/internal/storage"
)

// 1x1 transparent PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

type testApp struct {
	app  *fiber.App
	deps *handlers.Deps
	db   *sqlx.DB
	cfg  config.Config
}

// newTestApp wires the real routes against an in-memory db and a temp bucket.
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := config.Defaults()
	cfg.DBDSN = ":memory:"
	cfg.MediaDir = t.TempDir()
	cfg.LogFile = ""
	cfg.MaxImageBytes = 64 << 10

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	bucket, err := storage.NewDiskBucket(cfg.MediaDir, cfg.Bucket, cfg.PublicBaseURL)
	if err != nil {
		t.Fatal(err)
	}
	auth, err := services.NewAuthService(cfg.AdminPassword, cfg.SessionTTL)
	if err != nil {
		t.Fatal(err)
	}
	deps := handlers.NewDeps(db, cfg, auth, bucket)
	engine := html.New("../../web/templates", ".html")
	return &testApp{app: handlers.NewApp(deps, engine, ""), deps: deps, db: db, cfg: cfg}
}

func (a *testApp) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := a.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	return resp
}

func (a *testApp) get(t *testing.T, path string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return a.do(t, req)
}

func cookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// csrf fetches a token from the login page.
func (a *testApp) csrf(t *testing.T) *http.Cookie {
	t.Helper()
	c := cookie(a.get(t, "/admin/login"), "csrf_")
	if c == nil || c.Value == "" {
		t.Fatal("csrf token missing")
	}
	return &http.Cookie{Name: "csrf_", Value: c.Value}
}

func (a *testApp) postForm(t *testing.T, path string, form url.Values, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return a.do(t, req)
}

// login returns the cookies an admin browser carries afterwards.
func (a *testApp) login(t *testing.T) []*http.Cookie {
	t.Helper()
	tok := a.csrf(t)
	resp := a.postForm(t, "/admin/login", url.Values{"csrf": {tok.Value}, "password": {a.cfg.AdminPassword}}, tok)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("login: want 302, got %d", resp.StatusCode)
	}
	sess := cookie(resp, handlers.SessionCookie)
	if sess == nil || sess.Value == "" {
		t.Fatal("no session cookie")
	}
	return []*http.Cookie{tok, {Name: handlers.SessionCookie, Value: sess.Value}}
}

func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		fw, err := w.CreateFormFile("image", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func (a *testApp) postMultipart(t *testing.T, path string, fields map[string]string, filename string, data []byte, cookies []*http.Cookie) *http.Response {
	t.Helper()
	for _, c := range cookies {
		if c.Name == "csrf_" {
			fields["csrf"] = c.Value
		}
	}
	body, ct := multipartBody(t, fields, filename, data)
	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", ct)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return a.do(t, req)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

type logEntry struct {
	Level  string         `json:"level"`
	Kind   string         `json:"kind"`
	Action string         `json:"action"`
	Fields map[string]any `json:"fields"`
}

type lockedWriter struct {
	mu sync.Mutex
	w  bytes.Buffer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// captureLogs collects the structured entries written while fn runs.
func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	lw := &lockedWriter{}
	restore := applog.SetOutput(lw)
	defer restore()

	fn()

	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(lw.w.String()), "\n") {
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func hasAction(entries []logEntry, action string) *logEntry {
	for i := range entries {
		if entries[i].Action == action {
			return &entries[i]
		}
	}
	return nil
}
