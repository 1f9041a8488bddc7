package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio/portfolio/config"
	"github.com/folio/portfolio/storage"
	"github.com/folio/portfolio/utils"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []utils.Mail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, m utils.Mail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return f.err
}

func (f *fakeMailer) calls() []utils.Mail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]utils.Mail(nil), f.sent...)
}

type testServer struct {
	engine *gin.Engine
	store  *storage.Store
	mailer *fakeMailer
	cfg    config.AppConfig
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>home</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(static, "admin.html"), []byte("<h1>admin</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(static, "style.css"), []byte("body{}"), 0o644))

	cfg := config.AppConfig{
		AppPort:          "3000",
		GinMode:          "test",
		AllowedOrigins:   []string{"*"},
		StaticDir:        static,
		StorageRoot:      t.TempDir(),
		MaxUploadMB:      10,
		SiteName:         "Test Portfolio",
		ContactRecipient: "owner@example.com",
	}
	store := storage.New(cfg.StorageRoot)
	require.NoError(t, store.Init())
	mailer := &fakeMailer{}

	return &testServer{
		engine: SetupRouter(cfg, store, mailer),
		store:  store,
		mailer: mailer,
		cfg:    cfg,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

type filePart struct {
	field, filename, contentType string
	data                         []byte
}

func multipartRequest(t *testing.T, target string, parts ...filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, p.field, p.filename))
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func (s *testServer) dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(s.cfg.StorageRoot, dir))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestUpload_Gallery(t *testing.T) {
	s := newTestServer(t)
	data := []byte("\x89PNG fake image bytes")

	w := s.do(multipartRequest(t, "/api/upload", filePart{"image", "cat.png", "image/png", data}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Image uploaded successfully", body["message"])
	filename := body["filename"].(string)
	assert.Equal(t, "/uploads/"+filename, body["imageUrl"])

	onDisk, err := os.ReadFile(filepath.Join(s.cfg.StorageRoot, "uploads", filename))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	// and it is served back unchanged
	get := s.do(httptest.NewRequest(http.MethodGet, body["imageUrl"].(string), nil))
	require.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, data, get.Body.Bytes())
}

func TestUpload_Profile(t *testing.T) {
	s := newTestServer(t)

	w := s.do(multipartRequest(t, "/api/upload-profile", filePart{"profile", "me.JPG", "image/jpeg", []byte("jpeg")}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Profile picture uploaded successfully", body["message"])
	filename := body["filename"].(string)
	assert.True(t, strings.HasPrefix(filename, "profile-"))
	assert.True(t, strings.HasSuffix(filename, ".JPG"))
	assert.Equal(t, "/profile/"+filename, body["profileUrl"])
	assert.Empty(t, s.dirNames(t, "uploads"))

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode(t, w)["profile"].(map[string]any)
	assert.Equal(t, filename, profile["filename"])
	assert.Equal(t, "/profile/"+filename, profile["url"])
	assert.NotEmpty(t, profile["uploadedAt"])
}

func TestUpload_NewProfileBecomesCurrent(t *testing.T) {
	s := newTestServer(t)

	var last string
	for i := 0; i < 3; i++ {
		if i > 0 {
			// names carry the upload millisecond
			time.Sleep(2 * time.Millisecond)
		}
		w := s.do(multipartRequest(t, "/api/upload-profile", filePart{"profile", "me.png", "image/png", []byte{byte(i)}}))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		last = decode(t, w)["filename"].(string)

		w = s.do(httptest.NewRequest(http.MethodGet, "/api/profile", nil))
		require.Equal(t, http.StatusOK, w.Code)
		profile := decode(t, w)["profile"].(map[string]any)
		assert.Equal(t, last, profile["filename"], "upload %d", i)
	}
	assert.Len(t, s.dirNames(t, "profile"), 3)
}

func TestUpload_RejectsNonImage(t *testing.T) {
	s := newTestServer(t)

	for _, target := range []string{"/api/upload", "/api/upload-profile"} {
		field := "image"
		if target == "/api/upload-profile" {
			field = "profile"
		}
		w := s.do(multipartRequest(t, target, filePart{field, "notes.txt", "text/plain", []byte("hello")}))
		require.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Only image files are allowed!", body["message"])
	}
	assert.Empty(t, s.dirNames(t, "uploads"))
	assert.Empty(t, s.dirNames(t, "profile"))
}

func TestUpload_SameNameTwice(t *testing.T) {
	s := newTestServer(t)

	var names []string
	for i := 0; i < 2; i++ {
		w := s.do(multipartRequest(t, "/api/upload", filePart{"image", "same.png", "image/png", []byte{byte(i)}}))
		require.Equal(t, http.StatusOK, w.Code)
		names = append(names, decode(t, w)["filename"].(string))
	}
	assert.NotEqual(t, names[0], names[1])
	assert.Len(t, s.dirNames(t, "uploads"), 2)
}

func TestUpload_TooLarge(t *testing.T) {
	s := newTestServer(t)
	big := bytes.Repeat([]byte{0xff}, 20<<20)

	w := s.do(multipartRequest(t, "/api/upload", filePart{"image", "huge.jpg", "image/jpeg", big}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File too large. Maximum size is 10MB", decode(t, w)["message"])
	assert.Empty(t, s.dirNames(t, "uploads"))
}

func TestUpload_NoFile(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodPost, "/api/upload", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No image file provided", decode(t, w)["message"])

	w = s.do(multipartRequest(t, "/api/upload-profile"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No profile image provided", decode(t, w)["message"])
}

func TestUpload_WrongField(t *testing.T) {
	s := newTestServer(t)

	w := s.do(multipartRequest(t, "/api/upload", filePart{"profile", "me.png", "image/png", []byte("x")}))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.dirNames(t, "uploads"))
	assert.Empty(t, s.dirNames(t, "profile"))
}

func TestUpload_SecondFileRollsBack(t *testing.T) {
	s := newTestServer(t)

	w := s.do(multipartRequest(t, "/api/upload",
		filePart{"image", "a.png", "image/png", []byte("a")},
		filePart{"image", "b.png", "image/png", []byte("b")},
	))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, s.dirNames(t, "uploads"))
}

func TestImages_EmptyGallery(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/images", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"images":[]}`, w.Body.String())
}

func TestImages_MissingDirectory(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, os.RemoveAll(filepath.Join(s.cfg.StorageRoot, "uploads")))

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/images", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"images":[]}`, w.Body.String())
}

func TestProfile_NoneIsNull(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"profile":null}`, w.Body.String())
}

func TestDelete_ThenList(t *testing.T) {
	s := newTestServer(t)
	w := s.do(multipartRequest(t, "/api/upload", filePart{"image", "bye.png", "image/png", []byte("x")}))
	require.Equal(t, http.StatusOK, w.Code)
	filename := decode(t, w)["filename"].(string)

	w = s.do(httptest.NewRequest(http.MethodDelete, "/api/images/"+filename, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Image deleted successfully", decode(t, w)["message"])

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/images", nil))
	assert.NotContains(t, w.Body.String(), filename)
}

func TestDelete_NotFoundLeavesDirectory(t *testing.T) {
	s := newTestServer(t)
	w := s.do(multipartRequest(t, "/api/upload", filePart{"image", "keep.png", "image/png", []byte("x")}))
	require.Equal(t, http.StatusOK, w.Code)
	before := s.dirNames(t, "uploads")

	w = s.do(httptest.NewRequest(http.MethodDelete, "/api/images/missing.png", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Image not found", body["message"])
	assert.Equal(t, before, s.dirNames(t, "uploads"))

	w = s.do(httptest.NewRequest(http.MethodDelete, "/api/profile/missing.png", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Profile picture not found", decode(t, w)["message"])
}

func TestDelete_Profile(t *testing.T) {
	s := newTestServer(t)
	w := s.do(multipartRequest(t, "/api/upload-profile", filePart{"profile", "me.png", "image/png", []byte("x")}))
	require.Equal(t, http.StatusOK, w.Code)
	filename := decode(t, w)["filename"].(string)

	w = s.do(httptest.NewRequest(http.MethodDelete, "/api/profile/"+filename, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Profile picture deleted successfully", decode(t, w)["message"])

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	assert.JSONEq(t, `{"profile":null}`, w.Body.String())
}

func TestDelete_RejectsTraversal(t *testing.T) {
	s := newTestServer(t)
	secret := filepath.Join(s.cfg.StorageRoot, "secret.png")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0o644))

	w := s.do(httptest.NewRequest(http.MethodDelete, "/api/images/..%5Csecret.png", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid filename", decode(t, w)["message"])
	assert.FileExists(t, secret)
}

func TestContact_Success(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`{"name":"A","email":"a@x.com","message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true,"message":"Thank you for your message! I will get back to you soon."}`, w.Body.String())

	sent := s.mailer.calls()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Subject, "Portfolio Contact:")
	assert.Equal(t, "Portfolio Contact: New Message", sent[0].Subject)
	assert.Equal(t, "owner@example.com", sent[0].To)
	assert.Equal(t, "a@x.com", sent[0].ReplyTo)
	assert.Contains(t, sent[0].HTMLBody, "No subject")
	assert.Contains(t, sent[0].HTMLBody, "Sent from Test Portfolio")
}

func TestContact_FormEncoded(t *testing.T) {
	s := newTestServer(t)
	form := url.Values{"name": {"B"}, "email": {"b@x.com"}, "subject": {"Hello"}, "message": {"yo"}}

	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := s.do(req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sent := s.mailer.calls()
	require.Len(t, sent, 1)
	assert.Equal(t, "Portfolio Contact: Hello", sent[0].Subject)
}

func TestContact_ForwardsTextAsSubmitted(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`{"name":"A","email":"a@x.com","subject":"  Hello ","message":"  indented\ntext  "}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sent := s.mailer.calls()
	require.Len(t, sent, 1)
	assert.Equal(t, "Portfolio Contact:   Hello ", sent[0].Subject)
	assert.Contains(t, sent[0].HTMLBody, "<p>  indented<br>text  </p>")
}

func TestContact_MissingFields(t *testing.T) {
	s := newTestServer(t)

	for _, payload := range []string{
		`{"name":"A","message":"hi"}`,
		`{"email":"a@x.com","message":"hi"}`,
		`{"name":"A","email":"a@x.com"}`,
		`{"name":"  ","email":"a@x.com","message":"hi"}`,
		`not json`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		w := s.do(req)

		require.Equal(t, http.StatusBadRequest, w.Code, payload)
		assert.JSONEq(t, `{"success":false,"message":"Name, email, and message are required"}`, w.Body.String())
	}
	assert.Empty(t, s.mailer.calls())
}

func TestContact_RelayFailure(t *testing.T) {
	s := newTestServer(t)
	s.mailer.err = errors.New("535 authentication failed")

	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(`{"name":"A","email":"a@x.com","message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Failed to send message. Please try again later."}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "535")
}

func TestPages(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "home")

	w = s.do(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin")

	w = s.do(httptest.NewRequest(http.MethodGet, "/style.css", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "body{}", w.Body.String())
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t)

	for _, target := range []string{"/nope", "/api/nope", "/uploads/missing.png", "/../../etc/passwd"} {
		w := s.do(httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusNotFound, w.Code, target)
	}

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.JSONEq(t, `{"success":false,"message":"Route not found"}`, w.Body.String())
}

func TestRecovery(t *testing.T) {
	s := newTestServer(t)
	s.engine.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := s.do(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"Something went wrong!"}`, w.Body.String())
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
