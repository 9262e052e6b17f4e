package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"photo-gallery/internal/events"
	"photo-gallery/internal/storage"
)

// HandlersTestSuite drives the routes through a real server with a cookie jar
type HandlersTestSuite struct {
	suite.Suite
	db     *storage.DB
	h      *Handlers
	server *httptest.Server
	client *http.Client
}

// SetupTest runs before each test
func (suite *HandlersTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	h, err := NewHandlers(db, nil, Options{TemplateDir: "../../web/templates"})
	require.NoError(suite.T(), err)
	suite.h = h

	suite.server = httptest.NewServer(h.Routes())
	suite.client = suite.newClient()
}

// TearDownTest runs after each test
func (suite *HandlersTestSuite) TearDownTest() {
	suite.server.Close()
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *HandlersTestSuite) newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(suite.T(), err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (suite *HandlersTestSuite) get(c *http.Client, path string) (*http.Response, string) {
	resp, err := c.Get(suite.server.URL + path)
	require.NoError(suite.T(), err)
	return resp, readBody(suite.T(), resp)
}

func (suite *HandlersTestSuite) post(c *http.Client, path string, form url.Values) (*http.Response, string) {
	resp, err := c.PostForm(suite.server.URL+path, form)
	require.NoError(suite.T(), err)
	return resp, readBody(suite.T(), resp)
}

func (suite *HandlersTestSuite) upload(c *http.Client, path string, fields map[string]string, img []byte) (*http.Response, string) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(suite.T(), mw.WriteField(k, v))
	}
	if img != nil {
		fw, err := mw.CreateFormFile("photo", "photo.png")
		require.NoError(suite.T(), err)
		_, err = fw.Write(img)
		require.NoError(suite.T(), err)
	}
	require.NoError(suite.T(), mw.Close())

	resp, err := c.Post(suite.server.URL+path, mw.FormDataContentType(), &body)
	require.NoError(suite.T(), err)
	return resp, readBody(suite.T(), resp)
}

func (suite *HandlersTestSuite) register(c *http.Client, email string) {
	resp, _ := suite.post(c, "/register", url.Values{
		"name":             {"Ann"},
		"email":            {email},
		"password":         {"secret"},
		"confirm_password": {"secret"},
	})
	require.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	require.Equal(suite.T(), "/dashboard", resp.Header.Get("Location"))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(y * 10), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var photoIDPattern = regexp.MustCompile(`data-id="([^"]+)"`)

func photoIDs(body string) []string {
	var ids []string
	for _, m := range photoIDPattern.FindAllStringSubmatch(body, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

func (suite *HandlersTestSuite) TestGuardRedirectsWithoutSession() {
	resp, _ := suite.get(suite.client, "/dashboard")
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/login", resp.Header.Get("Location"))

	resp, _ = suite.get(suite.client, "/")
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/login", resp.Header.Get("Location"))

	resp, body := suite.get(suite.client, "/login")
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, `class="login-form"`)

	n, err := suite.db.ClientCount()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, n, "the cookie jar should keep one client")
}

func (suite *HandlersTestSuite) TestRegisterStartsSession() {
	suite.register(suite.client, "ann@example.com")

	resp, body := suite.get(suite.client, "/dashboard")
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "Ann's photos")
	assert.Contains(suite.T(), body, "No photos yet.")

	resp, _ = suite.get(suite.client, "/login")
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/dashboard", resp.Header.Get("Location"))

	resp, _ = suite.get(suite.client, "/")
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/dashboard", resp.Header.Get("Location"))
}

func (suite *HandlersTestSuite) TestRegisterErrors() {
	_, body := suite.post(suite.client, "/register", url.Values{
		"email":            {"ann@example.com"},
		"password":         {"secret"},
		"confirm_password": {"other"},
	})
	assert.Contains(suite.T(), body, "passwords do not match")
	assert.Contains(suite.T(), body, `value="ann@example.com"`)

	suite.register(suite.client, "ann@example.com")
	resp, _ := suite.post(suite.client, "/logout", nil)
	assert.Equal(suite.T(), "/login", resp.Header.Get("Location"))

	resp, body = suite.post(suite.client, "/register", url.Values{
		"email":            {"ann@example.com"},
		"password":         {"x"},
		"confirm_password": {"x"},
	})
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, "email already exists")
}

func (suite *HandlersTestSuite) TestLoginLogout() {
	suite.register(suite.client, "ann@example.com")
	suite.post(suite.client, "/logout", nil)

	resp, _ := suite.get(suite.client, "/dashboard")
	assert.Equal(suite.T(), "/login", resp.Header.Get("Location"))

	_, body := suite.post(suite.client, "/login", url.Values{"email": {"ann@example.com"}, "password": {"wrong"}})
	assert.Contains(suite.T(), body, "invalid credentials")

	resp, _ = suite.post(suite.client, "/login", url.Values{"email": {"ann@example.com"}, "password": {"secret"}})
	assert.Equal(suite.T(), http.StatusFound, resp.StatusCode)
	assert.Equal(suite.T(), "/dashboard", resp.Header.Get("Location"))

	resp, _ = suite.get(suite.client, "/dashboard")
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
}

func (suite *HandlersTestSuite) TestClientsAreIsolated() {
	suite.register(suite.client, "ann@example.com")

	// Another browser has its own store, so the account does not exist there.
	other := suite.newClient()
	_, body := suite.post(other, "/login", url.Values{"email": {"ann@example.com"}, "password": {"secret"}})
	assert.Contains(suite.T(), body, "invalid credentials")
}

func (suite *HandlersTestSuite) TestPhotoLifecycle() {
	suite.register(suite.client, "ann@example.com")
	img := testPNG(suite.T())

	resp, _ := suite.upload(suite.client, "/photos", map[string]string{
		"title":       "Sunset",
		"description": "Over the bay",
		"category":    "Nature",
	}, img)
	require.Equal(suite.T(), http.StatusSeeOther, resp.StatusCode)

	_, body := suite.get(suite.client, "/dashboard")
	ids := photoIDs(body)
	require.Len(suite.T(), ids, 1)
	id := ids[0]
	assert.Contains(suite.T(), body, "Sunset")
	assert.Contains(suite.T(), body, "Nature (1, 100%)")

	resp, thumb := suite.get(suite.client, "/photos/"+id+"/thumbnail")
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(suite.T(), "image/jpeg", resp.Header.Get("Content-Type"))
	assert.NotEmpty(suite.T(), thumb)

	resp, original := suite.get(suite.client, "/photos/"+id+"/image")
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(suite.T(), "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(suite.T(), string(img), original)

	resp, body = suite.get(suite.client, "/photos/"+id+"/edit")
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Contains(suite.T(), body, `value="Sunset"`)

	resp, _ = suite.post(suite.client, "/photos/"+id, url.Values{"title": {"Dusk"}, "category": {"Travel"}})
	assert.Equal(suite.T(), http.StatusSeeOther, resp.StatusCode)

	_, body = suite.get(suite.client, "/dashboard?category=Travel")
	assert.Contains(suite.T(), body, "Dusk")
	assert.Contains(suite.T(), body, "Over the bay", "empty fields keep their values")
	assert.Len(suite.T(), photoIDs(body), 1)

	_, body = suite.get(suite.client, "/dashboard?category=Nature")
	assert.Empty(suite.T(), photoIDs(body))

	resp, _ = suite.post(suite.client, "/photos/"+id+"/delete", nil)
	assert.Equal(suite.T(), http.StatusSeeOther, resp.StatusCode)

	_, body = suite.get(suite.client, "/dashboard")
	assert.Empty(suite.T(), photoIDs(body))

	resp, _ = suite.get(suite.client, "/photos/"+id+"/image")
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)
}

func (suite *HandlersTestSuite) TestUploadErrors() {
	suite.register(suite.client, "ann@example.com")

	resp, body := suite.upload(suite.client, "/photos", map[string]string{"category": "Nature"}, nil)
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
	assert.Contains(suite.T(), body, "Please choose a photo to upload")

	resp, body = suite.upload(suite.client, "/photos", map[string]string{"category": "Cars"}, testPNG(suite.T()))
	assert.Equal(suite.T(), http.StatusBadRequest, resp.StatusCode)
	assert.Contains(suite.T(), body, "invalid category")

	_, body = suite.get(suite.client, "/dashboard")
	assert.Empty(suite.T(), photoIDs(body))
}

func (suite *HandlersTestSuite) TestUpdateUnknownPhoto() {
	suite.register(suite.client, "ann@example.com")

	resp, _ := suite.post(suite.client, "/photos/missing", url.Values{"title": {"x"}})
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)

	resp, _ = suite.get(suite.client, "/photos/missing/edit")
	assert.Equal(suite.T(), http.StatusNotFound, resp.StatusCode)

	resp, _ = suite.post(suite.client, "/photos/missing/delete", nil)
	assert.Equal(suite.T(), http.StatusSeeOther, resp.StatusCode, "deleting an unknown id is a no-op")
}

func (suite *HandlersTestSuite) TestPagesRenderWithLayout() {
	req, err := http.NewRequest(http.MethodGet, suite.server.URL+"/login", http.NoBody)
	require.NoError(suite.T(), err)
	req.Header.Set("HX-Request", "true")

	resp, err := suite.client.Do(req)
	require.NoError(suite.T(), err)
	body := readBody(suite.T(), resp)

	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(suite.T(), "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(suite.T(), body, "<html")
	assert.Contains(suite.T(), body, `class="login-form"`)
	assert.Contains(suite.T(), body, `/static/app.js`)
}

func (suite *HandlersTestSuite) TestEventsDisabledWithoutHub() {
	w := httptest.NewRecorder()
	suite.h.Events(w, httptest.NewRequest(http.MethodGet, "/events", http.NoBody))
	assert.Equal(suite.T(), http.StatusNotFound, w.Code, "events are disabled without a hub")
}

func (suite *HandlersTestSuite) TestEventsStreamStoreChanges() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := events.NewHub()
	go hub.Run(ctx)

	h, err := NewHandlers(suite.db, hub, Options{TemplateDir: "../../web/templates"})
	require.NoError(suite.T(), err)
	server := httptest.NewServer(h.Routes())
	defer server.Close()
	suite.server.Close()
	suite.server = server

	suite.register(suite.client, "ann@example.com")

	u, err := url.Parse(server.URL)
	require.NoError(suite.T(), err)
	cookies := suite.client.Jar.Cookies(u)
	require.NotEmpty(suite.T(), cookies)

	header := http.Header{}
	header.Set("Cookie", cookies[0].Name+"="+cookies[0].Value)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/events", header)
	require.NoError(suite.T(), err)
	defer conn.Close()

	ns := storage.ClientNamespace(cookies[0].Value)
	require.Eventually(suite.T(), func() bool { return hub.ClientCount(ns) == 1 }, time.Second, 10*time.Millisecond)

	suite.post(suite.client, "/logout", nil)

	require.NoError(suite.T(), conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(suite.T(), err)

	var ev events.Event
	require.NoError(suite.T(), json.Unmarshal(msg, &ev))
	assert.Equal(suite.T(), storage.KeyCurrentUser, ev.Key)
	assert.True(suite.T(), ev.Removed)

	// A different browser cannot subscribe with a made-up client.
	header.Set("Cookie", ClientCookieName+"=forged")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/events", header)
	assert.Error(suite.T(), err)
	require.NotNil(suite.T(), resp)
	assert.Equal(suite.T(), http.StatusUnauthorized, resp.StatusCode)
}

func (suite *HandlersTestSuite) lockCount() int {
	n := 0
	suite.h.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (suite *HandlersTestSuite) TestCleanupDropsClientLocks() {
	suite.get(suite.client, "/login")
	suite.get(suite.newClient(), "/login")
	require.Equal(suite.T(), 2, suite.lockCount())

	u, err := url.Parse(suite.server.URL)
	require.NoError(suite.T(), err)
	cookies := suite.client.Jar.Cookies(u)
	require.NotEmpty(suite.T(), cookies)
	require.NoError(suite.T(), suite.db.RenewClient(cookies[0].Value, time.Now().Add(-time.Hour)))

	n, err := suite.h.CleanExpiredClients()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, n)
	assert.Equal(suite.T(), 1, suite.lockCount(), "only the live client keeps its lock")

	count, err := suite.db.ClientCount()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)
}

// Test suite runner
func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
