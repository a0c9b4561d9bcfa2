package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lab-booking-backend/config"
	"lab-booking-backend/internal/account"
	"lab-booking-backend/internal/db"
	"lab-booking-backend/internal/labfiles"
	"lab-booking-backend/internal/otp"
	"lab-booking-backend/internal/store"
	"lab-booking-backend/internal/workflow"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "0123456789abcdef0123456789abcdef"

var bootstrap = config.BootstrapAdmin{Username: "root1", Password: "Root#Pass123", Email: "root@example.com"}

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *captureSender) SendOTP(_ context.Context, to, code string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[to] = code
	return nil
}

func (s *captureSender) code(to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[to]
}

type testServer struct {
	router *gin.Engine
	sender *captureSender
	store  store.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gormDB, err := db.Init(&config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:", LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	s := store.NewGormStore(gormDB)

	sender := &captureSender{codes: map[string]string{}}
	otpSvc := otp.NewService(otp.NewMemoryStore(time.Minute), sender,
		config.OTPConfig{TTL: 5 * time.Minute, VerifiedTTL: 15 * time.Minute}, zap.NewNop())

	tokens, err := account.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	accounts := account.NewService(s, tokens, otpSvc,
		config.AuthConfig{BcryptCost: 4, RequireEmailVerification: true}, zap.NewNop())
	require.NoError(t, accounts.EnsureAdmin(context.Background(), bootstrap))

	cfg := &config.Config{
		Server: config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 60},
		OTP:    config.OTPConfig{RateLimitPerMin: 600},
	}
	router := NewRouter(cfg, Deps{
		Engine:        workflow.NewEngine(s, nil, nil, zap.NewNop()),
		Accounts:      accounts,
		OTP:           otpSvc,
		Labs:          labfiles.NewService(s, t.TempDir(), 1<<20, zap.NewNop()),
		Subscriptions: s,
		Logger:        zap.NewNop(),
	}, nil)

	return &testServer{router: router, sender: sender, store: s}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// signup verifies the address with an OTP, registers the user and logs in.
func (ts *testServer) signup(t *testing.T, username string) string {
	t.Helper()
	email := username + "@example.com"

	w := ts.do(t, http.MethodPost, "/api/otp/send", "", gin.H{"email": email})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = ts.do(t, http.MethodPost, "/api/otp/verify", "", gin.H{"email": email, "otp": ts.sender.code(email)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": username, "password": "Secret#Pass1", "email": email, "phone": "0600000000",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return ts.login(t, username, "Secret#Pass1")
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token, _ := decode(t, w)["session_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "carol01", "password": "Secret#Pass1", "email": "carol@example.com", "phone": "0600000000",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Email address has not been verified.", decode(t, w)["error"])

	token := ts.signup(t, "alice01")

	w = ts.do(t, http.MethodPost, "/api/session/verify", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "alice01", body["username"])
	assert.Equal(t, "user", body["role"])

	// A second login invalidates the first token.
	second := ts.login(t, "alice01", "Secret#Pass1")
	w = ts.do(t, http.MethodPost, "/api/session/verify", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/auth/change_password", second, gin.H{
		"current_password": "wrong-one", "new_password": "Another#Pass2",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Current password is incorrect", decode(t, w)["error"])

	w = ts.do(t, http.MethodPost, "/api/auth/change_password", second, gin.H{
		"current_password": "Secret#Pass1", "new_password": "Another#Pass2",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Password updated successfully. Please log in again.", decode(t, w)["message"])

	w = ts.do(t, http.MethodPost, "/api/session/verify", second, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	third := ts.login(t, "alice01", "Another#Pass2")
	w = ts.do(t, http.MethodPost, "/api/auth/logout", third, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, http.MethodPost, "/api/auth/logout", third, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"username": "alice01", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid username or password", decode(t, w)["error"])
}

func TestOTPErrors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/otp/send", "", gin.H{"email": "not-an-address"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid email format", decode(t, w)["error"])

	w = ts.do(t, http.MethodPost, "/api/otp/verify", "", gin.H{"email": "x@example.com", "otp": "123456"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid or expired OTP", decode(t, w)["error"])
}

func TestBookingScenario(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice01")
	bob := ts.signup(t, "bob0001")
	slot := gin.H{"day": "Mon", "time": "10:00", "room_name": "Lab1"}

	w := ts.do(t, http.MethodPost, "/api/bookings/toggle", alice, slot)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Slot booked", decode(t, w)["message"])

	w = ts.do(t, http.MethodPost, "/api/bookings/toggle", bob, slot)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Slot booked by another user", decode(t, w)["error"])

	w = ts.do(t, http.MethodGet, "/api/slots/state?day=Mon&time=10:00&room_name=Lab1", "", nil)
	assert.Equal(t, "booked", decode(t, w)["state"])

	w = ts.do(t, http.MethodGet, "/api/bookings?room_name=Lab1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"bookings":[{"day":"Mon","time":"10:00","username":"alice01","description":""}],"deactivations":[]}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/bookings/toggle", alice, slot)
	assert.Equal(t, "Booking removed", decode(t, w)["message"])

	w = ts.do(t, http.MethodPost, "/api/bookings/toggle", "", slot)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/api/bookings/toggle", alice, gin.H{"day": "Mon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields", decode(t, w)["error"])

	w = ts.do(t, http.MethodGet, "/api/bookings", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice01")
	admin := ts.login(t, bootstrap.Username, bootstrap.Password)
	slot := gin.H{"day": "Tue", "time": "09:00", "room_name": "Lab1"}

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{name: "toggle deactivation", method: http.MethodPost, path: "/api/deactivations/toggle", body: slot},
		{name: "remove booking", method: http.MethodPost, path: "/api/bookings/remove", body: slot},
		{name: "list requests", method: http.MethodGet, path: "/api/requests?room_name=Lab1"},
		{name: "decide request", method: http.MethodPost, path: "/api/requests/1/decision", body: gin.H{"action": "approve"}},
		{name: "admin emails", method: http.MethodGet, path: "/api/admins/emails"},
		{name: "add lab", method: http.MethodPost, path: "/api/labs", body: gin.H{"name": "Lab9"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := ts.do(t, tc.method, tc.path, alice, tc.body)
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, "Admin access required", decode(t, w)["error"])
		})
	}

	w := ts.do(t, http.MethodGet, "/api/admins/emails", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"emails":["root@example.com"]}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/deactivations/toggle", admin, slot)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Slot deactivated successfully","state":"deactivated"}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/bookings/toggle", alice, slot)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Slot is deactivated", decode(t, w)["error"])

	w = ts.do(t, http.MethodPost, "/api/bookings/remove", admin, slot)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No booking found for this slot", decode(t, w)["error"])
}

func TestRequestApprovalFlow(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice01")
	bob := ts.signup(t, "bob0001")
	admin := ts.login(t, bootstrap.Username, bootstrap.Password)

	w := ts.do(t, http.MethodPost, "/api/requests/toggle", alice, gin.H{
		"day": "Wed", "time": "14:00", "room_name": "Lab1", "description": "thesis run",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"Request submitted","state":"requested"}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/requests/toggle", bob, gin.H{
		"day": "Wed", "time": "14:00", "room_name": "Lab1", "description": "lab class",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Slot already has a pending request from another user", decode(t, w)["error"])

	w = ts.do(t, http.MethodPost, "/api/requests/toggle", bob, gin.H{
		"day": "Wed", "time": "15:00", "room_name": "Lab1", "description": "a",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Description must contain at least 2 characters", decode(t, w)["error"])

	w = ts.do(t, http.MethodGet, "/api/requests?room_name=Lab1", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []workflow.PendingRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "alice01", pending[0].Username)
	assert.Equal(t, 0, pending[0].CompetingRequests)

	path := fmt.Sprintf("/api/requests/%d/decision", pending[0].ID)
	w = ts.do(t, http.MethodPost, path, admin, gin.H{"action": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid action", decode(t, w)["error"])

	w = ts.do(t, http.MethodPost, path, admin, gin.H{"action": "approve"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Request approved and slot booked", body["message"])
	assert.Equal(t, float64(0), body["auto_rejected"])

	w = ts.do(t, http.MethodPost, path, admin, gin.H{"action": "reject"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Request not found", decode(t, w)["error"])

	w = ts.do(t, http.MethodPost, "/api/requests/abc/decision", admin, gin.H{"action": "approve"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/slots/state?day=Wed&time=14:00&room_name=Lab1", "", nil)
	assert.Equal(t, "booked", decode(t, w)["state"])
}

func TestBatchAndCancelRequests(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.signup(t, "alice01")

	w := ts.do(t, http.MethodPost, "/api/requests/batch", alice, gin.H{
		"room_name":   "Lab2",
		"description": "weekly seminar",
		"slots": []gin.H{
			{"day": "Thu", "time": "08:00"},
			{"day": "Thu", "time": "08:00"},
			{"day": "", "time": "09:00"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Results []workflow.BatchOutcome `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Results, 3)
	assert.True(t, out.Results[0].Success)
	assert.Equal(t, "Request already pending", out.Results[1].Error)
	assert.Equal(t, "Missing required fields", out.Results[2].Error)

	slot := gin.H{"day": "Thu", "time": "08:00", "room_name": "Lab2"}
	w = ts.do(t, http.MethodPost, "/api/requests/cancel", alice, slot)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Request cancelled successfully", decode(t, w)["message"])

	w = ts.do(t, http.MethodPost, "/api/requests/cancel", alice, slot)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Request not found or not authorized to cancel", decode(t, w)["error"])
}

func multipartBody(t *testing.T, field, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	fw, err := mpw.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mpw.Close())
	return &buf, mpw.FormDataContentType()
}

func TestLabsAndFiles(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, bootstrap.Username, bootstrap.Password)

	w := ts.do(t, http.MethodGet, "/api/labs", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/labs", "", nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = ts.do(t, http.MethodPost, "/api/labs", admin, gin.H{"name": "Lab1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/labs", admin, gin.H{"name": "Lab1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodGet, "/api/labs", "", nil)
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.JSONEq(t, `["Lab1"]`, w.Body.String())

	upload := func(fileName string, content []byte) *httptest.ResponseRecorder {
		body, contentType := multipartBody(t, "file", fileName, content)
		req := httptest.NewRequest(http.MethodPost, "/api/labs/Lab1/files", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+admin)
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)
		return rec
	}

	w = upload("notes.txt", []byte("Safety rules for Lab1.\n"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = upload("other.txt", []byte("second file\n"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Only one file is allowed at a time.", decode(t, w)["error"])

	w = ts.do(t, http.MethodGet, "/api/labs/Lab1/files", "", nil)
	assert.JSONEq(t, `["notes.txt"]`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/labs/Lab1/files/notes.txt", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Safety rules for Lab1.\n", w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/labs/Lab1/files/notes.txt", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/labs/Lab1/files/notes.txt", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/labs/Nope/files", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Lab not found", decode(t, w)["error"])
}

func TestHealthzAndVAPID(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/vapid_public_key", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
