package internal

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lab-booking-backend/config"
	"lab-booking-backend/internal/account"
	"lab-booking-backend/internal/api"
	"lab-booking-backend/internal/db"
	"lab-booking-backend/internal/labfiles"
	"lab-booking-backend/internal/metrics"
	"lab-booking-backend/internal/model"
	"lab-booking-backend/internal/notification"
	"lab-booking-backend/internal/otp"
	"lab-booking-backend/internal/store"
	"lab-booking-backend/internal/workflow"
)

type sentMail struct {
	to      []string
	subject string
	body    string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *captureMailer) Send(_ context.Context, to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *captureMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

// browserKeys returns a p256dh/auth pair like a browser subscription has.
func browserKeys(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

func call(t *testing.T, router http.Handler, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

// TestRequestLifecycle drives a slot from request to approval through the
// HTTP API and checks the admin notifications and metrics it produces.
func TestRequestLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Test Setup ---
	gormDB, err := db.Init(&config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:", LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	appStore := store.NewGormStore(gormDB)

	var pushes atomic.Int32
	pushServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer pushServer.Close()

	vapidPrivate, vapidPublic, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  vapidPublic,
		VAPIDPrivateKey: vapidPrivate,
		Subscriber:      "mailto:admin@example.com",
		TTL:             60,
	}

	m := metrics.New(config.MetricsConfig{Namespace: "labbook"})
	mail := &captureMailer{}
	pool := notification.NewWorkerPool(2, 16, appStore, mail, webpushOptions, m, zap.NewNop())
	pool.Start(ctx)

	tokens, err := account.NewTokenService("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	otpSvc := otp.NewService(otp.NewMemoryStore(time.Minute), nil, config.OTPConfig{TTL: time.Minute, VerifiedTTL: time.Minute}, zap.NewNop())
	accounts := account.NewService(appStore, tokens, otpSvc, config.AuthConfig{BcryptCost: 4}, zap.NewNop())
	require.NoError(t, accounts.EnsureAdmin(ctx, config.BootstrapAdmin{Username: "root1", Password: "Root#Pass123", Email: "root@example.com"}))

	cfg := &config.Config{
		Server: config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 60},
		OTP:    config.OTPConfig{RateLimitPerMin: 60},
	}
	router := api.NewRouter(cfg, api.Deps{
		Engine:        workflow.NewEngine(appStore, pool, m, zap.NewNop()),
		Accounts:      accounts,
		OTP:           otpSvc,
		Labs:          labfiles.NewService(appStore, t.TempDir(), 1<<20, zap.NewNop()),
		Subscriptions: appStore,
		WebPush:       webpushOptions,
		Logger:        zap.NewNop(),
	}, m)

	for _, name := range []string{"alice01", "bob0001"} {
		_, err := accounts.Register(ctx, account.RegisterInput{
			Username: name, Password: "Secret#Pass1", Email: name + "@example.com", Phone: "0600000000",
		})
		require.NoError(t, err)
	}
	login := func(username, password string) string {
		code, body := call(t, router, http.MethodPost, "/api/auth/login", "", gin.H{"username": username, "password": password})
		require.Equal(t, http.StatusOK, code, body)
		return body["session_token"].(string)
	}
	alice := login("alice01", "Secret#Pass1")
	bob := login("bob0001", "Secret#Pass1")
	admin := login("root1", "Root#Pass123")

	p256dh, auth := browserKeys(t)
	code, _ := call(t, router, http.MethodPut, "/api/subscriptions", admin, gin.H{
		"endpoint": pushServer.URL + "/push/admin", "p256dh": p256dh, "auth": auth,
	})
	require.Equal(t, http.StatusCreated, code)

	slot := gin.H{"day": "Fri", "time": "10:00", "room_name": "Lab1", "description": "robotics demo"}
	key := store.SlotKey{Day: "Fri", Time: "10:00", Room: "Lab1"}

	// --- Cycle 1: a request is submitted and the admins are told ---
	t.Run("Cycle 1: Request Notifies Admins", func(t *testing.T) {
		code, body := call(t, router, http.MethodPost, "/api/requests/toggle", alice, slot)
		require.Equal(t, http.StatusOK, code, body)
		assert.Equal(t, "Request submitted", body["message"])

		require.Eventually(t, func() bool { return mail.count() == 1 }, 2*time.Second, 10*time.Millisecond)
		sent := mail.last()
		assert.Equal(t, []string{"root@example.com"}, sent.to)
		assert.Equal(t, "New slot request for Lab1", sent.subject)
		assert.Contains(t, sent.body, "alice01 requested Lab1 on Fri at 10:00")

		// The push service answers 410, so the subscription is dropped.
		require.Eventually(t, func() bool {
			_, err := appStore.GetSubscription(ctx, pushServer.URL+"/push/admin")
			return errors.Is(err, store.ErrNotFound)
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, int32(1), pushes.Load())

		code, body = call(t, router, http.MethodPost, "/api/requests/toggle", bob, slot)
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "Slot already has a pending request from another user", body["error"])
	})

	// --- Cycle 2: approval books the slot and clears competitors ---
	t.Run("Cycle 2: Approval Books Slot", func(t *testing.T) {
		// A competing request left over from before the slot was contested.
		competitor := &model.Request{Username: "bob0001", Day: "Fri", Time: "10:00", RoomName: "Lab1", Description: "late entry"}
		require.NoError(t, appStore.CreateRequest(ctx, competitor))

		first, err := appStore.FindRequestForSlot(ctx, key)
		require.NoError(t, err)
		require.Equal(t, "alice01", first.Username)

		code, body := call(t, router, http.MethodPost, fmt.Sprintf("/api/requests/%d/decision", first.ID), admin, gin.H{"action": "approve"})
		require.Equal(t, http.StatusOK, code, body)
		assert.Equal(t, "Request approved and 1 other request(s) for this slot were automatically rejected", body["message"])
		assert.Equal(t, float64(1), body["auto_rejected"])

		code, body = call(t, router, http.MethodPost, fmt.Sprintf("/api/requests/%d/decision", competitor.ID), admin, gin.H{"action": "reject"})
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "Request not found", body["error"])

		code, body = call(t, router, http.MethodGet, "/api/slots/state?day=Fri&time=10:00&room_name=Lab1", "", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "booked", body["state"])

		code, body = call(t, router, http.MethodPost, "/api/bookings/toggle", bob, slot)
		assert.Equal(t, http.StatusConflict, code)
		assert.Equal(t, "Slot booked by another user", body["error"])
	})

	// --- Cycle 3: the outcomes are visible as metrics ---
	t.Run("Cycle 3: Metrics Exposed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		out := w.Body.String()
		assert.Contains(t, out, `labbook_workflow_operations_total{operation="toggle_request",result="ok"} 1`)
		assert.Contains(t, out, `labbook_workflow_operations_total{operation="toggle_request",result="slot_contested"} 1`)
		assert.Contains(t, out, `labbook_workflow_operations_total{operation="decide_request",result="ok"} 1`)
		assert.Contains(t, out, `labbook_notifications_total{channel="email",result="sent"} 1`)
		assert.Contains(t, out, `labbook_notifications_total{channel="push",result="expired"} 1`)
		assert.Contains(t, out, `labbook_http_requests_total{method="POST",route="/api/bookings/toggle",status="409"} 1`)
	})
}
