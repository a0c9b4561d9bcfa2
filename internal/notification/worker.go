package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"lab-booking-backend/internal/mailer"
	"lab-booking-backend/internal/model"
	"lab-booking-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Recipients looks up who hears about new requests.
type Recipients interface {
	ListAdminEmails(ctx context.Context) ([]string, error)
	ListAdminSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint, username string) error
}

// Recorder counts notification results per channel.
type Recorder interface {
	ObserveNotification(channel, result string)
}

// Job is one new request to announce to the admins.
type Job struct {
	Request model.Request
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size       int
	jobs       chan Job
	recipients Recipients
	mailer     mailer.Mailer
	webpush    *webpush.Options
	sender     NotificationSender
	recorder   Recorder
	logger     *zap.Logger
}

// NewWorkerPool creates a new worker pool. A nil webpushOptions disables
// push delivery; recorder may be nil.
func NewWorkerPool(size, queueSize int, recipients Recipients, m mailer.Mailer, webpushOptions *webpush.Options, recorder Recorder, logger *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &WorkerPool{
		size:       size,
		jobs:       make(chan Job, queueSize),
		recipients: recipients,
		mailer:     m,
		webpush:    webpushOptions,
		sender:     &WebPushSender{}, // Use the real sender by default
		recorder:   recorder,
		logger:     logger.Named("notification"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Debug("worker started", zap.Int("worker", id))
	for {
		select {
		case job := <-wp.jobs:
			wp.logger.Debug("processing request", zap.Int("worker", id), zap.Int64("request_id", job.Request.ID))
			wp.announce(ctx, job)
		case <-ctx.Done():
			wp.logger.Debug("worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues a job without blocking. It reports false when the queue
// is full and the job was dropped.
func (wp *WorkerPool) Dispatch(job Job) bool {
	select {
	case wp.jobs <- job:
		return true
	default:
		wp.logger.Warn("notification queue full, dropping job", zap.Int64("request_id", job.Request.ID))
		wp.observe("queue", "dropped")
		return false
	}
}

// NotifyRequestCreated queues an announcement for a new request.
func (wp *WorkerPool) NotifyRequestCreated(req model.Request) {
	wp.Dispatch(Job{Request: req})
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

func (wp *WorkerPool) observe(channel, result string) {
	if wp.recorder != nil {
		wp.recorder.ObserveNotification(channel, result)
	}
}

func subject(req model.Request) string {
	return fmt.Sprintf("New slot request for %s", req.RoomName)
}

func body(req model.Request) string {
	return fmt.Sprintf("%s requested %s on %s at %s.\n\nDescription: %s",
		req.Username, req.RoomName, req.Day, req.Time, req.Description)
}

// announce mails every admin and pushes to every admin subscription.
func (wp *WorkerPool) announce(ctx context.Context, job Job) {
	req := job.Request

	emails, err := wp.recipients.ListAdminEmails(ctx)
	if err != nil {
		wp.logger.Error("failed to list admin emails", zap.Error(err))
	} else if len(emails) > 0 {
		if err := wp.mailer.Send(ctx, emails, subject(req), body(req)); err != nil {
			wp.logger.Error("failed to mail admins", zap.Int64("request_id", req.ID), zap.Error(err))
			wp.observe("email", "error")
		} else {
			wp.observe("email", "sent")
		}
	}

	if wp.webpush == nil {
		return
	}
	subs, err := wp.recipients.ListAdminSubscriptions(ctx)
	if err != nil {
		wp.logger.Error("failed to list admin subscriptions", zap.Error(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"title": subject(req),
		"body":  fmt.Sprintf("%s requested %s at %s", req.Username, req.Day, req.Time),
	})
	if err != nil {
		wp.logger.Error("failed to encode push payload", zap.Error(err))
		return
	}
	wp.logger.Debug("sending push notifications", zap.Int("count", len(subs)))
	for _, sub := range subs {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Warn("failed to send push", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		wp.observe("push", "error")
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.logger.Info("subscription expired, deleting", zap.String("endpoint", sub.Endpoint))
		wp.observe("push", "expired")
		err := wp.recipients.DeleteSubscription(ctx, sub.Endpoint, "")
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			wp.logger.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
		return
	}
	wp.observe("push", "sent")
}
