package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/volunteer-hours-api/internal/models"
	"github.com/noah-isme/volunteer-hours-api/pkg/jobs"
	"github.com/noah-isme/volunteer-hours-api/pkg/messaging"
)

type eventPublisher interface {
	Publish(ctx context.Context, msg messaging.Message) error
}

// NotificationConfig tunes the notification worker pool.
type NotificationConfig struct {
	Enabled    bool
	Topic      string
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// NotificationService hands committed domain events to the external sink.
// Notify never blocks the caller; a full buffer drops the event.
type NotificationService struct {
	publisher eventPublisher
	queue     *jobs.Queue
	topic     string
	enabled   bool
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationService constructs the service and its worker queue.
func NewNotificationService(publisher eventPublisher, cfg NotificationConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Topic == "" {
		cfg.Topic = "volunteer.events"
	}
	svc := &NotificationService{
		publisher: publisher,
		topic:     cfg.Topic,
		enabled:   cfg.Enabled && publisher != nil,
		metrics:   metrics,
		logger:    logger,
	}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop halts the workers. Buffered events are dropped.
func (s *NotificationService) Stop() {
	if s == nil || !s.enabled {
		return
	}
	s.queue.Stop()
}

// Notify schedules delivery of event. Failures are logged and never returned.
func (s *NotificationService) Notify(ctx context.Context, event models.Event) {
	if s == nil || !s.enabled {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	err := s.queue.TryEnqueue(jobs.Job{Type: string(event.Type), Payload: event})
	if err == nil {
		return
	}
	s.metrics.RecordNotification(string(event.Type), NotificationDropped)
	fields := []zap.Field{
		zap.String("type", string(event.Type)),
		zap.String("activity_id", event.ActivityID),
		zap.String("subject_id", event.SubjectID),
		zap.Error(err),
	}
	if errors.Is(err, jobs.ErrQueueFull) {
		s.logger.Warn("notification buffer full, event dropped", fields...)
		return
	}
	s.logger.Warn("notification queue unavailable, event dropped", fields...)
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.Event)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("encode notification", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	msg := messaging.Message{
		Topic:      s.topic,
		Key:        event.Key(),
		Type:       string(event.Type),
		Value:      payload,
		OccurredAt: event.OccurredAt,
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.metrics.RecordNotification(string(event.Type), NotificationFailed)
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	s.metrics.RecordNotification(string(event.Type), NotificationPublished)
	return nil
}
