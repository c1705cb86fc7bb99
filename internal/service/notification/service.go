package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/cyntientops/field-sync/internal/channel"
	"github.com/cyntientops/field-sync/internal/model"
	"github.com/cyntientops/field-sync/internal/repository"
	"github.com/cyntientops/field-sync/pkg/circuitbreaker"
	apperrors "github.com/cyntientops/field-sync/pkg/errors"
	"github.com/cyntientops/field-sync/pkg/logger"
	"github.com/cyntientops/field-sync/pkg/metrics"
)

type Config struct {
	BatchSize          int
	PreferenceCacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.PreferenceCacheTTL <= 0 {
		c.PreferenceCacheTTL = time.Minute
	}
	return c
}

// CreateRequest is a producer's notification intent.
type CreateRequest struct {
	Type      model.NotificationType
	Priority  model.Priority
	Title     string
	Message   string
	Data      json.RawMessage
	UserID    string
	UserRole  string
	ExpiresAt *time.Time
	Actions   []model.NotificationAction
	Category  *string
	Sound     bool
	Vibration bool
	Badge     bool
}

// Service decides, per user and notification, whether/when/how to deliver.
// Notifications the preference gate holds back stay undelivered in the
// store; the periodic processor re-evaluates them until they deliver or
// expire.
type Service struct {
	repo     repository.NotificationRepository
	prefs    repository.PreferenceRepository
	channels map[string]channel.Channel
	breakers map[string]*circuitbreaker.CircuitBreaker
	cache    *gocache.Cache
	logger   *logger.Logger
	metrics  *metrics.Metrics
	cfg      Config

	flushing atomic.Bool
	nowFn    func() time.Time
}

func NewService(
	repo repository.NotificationRepository,
	prefs repository.PreferenceRepository,
	channels []channel.Channel,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	cfg = cfg.withDefaults()

	byName := make(map[string]channel.Channel, len(channels))
	breakers := make(map[string]*circuitbreaker.CircuitBreaker, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
		breakers[ch.Name()] = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "channel-" + ch.Name(),
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		})
	}

	return &Service{
		repo:     repo,
		prefs:    prefs,
		channels: byName,
		breakers: breakers,
		cache:    gocache.New(cfg.PreferenceCacheTTL, 2*cfg.PreferenceCacheTTL),
		logger:   log,
		metrics:  m,
		cfg:      cfg,
		nowFn:    time.Now,
	}
}

// Create persists the notification and either delivers it immediately or
// leaves it for the deferred processor. Channel failures never fail the
// call.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Notification, error) {
	if !model.ValidNotificationType(req.Type) {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid notification type %q", req.Type), nil)
	}
	if !req.Priority.Valid() {
		req.Priority = model.PriorityMedium
	}
	if req.Title == "" || req.Message == "" {
		return nil, apperrors.BadRequest("title and message are required", nil)
	}
	if req.UserID == "" {
		return nil, apperrors.BadRequest("user_id is required", nil)
	}

	var actions json.RawMessage
	if len(req.Actions) > 0 {
		encoded, err := json.Marshal(req.Actions)
		if err != nil {
			return nil, apperrors.BadRequest("invalid actions", err)
		}
		actions = encoded
	}

	now := s.nowFn()
	n := &model.Notification{
		ID:        uuid.New(),
		Type:      req.Type,
		Priority:  req.Priority,
		Title:     req.Title,
		Message:   req.Message,
		Data:      req.Data,
		UserID:    req.UserID,
		UserRole:  req.UserRole,
		Timestamp: now,
		Read:      false,
		Delivered: false,
		ExpiresAt: req.ExpiresAt,
		Actions:   actions,
		Category:  req.Category,
		Sound:     req.Sound,
		Vibration: req.Vibration,
		Badge:     req.Badge,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	s.metrics.NotificationsCreated.WithLabelValues(string(n.Type), string(n.Priority)).Inc()

	prefs, err := s.Preferences(ctx, n.UserID, n.UserRole)
	if err != nil {
		s.logger.Error(err, "failed to load preferences, deferring delivery",
			"notification_id", n.ID.String())
		return n, nil
	}

	if s.shouldDeliver(prefs, n, now) {
		s.deliver(ctx, prefs, n)
	} else {
		s.metrics.NotificationsDeferred.Inc()
		s.logger.Debug("notification deferred by preference gate",
			"notification_id", n.ID.String(), "user_id", n.UserID)
	}
	return n, nil
}

// shouldDeliver is the preference gate: master switch, per-type and
// per-priority opt-outs, then quiet hours with the critical exception.
func (s *Service) shouldDeliver(prefs *model.NotificationPreferences, n *model.Notification, now time.Time) bool {
	if prefs == nil || !prefs.Enabled {
		return false
	}
	if enabled, ok := prefs.Types[n.Type]; ok && !enabled {
		return false
	}
	if enabled, ok := prefs.Priorities[n.Priority]; ok && !enabled {
		return false
	}
	if prefs.QuietHours.Enabled && n.Priority != model.PriorityCritical {
		if inQuietHours(prefs.QuietHours, now) {
			return false
		}
	}
	return true
}

// inQuietHours evaluates the window in the user's timezone. Windows may
// span midnight ("22:00"–"07:00"); comparison is on minute-of-day with a
// half-open interval.
func inQuietHours(qh model.QuietHours, now time.Time) bool {
	start, ok := parseMinutes(qh.Start)
	if !ok {
		return false
	}
	end, ok := parseMinutes(qh.End)
	if !ok {
		return false
	}

	local := now
	if qh.Timezone != "" {
		if loc, err := time.LoadLocation(qh.Timezone); err == nil {
			local = now.In(loc)
		}
	}
	minute := local.Hour()*60 + local.Minute()

	if start <= end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

func parseMinutes(hhmm string) (int, bool) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// deliver attempts every enabled channel and then marks the notification
// delivered. Delivered means attempted, not acknowledged; individual
// channel failures are logged and counted, never propagated.
func (s *Service) deliver(ctx context.Context, prefs *model.NotificationPreferences, n *model.Notification) {
	attempted := false
	for name, ch := range s.channels {
		if enabled, ok := prefs.Channels[name]; !ok || !enabled {
			continue
		}
		attempted = true

		err := s.breakers[name].Execute(func() error {
			return ch.Send(ctx, n)
		})
		s.metrics.NotificationsDelivered.WithLabelValues(name).Inc()
		if err != nil {
			s.metrics.ChannelFailures.WithLabelValues(name).Inc()
			s.logger.Error(err, "channel delivery failed",
				"notification_id", n.ID.String(), "channel", name)
		}
	}

	if !attempted {
		// No channel enabled: nothing will ever attempt this notification,
		// so mark it delivered rather than re-evaluating it forever.
		s.logger.Debug("no delivery channel enabled",
			"notification_id", n.ID.String(), "user_id", n.UserID)
	}

	if err := s.repo.MarkDelivered(ctx, n.ID); err != nil {
		s.logger.Error(err, "failed to mark notification delivered",
			"notification_id", n.ID.String())
		return
	}
	n.Delivered = true
}

// ProcessDeferred is the periodic flush: it re-evaluates undelivered,
// unexpired notifications (delivering the ones whose gate now passes, for
// instance after quiet hours end) and purges expired rows. At most one
// flush runs per process.
func (s *Service) ProcessDeferred(ctx context.Context) error {
	if !s.flushing.CompareAndSwap(false, true) {
		return nil
	}
	defer s.flushing.Store(false)

	now := s.nowFn()
	if purged, err := s.repo.DeleteExpired(ctx, now); err != nil {
		s.logger.Error(err, "failed to purge expired notifications")
	} else if purged > 0 {
		s.logger.Debug("purged expired notifications", "count", purged)
	}

	pending, err := s.repo.ListUndelivered(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list undelivered notifications: %w", err)
	}

	for _, n := range pending {
		prefs, err := s.Preferences(ctx, n.UserID, n.UserRole)
		if err != nil {
			s.logger.Error(err, "failed to load preferences",
				"notification_id", n.ID.String())
			continue
		}
		if s.shouldDeliver(prefs, n, now) {
			s.deliver(ctx, prefs, n)
		}
	}
	return nil
}

// Preferences returns the stored record or the documented default when
// none exists. Results are cached briefly; updates invalidate.
func (s *Service) Preferences(ctx context.Context, userID, userRole string) (*model.NotificationPreferences, error) {
	if cached, ok := s.cache.Get(userID); ok {
		return cached.(*model.NotificationPreferences), nil
	}

	prefs, err := s.prefs.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		prefs = model.DefaultPreferences(userID, userRole)
	}
	s.cache.SetDefault(userID, prefs)
	return prefs, nil
}

func (s *Service) UpdatePreferences(ctx context.Context, prefs *model.NotificationPreferences) error {
	if prefs == nil || prefs.UserID == "" {
		return apperrors.BadRequest("user_id is required", nil)
	}
	if err := s.prefs.Upsert(ctx, prefs); err != nil {
		return err
	}
	s.cache.Delete(prefs.UserID)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		return apperrors.NotFound("notification", nil)
	}
	return s.repo.MarkRead(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}
