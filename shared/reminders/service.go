package reminders

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"rentacar/internal/bizdate"
	"rentacar/internal/events"
	"rentacar/internal/metrics"
)

// Config holds configuration for the reminder service.
type Config struct {
	// CheckInterval is how often upcoming handovers are scanned.
	// Default: 15 minutes.
	CheckInterval time.Duration

	// LeadTime is how long before a pickup or return the reminder goes out.
	// Default: 24 hours.
	LeadTime time.Duration

	// MaxConcurrent limits parallel publishes. Default: 10.
	MaxConcurrent int

	// RatePerSecond and Burst pace publishing. Default: 20/s, burst 30.
	RatePerSecond float64
	Burst         int

	Retry RetryConfig

	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Service publishes pickup and return reminders for confirmed reservations.
type Service struct {
	config    Config
	store     Store
	publisher Publisher
	limiter   *rate.Limiter
	logger    Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewService(config Config, store Store, publisher Publisher, logger Logger) *Service {
	if config.CheckInterval <= 0 {
		config.CheckInterval = 15 * time.Minute
	}
	if config.LeadTime <= 0 {
		config.LeadTime = 24 * time.Hour
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 20
	}
	if config.Burst <= 0 {
		config.Burst = 30
	}
	if config.Retry.MaxRetries == 0 && len(config.Retry.RetryDelays) == 0 {
		config.Retry = DefaultRetryConfig()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Service{
		config:    config,
		store:     store,
		publisher: publisher,
		limiter:   rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst),
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the reminder check loop.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop()

	s.info("Reminder service started",
		"check_interval", s.config.CheckInterval.String(),
		"lead_time", s.config.LeadTime.String(),
	)
}

// Stop gracefully stops the reminder service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.info("Reminder service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	s.check(ctx)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Service) check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if _, err := s.CheckNow(ctx); err != nil {
		s.fail("Failed to check handovers", "error", err)
	}
}

// Due returns the handovers falling within (now, now+LeadTime] that have
// not been reminded yet.
func (s *Service) Due(ctx context.Context) ([]Handover, error) {
	now := s.config.Now()
	horizon := now.Add(s.config.LeadTime)

	reservations, err := s.store.ListConfirmedHandovers(ctx, bizdate.DayOf(now), bizdate.DayOf(horizon))
	if err != nil {
		return nil, err
	}

	var due []Handover
	for _, r := range reservations {
		candidates := []Handover{
			{Kind: KindPickup, At: r.Start, Place: r.PickupPlace, Reservation: r},
			{Kind: KindReturn, At: r.End, Place: r.ReturnPlace, Reservation: r},
		}
		for _, h := range candidates {
			if !h.At.After(now) || h.At.After(horizon) {
				continue
			}
			sent, err := s.store.ReminderSent(ctx, r.ID, string(h.Kind), h.At)
			if err != nil {
				return nil, err
			}
			if !sent {
				due = append(due, h)
			}
		}
	}
	return due, nil
}

// CheckNow publishes every due reminder and returns how many went out.
func (s *Service) CheckNow(ctx context.Context) (int, error) {
	due, err := s.Due(ctx)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}
	s.debug("Found handovers to remind", "count", len(due))

	var sent atomic.Int64
	sem := make(chan struct{}, s.config.MaxConcurrent)
	var wg sync.WaitGroup

	for _, h := range due {
		wg.Add(1)
		sem <- struct{}{}

		go func(h Handover) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.send(ctx, h); err != nil {
				metrics.IncReminder(string(h.Kind), "failed")
				s.fail("Failed to send reminder",
					"reservation_id", h.Reservation.ID,
					"kind", string(h.Kind),
					"error", err,
				)
				return
			}
			metrics.IncReminder(string(h.Kind), "sent")
			sent.Add(1)
		}(h)
	}

	wg.Wait()
	return int(sent.Load()), nil
}

func (s *Service) send(ctx context.Context, h Handover) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	eventType := events.PickupDue
	if h.Kind == KindReturn {
		eventType = events.ReturnDue
	}
	r := h.Reservation
	payload := events.HandoverPayload{
		ReservationID: r.ID,
		OrderNumber:   r.OrderNumber,
		VehicleID:     r.VehicleID,
		At:            h.At,
		Place:         h.Place,
		ClientName:    r.Client.Name,
		ClientPhone:   r.Client.Phone,
		ClientEmail:   r.Client.Email,
		Messaging:     r.Client.Messaging,
	}
	if err := withRetry(ctx, s.config.Retry, func() error {
		return s.publisher.PublishJSON(eventType, payload)
	}); err != nil {
		return err
	}

	if err := s.store.MarkReminderSent(ctx, r.ID, string(h.Kind), h.At); err != nil {
		// the event is out; a failed mark only risks a duplicate next round
		s.fail("Failed to mark reminder as sent",
			"reservation_id", r.ID,
			"error", err,
		)
	}

	s.info("Reminder sent",
		"reservation_id", r.ID,
		"order_number", r.OrderNumber,
		"kind", string(h.Kind),
	)
	return nil
}

func (s *Service) info(msg string, fields ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, fields...)
	}
}

func (s *Service) fail(msg string, fields ...interface{}) {
	if s.logger != nil {
		s.logger.Error(msg, fields...)
	}
}

func (s *Service) debug(msg string, fields ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, fields...)
	}
}
