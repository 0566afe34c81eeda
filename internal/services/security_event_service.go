package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/bazaarly/kernel/backend/internal/fingerprint"
	"github.com/bazaarly/kernel/backend/internal/geo"
	"github.com/bazaarly/kernel/backend/internal/logger"
	"github.com/bazaarly/kernel/backend/internal/metrics"
	"github.com/bazaarly/kernel/backend/internal/models"
	"github.com/bazaarly/kernel/backend/internal/util"
)

const (
	defaultEventLimit = 200
	maxEventLimit     = 1000
	summaryTopN       = 15
	maxUserAgentLen   = 512
	maxPathLen        = 512
)

// Localhost filter modes for ListEvents.
const (
	LocalhostInclude = "include"
	LocalhostExclude = "exclude"
	LocalhostOnly    = "only"
)

// EventInput is what a producer knows about a security-relevant request. IP must already
// be normalized with fingerprint.ClientIP.
type EventInput struct {
	Type        models.EventType
	Severity    models.Severity
	RequestID   string
	Method      string
	Path        string
	StatusCode  int
	IP          string
	UserAgent   string
	CookieSeed  string
	Fingerprint string
	UserID      string
	UserType    string
	Role        string
	Metadata    models.EventMetadata
	Extra       map[string]interface{}
	At          time.Time
}

// EventQuery filters ListEvents.
type EventQuery struct {
	Days      int
	Limit     int
	Type      models.EventType
	Localhost string
}

// Bucket is one group of a summary breakdown.
type Bucket struct {
	Key   string `json:"key" gorm:"column:bucket"`
	Count int    `json:"count" gorm:"column:total"`
}

// SecuritySummary is the operator dashboard overview over a number of days.
type SecuritySummary struct {
	Days            int      `json:"days"`
	Total           int64    `json:"total"`
	BySeverity      []Bucket `json:"by_severity"`
	ByType          []Bucket `json:"by_type"`
	TopCountries    []Bucket `json:"top_countries"`
	TopIPs          []Bucket `json:"top_ips"`
	TopFingerprints []Bucket `json:"top_fingerprints"`
	MigrationNeeded bool     `json:"migration_needed"`
}

// SecurityEventService persists security events and serves the read side of the ledger.
type SecurityEventService struct {
	db      *gorm.DB
	schema  *SchemaState
	locator geo.Locator
	wg      sync.WaitGroup
	pending chan struct{}
	now     func() time.Time
	log     *logrus.Entry
}

// NewSecurityEventService builds the recorder. A nil locator disables geo enrichment.
func NewSecurityEventService(db *gorm.DB, schema *SchemaState, locator geo.Locator) *SecurityEventService {
	if locator == nil {
		locator = geo.NopLocator{}
	}
	return &SecurityEventService{
		db:      db,
		schema:  schema,
		locator: locator,
		pending: make(chan struct{}, MaxPendingEvents),
		now:     time.Now,
		log:     logger.Component("recorder"),
	}
}

// MaxPendingEvents caps background writes in flight. Events beyond it are dropped and
// counted rather than queued.
const MaxPendingEvents = 256

// LogEvent records in the background. It never blocks on storage and never reports
// failure to the caller; failures are logged and counted. When MaxPendingEvents writes
// are already in flight the event is dropped.
func (s *SecurityEventService) LogEvent(in EventInput) {
	if in.At.IsZero() {
		in.At = s.now()
	}
	select {
	case s.pending <- struct{}{}:
	default:
		metrics.IncSecurityEventDropped()
		s.log.WithField("event_type", in.Type).Debug("recorder saturated, dropping security event")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.pending }()
		defer func() {
			if r := recover(); r != nil {
				metrics.IncSecurityEventWriteFailure()
				s.log.WithField("event_type", in.Type).Errorf("panic recording security event: %v", r)
			}
		}()
		if _, err := s.Record(context.Background(), in); err != nil {
			metrics.IncSecurityEventWriteFailure()
			s.log.WithFields(logrus.Fields{
				"event_type": in.Type,
				"ip":         in.IP,
				"path":       util.SanitizeForLog(in.Path),
			}).WithError(err).Warn("failed to record security event")
		}
	}()
}

// Wait blocks until every LogEvent issued so far has finished.
func (s *SecurityEventService) Wait() {
	s.wg.Wait()
}

// Record enriches and writes one event synchronously.
func (s *SecurityEventService) Record(ctx context.Context, in EventInput) (*models.SecurityEvent, error) {
	if in.Type == "" {
		return nil, fmt.Errorf("record security event: event type is required")
	}
	if !s.schema.EventsReady() {
		return nil, ErrMigrationNeeded
	}
	ev := s.build(in)
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, fmt.Errorf("insert security event: %w", err)
	}
	metrics.IncSecurityEvent(string(ev.EventType), string(ev.Severity))
	return ev, nil
}

func (s *SecurityEventService) build(in EventInput) *models.SecurityEvent {
	at := in.At
	if at.IsZero() {
		at = s.now()
	}
	sev := in.Severity
	if !sev.Valid() {
		sev = in.Type.DefaultSeverity()
	}
	ip := fingerprint.NormalizeIP(in.IP)
	ua := util.Truncate(in.UserAgent, maxUserAgentLen)

	fp := models.StringPtr(in.Fingerprint)
	if fp == nil {
		fp = fingerprint.Ptr(ip, in.UserAgent, in.CookieSeed)
	}

	ev := &models.SecurityEvent{
		CreatedAt:   at.UTC(),
		EventType:   in.Type,
		Severity:    sev,
		RequestID:   in.RequestID,
		Method:      in.Method,
		Path:        util.Truncate(util.StripQuery(in.Path), maxPathLen),
		StatusCode:  in.StatusCode,
		IP:          models.StringPtr(ip),
		UserAgent:   models.StringPtr(ua),
		Fingerprint: fp,
		UserID:      models.StringPtr(in.UserID),
		UserType:    in.UserType,
		Role:        in.Role,
		Metadata:    models.MergeMetadata(in.Metadata, in.Extra),
	}
	if loc, ok := s.locator.Lookup(ip); ok {
		ev.CountryCode = loc.CountryCode
		ev.Region = loc.Region
		ev.City = loc.City
	}
	return ev
}

// ListEvents returns raw recent events, newest first. A missing table yields an empty
// list and migrationNeeded=true.
func (s *SecurityEventService) ListEvents(ctx context.Context, q EventQuery) (events []models.SecurityEvent, migrationNeeded bool, err error) {
	if !s.schema.EventsReady() {
		return []models.SecurityEvent{}, true, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	tx := s.db.WithContext(ctx).Model(&models.SecurityEvent{}).
		Where("created_at >= ?", s.since(q.Days))
	if q.Type != "" {
		tx = tx.Where("event_type = ?", q.Type)
	}
	switch q.Localhost {
	case LocalhostExclude:
		tx = tx.Where("ip IS NULL OR ip NOT IN ?", fingerprint.LoopbackAddresses)
	case LocalhostOnly:
		tx = tx.Where("ip IN ?", fingerprint.LoopbackAddresses)
	}

	events = []models.SecurityEvent{}
	if err := tx.Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, false, fmt.Errorf("list security events: %w", err)
	}
	return events, false, nil
}

// Summary computes the country/IP/fingerprint breakdowns over the last days.
func (s *SecurityEventService) Summary(ctx context.Context, days int) (*SecuritySummary, error) {
	days = clampDays(days)
	sum := &SecuritySummary{
		Days:            days,
		BySeverity:      []Bucket{},
		ByType:          []Bucket{},
		TopCountries:    []Bucket{},
		TopIPs:          []Bucket{},
		TopFingerprints: []Bucket{},
	}
	if !s.schema.EventsReady() {
		sum.MigrationNeeded = true
		return sum, nil
	}
	since := s.since(days)
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.SecurityEvent{}).Where("created_at >= ?", since).Count(&sum.Total).Error; err != nil {
		return nil, fmt.Errorf("count security events: %w", err)
	}

	breakdowns := []struct {
		column string
		dst    *[]Bucket
	}{
		{"severity", &sum.BySeverity},
		{"event_type", &sum.ByType},
		{"country_code", &sum.TopCountries},
		{"ip", &sum.TopIPs},
		{"fingerprint", &sum.TopFingerprints},
	}
	for _, b := range breakdowns {
		rows, err := s.groupCount(db, since, b.column)
		if err != nil {
			return nil, err
		}
		*b.dst = rows
	}
	return sum, nil
}

// groupCount runs one GROUP BY over a fixed, internal column name.
func (s *SecurityEventService) groupCount(db *gorm.DB, since time.Time, column string) ([]Bucket, error) {
	rows := []Bucket{}
	err := db.Model(&models.SecurityEvent{}).
		Select(column+" AS bucket, COUNT(*) AS total").
		Where("created_at >= ?", since).
		Where(column + " IS NOT NULL AND " + column + " <> ''").
		Group(column).
		Order("total DESC, bucket ASC").
		Limit(summaryTopN).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("summarize security events by %s: %w", column, err)
	}
	return rows, nil
}

func (s *SecurityEventService) since(days int) time.Time {
	return s.now().UTC().Add(-time.Duration(clampDays(days)) * 24 * time.Hour)
}

func clampDays(days int) int {
	if days <= 0 {
		return 7
	}
	if days > 90 {
		return 90
	}
	return days
}
