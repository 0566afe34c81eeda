package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/bazaarly/kernel/backend/internal/logger"
	"github.com/bazaarly/kernel/backend/internal/models"
)

const (
	defaultWatchlistLimit = 100
	maxWatchlistLimit     = 500

	// FailedLoginThreshold is the number of failed logins above which an actor becomes
	// suspicious for the traffic views.
	FailedLoginThreshold = 5
)

// WatchlistQuery parameterizes List. ExcludeFingerprint and ExcludeIP are the
// requester's own identity, resolved fresh for every request.
type WatchlistQuery struct {
	Days               int
	Limit              int
	ExcludeFingerprint string
	ExcludeIP          string
	WithIntel          bool
}

// WatchlistResult is the ranked watchlist. MigrationNeeded is set when the trust or block
// join had to be skipped, or when the events table itself is missing.
type WatchlistResult struct {
	Days            int                     `json:"days"`
	Actors          []models.WatchlistActor `json:"actors"`
	MigrationNeeded bool                    `json:"migration_needed"`
}

// SuspicionQuery parameterizes SuspiciousActors.
type SuspicionQuery struct {
	Days               int
	ExcludeFingerprint string
	ExcludeIP          string
}

// SuspiciousSet holds the identifiers of actors the traffic views may show: the actor key
// of every suspicious group plus every IP that group was seen from.
type SuspiciousSet struct {
	identifiers     map[string]struct{}
	MigrationNeeded bool
}

// Matches reports whether a traffic row with the given fingerprint and ip belongs to a
// suspicious actor.
func (s *SuspiciousSet) Matches(fp, ip string) bool {
	if fp != "" {
		if _, ok := s.identifiers[fp]; ok {
			return true
		}
	}
	if ip != "" {
		if _, ok := s.identifiers[ip]; ok {
			return true
		}
	}
	return false
}

// Len is the number of identifiers in the set.
func (s *SuspiciousSet) Len() int { return len(s.identifiers) }

// WatchlistService aggregates high-risk security events into ranked actors.
type WatchlistService struct {
	db     *gorm.DB
	schema *SchemaState
	trust  *TrustService
	blocks *BlockService
	intel  *IntelService
	now    func() time.Time
	log    *logrus.Entry
}

// NewWatchlistService wires the aggregator to its join sources. intel may be nil.
func NewWatchlistService(db *gorm.DB, schema *SchemaState, trust *TrustService, blocks *BlockService, intel *IntelService) *WatchlistService {
	return &WatchlistService{
		db:     db,
		schema: schema,
		trust:  trust,
		blocks: blocks,
		intel:  intel,
		now:    time.Now,
		log:    logger.Component("watchlist"),
	}
}

type eventRow struct {
	CreatedAt   time.Time
	EventType   models.EventType
	Severity    models.Severity
	IP          *string
	UserAgent   *string
	Fingerprint *string
	CountryCode string
	UserID      *string
	UserType    string
	Role        string
}

type actorGroup struct {
	actor models.WatchlistActor
	fps   []string
	ips   []string
}

func (g *actorGroup) addIdentity(fp, ip string) {
	if fp != "" && !contains(g.fps, fp) {
		g.fps = append(g.fps, fp)
	}
	if ip != "" && !contains(g.ips, ip) {
		g.ips = append(g.ips, ip)
	}
}

// List computes the watchlist.
func (s *WatchlistService) List(ctx context.Context, q WatchlistQuery) (*WatchlistResult, error) {
	days := clampDays(q.Days)
	res := &WatchlistResult{Days: days, Actors: []models.WatchlistActor{}}
	if !s.schema.EventsReady() {
		res.MigrationNeeded = true
		return res, nil
	}

	rows, err := s.loadEvents(ctx, days, models.HighRiskEventTypes, q.ExcludeFingerprint, q.ExcludeIP)
	if err != nil {
		return nil, err
	}

	groups := map[string]*actorGroup{}
	for _, r := range rows {
		ua := models.Deref(r.UserAgent)
		class := ClassifyUserAgent(ua)
		if class == models.UAClassOther {
			continue
		}
		key := models.ActorKey(r.Fingerprint, r.IP)
		g, ok := groups[key]
		if !ok {
			g = &actorGroup{actor: models.WatchlistActor{
				ActorKey:  key,
				UAClass:   models.UAClassUnknown,
				FirstSeen: r.CreatedAt,
			}}
			groups[key] = g
		}
		aggregate(g, r, class)
	}

	actors := make([]*actorGroup, 0, len(groups))
	for _, g := range groups {
		actors = append(actors, g)
	}

	trustIdx, trustMissing, err := s.trust.Index(ctx)
	if err != nil {
		return nil, err
	}
	res.MigrationNeeded = trustMissing || !s.schema.BlocksReady()

	blocked, err := s.blocks.ActiveSet(ctx)
	if err != nil {
		return nil, err
	}

	for _, g := range actors {
		if label, ok := trustIdx.Match(g.fps, g.ips); ok {
			g.actor.IsTrusted = true
			g.actor.TrustedLabel = label
		}
		for _, ip := range g.ips {
			if _, ok := blocked[ip]; ok {
				g.actor.IsBlocked = true
				break
			}
		}
	}

	sort.SliceStable(actors, func(i, j int) bool {
		return rankBefore(&actors[i].actor, &actors[j].actor)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = defaultWatchlistLimit
	}
	if limit > maxWatchlistLimit {
		limit = maxWatchlistLimit
	}
	if len(actors) > limit {
		actors = actors[:limit]
	}

	for _, g := range actors {
		g.actor.ComputeEmergency()
		res.Actors = append(res.Actors, g.actor)
	}

	if q.WithIntel {
		s.enrichIntel(ctx, res.Actors)
	}
	return res, nil
}

// SuspiciousActors computes the set of actors the traffic views may expose: any actor
// with a trap hit, or with more than FailedLoginThreshold failed logins, in the window.
// Unlike List it does not filter by user agent.
func (s *WatchlistService) SuspiciousActors(ctx context.Context, q SuspicionQuery) (*SuspiciousSet, error) {
	set := &SuspiciousSet{identifiers: map[string]struct{}{}}
	if !s.schema.EventsReady() {
		set.MigrationNeeded = true
		return set, nil
	}
	types := append([]models.EventType{models.EventTrapHit}, models.FailedLoginEventTypes...)
	rows, err := s.loadEvents(ctx, clampDays(q.Days), types, q.ExcludeFingerprint, q.ExcludeIP)
	if err != nil {
		return nil, err
	}

	type tally struct {
		traps, failed int
		ips           []string
	}
	tallies := map[string]*tally{}
	for _, r := range rows {
		key := models.ActorKey(r.Fingerprint, r.IP)
		t, ok := tallies[key]
		if !ok {
			t = &tally{}
			tallies[key] = t
		}
		if r.EventType == models.EventTrapHit {
			t.traps++
		} else {
			t.failed++
		}
		if ip := models.Deref(r.IP); ip != "" && !contains(t.ips, ip) {
			t.ips = append(t.ips, ip)
		}
	}

	for key, t := range tallies {
		if t.traps == 0 && t.failed <= FailedLoginThreshold {
			continue
		}
		if key != "unknown" {
			set.identifiers[key] = struct{}{}
		}
		for _, ip := range t.ips {
			set.identifiers[ip] = struct{}{}
		}
	}
	return set, nil
}

func (s *WatchlistService) loadEvents(ctx context.Context, days int, types []models.EventType, excludeFP, excludeIP string) ([]eventRow, error) {
	now := s.now().UTC()
	since := now.Add(-time.Duration(days) * 24 * time.Hour)

	tx := s.db.WithContext(ctx).Model(&models.SecurityEvent{}).
		Select("created_at, event_type, severity, ip, user_agent, fingerprint, country_code, user_id, user_type, role").
		Where("created_at >= ? AND created_at <= ?", since, now).
		Where("event_type IN ?", types)
	if excludeFP != "" {
		tx = tx.Where("(fingerprint IS NULL OR fingerprint <> ?)", excludeFP)
	}
	if excludeIP != "" {
		tx = tx.Where("(ip IS NULL OR ip <> ?)", excludeIP)
	}

	var rows []eventRow
	if err := tx.Order("created_at ASC, id ASC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load watchlist events: %w", err)
	}
	return rows, nil
}

func aggregate(g *actorGroup, r eventRow, class models.UAClass) {
	a := &g.actor
	a.TotalEvents++
	if r.Severity == models.SeverityWarn || r.Severity == models.SeverityCritical {
		a.SuspiciousEvents++
	}
	switch r.EventType {
	case models.EventTrapHit:
		a.TrapHits++
	case models.EventAdminForbidden:
		a.AdminForbidden++
	case models.EventSuspiciousPath:
		a.SuspiciousPath++
	}
	if class == models.UAClassLinux {
		a.UAClass = models.UAClassLinux
	}
	if r.CreatedAt.Before(a.FirstSeen) {
		a.FirstSeen = r.CreatedAt
	}
	if r.CreatedAt.After(a.LastSeen) {
		a.LastSeen = r.CreatedAt
	}

	fp, ip := models.Deref(r.Fingerprint), models.Deref(r.IP)
	g.addIdentity(fp, ip)
	setIfPresent(&a.Fingerprint, fp)
	setIfPresent(&a.IP, ip)
	setIfPresent(&a.CountryCode, r.CountryCode)
	setIfPresent(&a.UserAgent, models.Deref(r.UserAgent))
	setIfPresent(&a.UserID, models.Deref(r.UserID))
	setIfPresent(&a.UserType, r.UserType)
	setIfPresent(&a.Role, r.Role)
}

// rankBefore orders trap hits first, then admin-forbidden, suspicious and total counts,
// then recency. The actor key breaks remaining ties so output is stable.
func rankBefore(a, b *models.WatchlistActor) bool {
	if a.TrapHits != b.TrapHits {
		return a.TrapHits > b.TrapHits
	}
	if a.AdminForbidden != b.AdminForbidden {
		return a.AdminForbidden > b.AdminForbidden
	}
	if a.SuspiciousEvents != b.SuspiciousEvents {
		return a.SuspiciousEvents > b.SuspiciousEvents
	}
	if a.TotalEvents != b.TotalEvents {
		return a.TotalEvents > b.TotalEvents
	}
	if !a.LastSeen.Equal(b.LastSeen) {
		return a.LastSeen.After(b.LastSeen)
	}
	return a.ActorKey < b.ActorKey
}

func (s *WatchlistService) enrichIntel(ctx context.Context, actors []models.WatchlistActor) {
	if s.intel == nil || len(actors) == 0 {
		return
	}
	ips := make([]string, 0, len(actors))
	for _, a := range actors {
		if a.IP != "" {
			ips = append(ips, a.IP)
		}
	}
	intel, err := s.intel.LookupMany(ctx, ips)
	if err != nil {
		s.log.WithError(err).Warn("ip intel enrichment skipped")
		return
	}
	for i := range actors {
		if rec, ok := intel[actors[i].IP]; ok {
			actors[i].Intel = rec
		}
	}
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
