package main

import (
	"context"
	"flag"
	"time"

	"github.com/bazaarly/kernel/backend/internal/config"
	"github.com/bazaarly/kernel/backend/internal/database"
	"github.com/bazaarly/kernel/backend/internal/geo"
	"github.com/bazaarly/kernel/backend/internal/logger"
	"github.com/bazaarly/kernel/backend/internal/models"
	"github.com/bazaarly/kernel/backend/internal/services"
)

// seedActor is one synthetic requester and the events it produced.
type seedActor struct {
	ip     string
	ua     string
	seed   string
	events []models.EventType
	intel  *models.IPIntel
}

var actors = []seedActor{
	{
		ip:   "203.0.113.10",
		ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
		seed: "4f1c2d7e-seed-linux-scanner",
		events: []models.EventType{
			models.EventTrapHit, models.EventTrapHit, models.EventTrapHit, models.EventAdminForbidden,
		},
		intel: &models.IPIntel{ISP: "Example Hosting", ASN: 64500, IsDatacenter: true, FraudScore: 85, RiskLevel: "high"},
	},
	{
		ip: "198.51.100.23",
		ua: "python-requests/2.31.0",
		events: []models.EventType{
			models.EventSuspiciousPath, models.EventSuspiciousPath, models.EventSuspiciousPath,
			models.EventSuspiciousPath, models.EventSuspiciousPath,
		},
		intel: &models.IPIntel{ISP: "Example Transit", ASN: 64501, IsProxy: true, FraudScore: 60, RiskLevel: "medium"},
	},
	{
		ip: "192.0.2.77",
		ua: "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/126.0 Mobile Safari/537.36",
		events: []models.EventType{
			models.EventAuthLoginFailed, models.EventAuthLoginFailed, models.EventAuthLoginFailed,
			models.EventAuthLoginFailed, models.EventAuthLoginFailed, models.EventAuthLoginFailed,
		},
	},
	{
		ip:     "127.0.0.1",
		ua:     "curl/8.5.0",
		events: []models.EventType{models.EventAdminUnauthorized},
	},
}

var eventPaths = map[models.EventType]string{
	models.EventTrapHit:           "/api/v1/debug/vars",
	models.EventAdminForbidden:    "/api/v1/kernel/blocks",
	models.EventAdminUnauthorized: "/api/v1/kernel/security/summary",
	models.EventSuspiciousPath:    "/wp-login.php",
	models.EventAuthLoginFailed:   "/api/v1/kernel/auth/login",
}

func main() {
	trustIP := flag.String("trust-ip", "", "also add this IP to the trusted actors")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Log().WithError(err).Fatal("load config")
	}
	logger.Init(true, nil)
	log := logger.Component("seed")

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("migrate database")
	}
	log.Info("database migrated")

	ctx := context.Background()
	schema := services.NewSchemaState(db)
	events := services.NewSecurityEventService(db, schema, geo.NopLocator{})
	intel := services.NewIntelService(db, schema)
	trust := services.NewTrustService(db, schema)

	now := time.Now().UTC()
	total := 0
	for _, a := range actors {
		for i, typ := range a.events {
			_, err := events.Record(ctx, services.EventInput{
				Type:       typ,
				Method:     "GET",
				Path:       eventPaths[typ],
				StatusCode: 404,
				IP:         a.ip,
				UserAgent:  a.ua,
				CookieSeed: a.seed,
				At:         now.Add(-time.Duration(i+1) * 17 * time.Minute),
			})
			if err != nil {
				log.WithError(err).WithField("ip", a.ip).Fatal("record event")
			}
			total++
		}
		if a.intel != nil {
			a.intel.IP = a.ip
			if err := intel.Upsert(ctx, a.intel); err != nil {
				log.WithError(err).WithField("ip", a.ip).Fatal("upsert intel")
			}
		}
	}
	log.WithField("events", total).Info("seeded security events")

	if *trustIP != "" {
		if _, err := trust.Add(ctx, "", *trustIP, "seeded operator"); err != nil {
			log.WithError(err).Fatal("add trusted actor")
		}
		log.WithField("ip", *trustIP).Info("trusted actor added")
	}
}
