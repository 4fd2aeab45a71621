package services

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"admotion_platform/platform/auth"
	"admotion_platform/platform/storage"
	"admotion_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type Platform struct {
	user         UserService
	company      CompanyService
	driver       DriverService
	device       DeviceService
	campaign     CampaignService
	media        MediaService
	analytics    AnalyticsService
	finance      FinanceService
	ticket       TicketService
	notification NotificationService
	settings     SettingsService

	db   *gorm.DB
	stop chan bool
}

func NewPlatform(
	db *gorm.DB, store storage.Storage, userAuth auth.IdentityProvider, secret []byte,
) Platform {
	deviceJwt := auth.NewJwtManager(append(append([]byte{}, secret...), []byte("device")...))

	return Platform{
		user:         UserService{db: db, userAuth: userAuth},
		company:      CompanyService{db: db, userAuth: userAuth},
		driver:       DriverService{db: db, userAuth: userAuth},
		device:       DeviceService{db: db, userAuth: userAuth, deviceJwt: deviceJwt},
		campaign:     CampaignService{db: db, userAuth: userAuth, storage: store},
		media:        MediaService{db: db, userAuth: userAuth, storage: store},
		analytics:    AnalyticsService{db: db, userAuth: userAuth, deviceJwt: deviceJwt},
		finance:      FinanceService{db: db, userAuth: userAuth},
		ticket:       TicketService{db: db, userAuth: userAuth},
		notification: NotificationService{db: db, userAuth: userAuth},
		settings:     SettingsService{db: db, userAuth: userAuth},
		db:           db,
		stop:         make(chan bool, 1),
	}
}

func (p *Platform) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", p.user.Routes())
	r.Mount("/company", p.company.Routes())
	r.Mount("/driver", p.driver.Routes())
	r.Mount("/device", p.device.Routes())
	r.Mount("/campaign", p.campaign.Routes())
	r.Mount("/media", p.media.Routes())
	r.Mount("/analytics", p.analytics.Routes())
	r.Mount("/finance", p.finance.Routes())
	r.Mount("/ticket", p.ticket.Routes())
	r.Mount("/notification", p.notification.Routes())
	r.Mount("/settings", p.settings.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}

// DeviceStatusSync marks devices offline when they stop sending heartbeats.
// Runs until StopDeviceStatusSync is called.
func (p *Platform) DeviceStatusSync(interval, offlineThreshold time.Duration) {
	slog.Info("device status sync: starting")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := MarkStaleDevicesOffline(p.db, offlineThreshold); err != nil {
				slog.Error("device status sync: error marking stale devices", "error", err)
			}
		case <-p.stop:
			slog.Info("device status sync: process stopped")
			return
		}
	}
}

func (p *Platform) StopDeviceStatusSync() {
	close(p.stop)
}
