package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"admotion_platform/platform/auth"
	"admotion_platform/platform/schema"
	"admotion_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AnalyticsService struct {
	db        *gorm.DB
	userAuth  auth.IdentityProvider
	deviceJwt *auth.JwtManager
}

func (s *AnalyticsService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.deviceJwt.Verifier(), s.deviceJwt.Authenticator())

		r.Post("/events", s.ReportEvents)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.With(auth.CampaignPermissionOnly(s.db, auth.ReadPermission)).
			Get("/campaign/{campaign_id}", s.CampaignStats)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Get("/summary", s.AdminSummary)
		r.Get("/events", s.ListEvents)
		r.Get("/activity", s.ListActivity)
	})

	return r
}

type reportedEvent struct {
	CampaignId  uuid.UUID  `json:"campaign_id"`
	MediaId     *uuid.UUID `json:"media_id"`
	Interaction string     `json:"interaction"`
	Timestamp   time.Time  `json:"timestamp"`
}

type reportEventsRequest struct {
	Events []reportedEvent `json:"events"`
}

type reportEventsResponse struct {
	Accepted int `json:"accepted"`
}

// ReportEvents ingests a batch of interactions from a tablet. Tablets queue
// events while offline and flush them on reconnect, so a batch may span days.
// Events for campaigns the device is not linked to are dropped, the rest
// update the per-device counters and accrue driver earnings.
func (s *AnalyticsService) ReportEvents(w http.ResponseWriter, r *http.Request) {
	deviceId, err := auth.DeviceIdFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params reportEventsRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	for _, event := range params.Events {
		if err := schema.CheckValidInteraction(event.Interaction); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
	}

	accepted := 0

	err = s.db.Transaction(func(txn *gorm.DB) error {
		device, err := schema.GetDevice(deviceId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrDeviceNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		for _, event := range params.Events {
			var link schema.CampaignDevice
			result := txn.Limit(1).Find(&link, "campaign_id = ? AND device_id = ?", event.CampaignId, deviceId)
			if result.Error != nil {
				slog.Error("sql error loading campaign device link", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if result.RowsAffected == 0 {
				slog.Info("dropping event for unlinked campaign", "device_id", deviceId, "campaign_id", event.CampaignId)
				continue
			}

			timestamp := event.Timestamp
			if timestamp.IsZero() {
				timestamp = time.Now().UTC()
			}

			viewEvent := schema.ViewEvent{
				Id:          uuid.New(),
				CampaignId:  event.CampaignId,
				DeviceId:    deviceId,
				MediaId:     event.MediaId,
				Interaction: event.Interaction,
				Timestamp:   timestamp,
			}
			if result := txn.Create(&viewEvent); result.Error != nil {
				slog.Error("sql error creating view event", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}

			updates := map[string]interface{}{"last_shown_at": timestamp}
			switch event.Interaction {
			case schema.InteractionView:
				updates["views"] = gorm.Expr("views + 1")
			case schema.InteractionClick:
				updates["clicks"] = gorm.Expr("clicks + 1")
			}
			result = txn.Model(&schema.CampaignDevice{}).
				Where("campaign_id = ? AND device_id = ?", event.CampaignId, deviceId).
				Updates(updates)
			if result.Error != nil {
				slog.Error("sql error updating campaign device counters", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}

			if event.Interaction == schema.InteractionView && device.DriverId != nil {
				if err := accrueDriverEarning(txn, *device.DriverId, event.CampaignId, timestamp); err != nil {
					return err
				}
			}

			accepted++
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error reporting events: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, reportEventsResponse{Accepted: accepted})
}

// accrueDriverEarning adds one view to the driver's daily earning row, paying
// out the campaign's value per view when one is configured.
func accrueDriverEarning(txn *gorm.DB, driverId, campaignId uuid.UUID, timestamp time.Time) error {
	campaign, err := schema.GetCampaign(campaignId, txn, false)
	if err != nil {
		return CodedError(err, http.StatusInternalServerError)
	}

	amount := 0.0
	if campaign.ValuePerView != nil {
		amount = *campaign.ValuePerView
	}

	date := timestamp.UTC().Truncate(24 * time.Hour)

	var earning schema.DriverEarning
	result := txn.Limit(1).Find(&earning, "driver_id = ? AND date = ?", driverId, date)
	if result.Error != nil {
		slog.Error("sql error loading driver earning row", "driver_id", driverId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	if result.RowsAffected == 0 {
		earning = schema.DriverEarning{Id: uuid.New(), DriverId: driverId, Date: date, Views: 1, Amount: amount}
		if result := txn.Create(&earning); result.Error != nil {
			slog.Error("sql error creating driver earning row", "driver_id", driverId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	}

	updateResult := txn.Model(&schema.DriverEarning{}).Where("id = ?", earning.Id).Updates(map[string]interface{}{
		"views":  gorm.Expr("views + 1"),
		"amount": gorm.Expr("amount + ?", amount),
	})
	if updateResult.Error != nil {
		slog.Error("sql error updating driver earning row", "driver_id", driverId, "error", updateResult.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	return nil
}

type DeviceStats struct {
	DeviceId    uuid.UUID  `json:"device_id"`
	Views       int64      `json:"views"`
	Clicks      int64      `json:"clicks"`
	LastShownAt *time.Time `json:"last_shown_at"`
}

type CampaignStats struct {
	CampaignId  uuid.UUID     `json:"campaign_id"`
	TotalViews  int64         `json:"total_views"`
	TotalClicks int64         `json:"total_clicks"`
	Devices     []DeviceStats `json:"devices"`
}

func (s *AnalyticsService) CampaignStats(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var links []schema.CampaignDevice
	result := s.db.Where("campaign_id = ?", campaignId).Find(&links)
	if result.Error != nil {
		slog.Error("sql error loading campaign stats", "campaign_id", campaignId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error loading campaign stats: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	res := CampaignStats{CampaignId: campaignId, Devices: make([]DeviceStats, 0, len(links))}
	for _, link := range links {
		res.TotalViews += link.Views
		res.TotalClicks += link.Clicks
		res.Devices = append(res.Devices, DeviceStats{
			DeviceId:    link.DeviceId,
			Views:       link.Views,
			Clicks:      link.Clicks,
			LastShownAt: link.LastShownAt,
		})
	}

	utils.WriteJsonResponse(w, res)
}

type PlatformSummary struct {
	Companies        int64 `json:"companies"`
	Drivers          int64 `json:"drivers"`
	Devices          int64 `json:"devices"`
	ActiveCampaigns  int64 `json:"active_campaigns"`
	PendingCompanies int64 `json:"pending_companies"`
	PendingDrivers   int64 `json:"pending_drivers"`
	PendingCampaigns int64 `json:"pending_campaigns"`
	PendingMedia     int64 `json:"pending_media"`
	ViewsToday       int64 `json:"views_today"`
}

func (s *AnalyticsService) AdminSummary(w http.ResponseWriter, r *http.Request) {
	var res PlatformSummary

	count := func(query *gorm.DB, dest *int64) error {
		if result := query.Count(dest); result.Error != nil {
			slog.Error("sql error computing admin summary", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		return nil
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)

	err := errors.Join(
		count(s.db.Model(&schema.Company{}), &res.Companies),
		count(s.db.Model(&schema.Driver{}), &res.Drivers),
		count(s.db.Model(&schema.Device{}), &res.Devices),
		count(s.db.Model(&schema.Campaign{}).Where("status = ?", schema.CampaignActive), &res.ActiveCampaigns),
		count(s.db.Model(&schema.Company{}).Where("status = ?", schema.AwaitingApproval), &res.PendingCompanies),
		count(s.db.Model(&schema.Driver{}).Where("status = ?", schema.AwaitingApproval), &res.PendingDrivers),
		count(s.db.Model(&schema.Campaign{}).Where("status = ?", schema.InReview), &res.PendingCampaigns),
		count(s.db.Model(&schema.Media{}).Where("status = ?", schema.InReview), &res.PendingMedia),
		count(s.db.Model(&schema.ViewEvent{}).Where("interaction = ? AND timestamp >= ?", schema.InteractionView, today), &res.ViewsToday),
	)
	if err != nil {
		http.Error(w, fmt.Sprintf("error computing summary: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, res)
}

type ViewEventInfo struct {
	Id          uuid.UUID  `json:"id"`
	CampaignId  uuid.UUID  `json:"campaign_id"`
	DeviceId    uuid.UUID  `json:"device_id"`
	MediaId     *uuid.UUID `json:"media_id"`
	Interaction string     `json:"interaction"`
	Timestamp   time.Time  `json:"timestamp"`
}

func (s *AnalyticsService) ListEvents(w http.ResponseWriter, r *http.Request) {
	query := s.db
	if campaignId := r.URL.Query().Get("campaign_id"); campaignId != "" {
		id, err := uuid.Parse(campaignId)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid campaign id '%v'", campaignId), http.StatusBadRequest)
			return
		}
		query = query.Where("campaign_id = ?", id)
	}
	if deviceId := r.URL.Query().Get("device_id"); deviceId != "" {
		id, err := uuid.Parse(deviceId)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid device id '%v'", deviceId), http.StatusBadRequest)
			return
		}
		query = query.Where("device_id = ?", id)
	}

	var events []schema.ViewEvent
	result := query.Order("timestamp DESC").Limit(500).Find(&events)
	if result.Error != nil {
		slog.Error("sql error listing view events", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing events: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]ViewEventInfo, 0, len(events))
	for _, event := range events {
		infos = append(infos, ViewEventInfo{
			Id:          event.Id,
			CampaignId:  event.CampaignId,
			DeviceId:    event.DeviceId,
			MediaId:     event.MediaId,
			Interaction: event.Interaction,
			Timestamp:   event.Timestamp,
		})
	}

	utils.WriteJsonResponse(w, infos)
}

type ActivityInfo struct {
	Id          uuid.UUID  `json:"id"`
	UserId      *uuid.UUID `json:"user_id"`
	Action      string     `json:"action"`
	Entity      string     `json:"entity"`
	EntityId    *uuid.UUID `json:"entity_id"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (s *AnalyticsService) ListActivity(w http.ResponseWriter, r *http.Request) {
	query := s.db
	if entity := r.URL.Query().Get("entity"); entity != "" {
		query = query.Where("entity = ?", entity)
	}
	if action := r.URL.Query().Get("action"); action != "" {
		query = query.Where("action = ?", action)
	}

	var entries []schema.ActivityLog
	result := query.Order("created_at DESC").Limit(500).Find(&entries)
	if result.Error != nil {
		slog.Error("sql error listing activity log", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing activity: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]ActivityInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, ActivityInfo{
			Id:          entry.Id,
			UserId:      entry.UserId,
			Action:      entry.Action,
			Entity:      entry.Entity,
			EntityId:    entry.EntityId,
			Description: entry.Description,
			CreatedAt:   entry.CreatedAt,
		})
	}

	utils.WriteJsonResponse(w, infos)
}
