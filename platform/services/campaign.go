package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"admotion_platform/platform/auth"
	"admotion_platform/platform/schema"
	"admotion_platform/platform/storage"
	"admotion_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CampaignService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	storage  storage.Storage
}

func (s *CampaignService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.CompanyOnly())

		r.Post("/create", s.Create)
		r.Get("/list", s.ListOwn)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.With(auth.CampaignPermissionOnly(s.db, auth.ReadPermission)).Get("/{campaign_id}", s.Details)

		r.Group(func(r chi.Router) {
			r.Use(auth.CampaignPermissionOnly(s.db, auth.OwnerPermission))

			r.Post("/{campaign_id}/update", s.Update)
			r.Delete("/{campaign_id}", s.Delete)
			r.Post("/{campaign_id}/activate", s.Activate)
			r.Post("/{campaign_id}/pause", s.Pause)
			r.Post("/{campaign_id}/resume", s.Resume)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Get("/all", s.ListAll)
		r.Post("/{campaign_id}/approve", s.Approve)
		r.Post("/{campaign_id}/reject", s.Reject)

		r.Post("/{campaign_id}/devices/{device_id}", s.LinkDevice)
		r.Delete("/{campaign_id}/devices/{device_id}", s.UnlinkDevice)
	})

	return r
}

type campaignRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Region      string `json:"region"`
	City        string `json:"city"`

	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	DailyFrequency int `json:"daily_frequency"`

	TotalValue   *float64 `json:"total_value"`
	ValuePerView *float64 `json:"value_per_view"`
}

type campaignDates struct {
	startDate, endDate time.Time
}

func (p *campaignRequest) check() (campaignDates, error) {
	var dates campaignDates

	if strings.TrimSpace(p.Name) == "" {
		return dates, errors.New("campaign name is required")
	}
	if strings.TrimSpace(p.Region) == "" || strings.TrimSpace(p.City) == "" {
		return dates, errors.New("campaign region and city are required")
	}

	var err error
	dates.startDate, err = time.Parse(time.DateOnly, p.StartDate)
	if err != nil {
		return dates, fmt.Errorf("invalid start date '%v', expected YYYY-MM-DD", p.StartDate)
	}
	dates.endDate, err = time.Parse(time.DateOnly, p.EndDate)
	if err != nil {
		return dates, fmt.Errorf("invalid end date '%v', expected YYYY-MM-DD", p.EndDate)
	}

	if dates.endDate.Before(dates.startDate) {
		return dates, errors.New("campaign end date cannot be before its start date")
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	if dates.startDate.Before(today) {
		return dates, errors.New("campaign start date cannot be in the past")
	}

	if _, err := time.Parse("15:04", p.StartTime); err != nil {
		return dates, fmt.Errorf("invalid start time '%v', expected HH:MM", p.StartTime)
	}
	if _, err := time.Parse("15:04", p.EndTime); err != nil {
		return dates, fmt.Errorf("invalid end time '%v', expected HH:MM", p.EndTime)
	}

	if p.DailyFrequency < 1 {
		return dates, errors.New("daily frequency must be at least 1")
	}

	return dates, nil
}

type createCampaignResponse struct {
	CampaignId uuid.UUID `json:"campaign_id"`
}

// Create registers a new campaign for review. Only companies that have been
// approved can create campaigns.
func (s *CampaignService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params campaignRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	dates, err := params.check()
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	campaign := schema.Campaign{
		Id:             uuid.New(),
		CompanyId:      user.Id,
		Name:           params.Name,
		Description:    params.Description,
		Status:         schema.InReview,
		Region:         params.Region,
		City:           params.City,
		StartDate:      dates.startDate,
		EndDate:        dates.endDate,
		StartTime:      params.StartTime,
		EndTime:        params.EndTime,
		DailyFrequency: params.DailyFrequency,
		TotalValue:     params.TotalValue,
		ValuePerView:   params.ValuePerView,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		company, err := schema.GetCompany(user.Id, txn)
		if err != nil {
			if errors.Is(err, schema.ErrCompanyNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if company.Status != schema.CompanyActive {
			return CodedError(fmt.Errorf("company has status %v, only approved companies can create campaigns", company.Status), http.StatusForbidden)
		}

		var sub schema.Subscription
		result := txn.Preload("Plan").Limit(1).Find(&sub, "company_id = ? AND status = ?", user.Id, schema.SubscriptionActive)
		if result.Error != nil {
			slog.Error("sql error checking subscription", "company_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected > 0 && sub.Plan != nil && sub.Plan.CampaignLimit != nil {
			var existing int64
			if err := txn.Model(&schema.Campaign{}).Where("company_id = ? AND status <> ?", user.Id, schema.Rejected).Count(&existing).Error; err != nil {
				slog.Error("sql error counting campaigns", "company_id", user.Id, "error", err)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if existing >= int64(*sub.Plan.CampaignLimit) {
				return CodedError(fmt.Errorf("campaign limit of %d for the %v plan reached", *sub.Plan.CampaignLimit, sub.Plan.Name), http.StatusUnprocessableEntity)
			}
		}

		if result := txn.Create(&campaign); result.Error != nil {
			slog.Error("sql error creating campaign", "company_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating campaign: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("campaign created", "campaign_id", campaign.Id, "company_id", user.Id)

	utils.WriteJsonResponse(w, createCampaignResponse{CampaignId: campaign.Id})
}

type MediaInfo struct {
	Id           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	Url          string    `json:"url"`
	FileName     string    `json:"file_name"`
	SizeBytes    int64     `json:"size_bytes"`
	Status       string    `json:"status"`
	RejectReason string    `json:"reject_reason,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type CampaignInfo struct {
	Id        uuid.UUID `json:"id"`
	CompanyId uuid.UUID `json:"company_id"`

	Name        string `json:"name"`
	Description string `json:"description"`

	Status       string `json:"status"`
	RejectReason string `json:"reject_reason,omitempty"`

	Region string `json:"region"`
	City   string `json:"city"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`

	DailyFrequency int      `json:"daily_frequency"`
	TotalValue     *float64 `json:"total_value"`
	ValuePerView   *float64 `json:"value_per_view"`

	Media []MediaInfo `json:"media,omitempty"`
}

func campaignInfo(campaign schema.Campaign) CampaignInfo {
	info := CampaignInfo{
		Id:             campaign.Id,
		CompanyId:      campaign.CompanyId,
		Name:           campaign.Name,
		Description:    campaign.Description,
		Status:         campaign.Status,
		RejectReason:   campaign.RejectReason,
		Region:         campaign.Region,
		City:           campaign.City,
		StartDate:      campaign.StartDate,
		EndDate:        campaign.EndDate,
		StartTime:      campaign.StartTime,
		EndTime:        campaign.EndTime,
		DailyFrequency: campaign.DailyFrequency,
		TotalValue:     campaign.TotalValue,
		ValuePerView:   campaign.ValuePerView,
	}
	for _, media := range campaign.Media {
		info.Media = append(info.Media, MediaInfo{
			Id:           media.Id,
			Type:         media.Type,
			Url:          media.Url,
			FileName:     media.FileName,
			SizeBytes:    media.SizeBytes,
			Status:       media.Status,
			RejectReason: media.RejectReason,
			UploadedAt:   media.UploadedAt,
		})
	}
	return info
}

func (s *CampaignService) listCampaigns(w http.ResponseWriter, query *gorm.DB) {
	var campaigns []schema.Campaign
	result := query.Find(&campaigns)
	if result.Error != nil {
		slog.Error("sql error listing campaigns", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing campaigns: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]CampaignInfo, 0, len(campaigns))
	for _, campaign := range campaigns {
		infos = append(infos, campaignInfo(campaign))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *CampaignService) ListOwn(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.listCampaigns(w, s.db.Where("company_id = ?", user.Id).Order("start_date DESC"))
}

func (s *CampaignService) ListAll(w http.ResponseWriter, r *http.Request) {
	query := s.db
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	s.listCampaigns(w, query.Order("start_date DESC"))
}

func (s *CampaignService) Details(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	campaign, err := schema.GetCampaign(campaignId, s.db, true)
	if err != nil {
		if errors.Is(err, schema.ErrCampaignNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error loading campaign: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, campaignInfo(campaign))
}

// Update edits a campaign that has not yet passed review. Updating a rejected
// campaign resubmits it for review.
func (s *CampaignService) Update(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params campaignRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	dates, err := params.check()
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		campaign, err := schema.GetCampaign(campaignId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrCampaignNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if campaign.Status != schema.InReview {
			return CodedError(fmt.Errorf("campaign has status %v, only campaigns in review can be edited", campaign.Status), http.StatusUnprocessableEntity)
		}

		campaign.Name = params.Name
		campaign.Description = params.Description
		campaign.Region = params.Region
		campaign.City = params.City
		campaign.StartDate = dates.startDate
		campaign.EndDate = dates.endDate
		campaign.StartTime = params.StartTime
		campaign.EndTime = params.EndTime
		campaign.DailyFrequency = params.DailyFrequency
		campaign.TotalValue = params.TotalValue
		campaign.ValuePerView = params.ValuePerView

		if result := txn.Save(&campaign); result.Error != nil {
			slog.Error("sql error updating campaign", "campaign_id", campaignId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating campaign: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *CampaignService) Delete(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var mediaPaths []string

	err = s.db.Transaction(func(txn *gorm.DB) error {
		campaign, err := schema.GetCampaign(campaignId, txn, true)
		if err != nil {
			if errors.Is(err, schema.ErrCampaignNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if campaign.Status != schema.InReview {
			return CodedError(fmt.Errorf("campaign has status %v, only campaigns in review can be deleted", campaign.Status), http.StatusUnprocessableEntity)
		}

		for _, media := range campaign.Media {
			mediaPaths = append(mediaPaths, media.ObjectPath)
		}

		if result := txn.Delete(&schema.Campaign{Id: campaignId}); result.Error != nil {
			slog.Error("sql error deleting campaign", "campaign_id", campaignId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting campaign: %v", err), GetResponseCode(err))
		return
	}

	for _, path := range mediaPaths {
		if err := s.storage.Delete(path); err != nil {
			slog.Error("error deleting media file for removed campaign", "campaign_id", campaignId, "path", path, "error", err)
		}
	}

	utils.WriteSuccess(w)
}

func (s *CampaignService) Approve(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	admin, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		campaign, err := schema.GetCampaign(campaignId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrCampaignNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if campaign.Status != schema.InReview {
			return CodedError(fmt.Errorf("campaign has status %v, only campaigns in review can be approved", campaign.Status), http.StatusUnprocessableEntity)
		}

		campaign.Status = schema.Approved
		campaign.RejectReason = ""
		if result := txn.Save(&campaign); result.Error != nil {
			slog.Error("sql error approving campaign", "campaign_id", campaignId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := addNotification(txn, campaign.CompanyId, schema.NotificationApproval, "Campaign approved", fmt.Sprintf("Campaign '%v' has been approved.", campaign.Name)); err != nil {
			return err
		}
		return logActivity(txn, admin.Id, "campaign_approved", "campaign", campaignId, "")
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error approving campaign: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *CampaignService) Reject(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	admin, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params decisionRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Reason == "" {
		http.Error(w, "a reason is required to reject a campaign", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		campaign, err := schema.GetCampaign(campaignId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrCampaignNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if campaign.Status != schema.InReview {
			return CodedError(fmt.Errorf("campaign has status %v, only campaigns in review can be rejected", campaign.Status), http.StatusUnprocessableEntity)
		}

		campaign.Status = schema.Rejected
		campaign.RejectReason = params.Reason
		if result := txn.Save(&campaign); result.Error != nil {
			slog.Error("sql error rejecting campaign", "campaign_id", campaignId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := addNotification(txn, campaign.CompanyId, schema.NotificationRejection, "Campaign rejected", fmt.Sprintf("Campaign '%v' was rejected: %v", campaign.Name, params.Reason)); err != nil {
			return err
		}
		return logActivity(txn, admin.Id, "campaign_rejected", "campaign", campaignId, params.Reason)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error rejecting campaign: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

// Activate puts an approved campaign on the street. At least one approved
// media and one linked device are required, otherwise there is nothing to
// show or nowhere to show it.
func (s *CampaignService) Activate(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		campaign, err := schema.GetCampaign(campaignId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrCampaignNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if campaign.Status != schema.Approved {
			return CodedError(fmt.Errorf("campaign has status %v, only approved campaigns can be activated", campaign.Status), http.StatusUnprocessableEntity)
		}

		var mediaCount int64
		result := txn.Model(&schema.Media{}).Where("campaign_id = ? AND status = ?", campaignId, schema.Approved).Count(&mediaCount)
		if result.Error != nil {
			slog.Error("sql error counting approved media", "campaign_id", campaignId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if mediaCount == 0 {
			return CodedError(errors.New("campaign has no approved media, approve at least one media before activating"), http.StatusUnprocessableEntity)
		}

		var deviceCount int64
		result = txn.Model(&schema.CampaignDevice{}).Where("campaign_id = ? AND active = ?", campaignId, true).Count(&deviceCount)
		if result.Error != nil {
			slog.Error("sql error counting linked devices", "campaign_id", campaignId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if deviceCount == 0 {
			return CodedError(errors.New("campaign has no linked devices, link at least one device before activating"), http.StatusUnprocessableEntity)
		}

		campaign.Status = schema.CampaignActive
		if result := txn.Save(&campaign); result.Error != nil {
			slog.Error("sql error activating campaign", "campaign_id", campaignId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := addNotification(txn, campaign.CompanyId, schema.NotificationCampaign, "Campaign live", fmt.Sprintf("Campaign '%v' is now running.", campaign.Name)); err != nil {
			return err
		}
		return logActivity(txn, actor.Id, "campaign_activated", "campaign", campaignId, "")
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error activating campaign: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *CampaignService) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		campaign, err := schema.GetCampaign(campaignId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrCampaignNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if paused {
			if campaign.Status != schema.CampaignActive {
				return CodedError(fmt.Errorf("campaign has status %v, only active campaigns can be paused", campaign.Status), http.StatusUnprocessableEntity)
			}
			campaign.Status = schema.CampaignPaused
		} else {
			if campaign.Status != schema.CampaignPaused {
				return CodedError(fmt.Errorf("campaign has status %v, only paused campaigns can be resumed", campaign.Status), http.StatusUnprocessableEntity)
			}
			campaign.Status = schema.CampaignActive
		}

		if result := txn.Save(&campaign); result.Error != nil {
			slog.Error("sql error updating campaign pause state", "campaign_id", campaignId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating campaign: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *CampaignService) Pause(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, true)
}

func (s *CampaignService) Resume(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, false)
}

func (s *CampaignService) LinkDevice(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	deviceId, err := utils.URLParamUUID(r, "device_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkCampaignExists(txn, campaignId); err != nil {
			return err
		}
		if err := checkDeviceExists(txn, deviceId); err != nil {
			return err
		}

		var existing schema.CampaignDevice
		result := txn.Limit(1).Find(&existing, "campaign_id = ? AND device_id = ?", campaignId, deviceId)
		if result.Error != nil {
			slog.Error("sql error checking for existing campaign device link", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			if existing.Active {
				return CodedError(errors.New("device is already linked to this campaign"), http.StatusConflict)
			}
			// Relinking revives the old row so its counters are kept.
			updateResult := txn.Model(&schema.CampaignDevice{}).
				Where("campaign_id = ? AND device_id = ?", campaignId, deviceId).
				Update("active", true)
			if updateResult.Error != nil {
				slog.Error("sql error reactivating campaign device link", "error", updateResult.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			return nil
		}

		link := schema.CampaignDevice{CampaignId: campaignId, DeviceId: deviceId, Active: true}
		if result := txn.Create(&link); result.Error != nil {
			slog.Error("sql error linking device to campaign", "campaign_id", campaignId, "device_id", deviceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error linking device to campaign: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *CampaignService) UnlinkDevice(w http.ResponseWriter, r *http.Request) {
	campaignId, err := utils.URLParamUUID(r, "campaign_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	deviceId, err := utils.URLParamUUID(r, "device_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Deactivate rather than delete so the view counters survive.
	result := s.db.Model(&schema.CampaignDevice{}).
		Where("campaign_id = ? AND device_id = ?", campaignId, deviceId).
		Update("active", false)
	if result.Error != nil {
		slog.Error("sql error unlinking device from campaign", "campaign_id", campaignId, "device_id", deviceId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error unlinking device: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "device is not linked to this campaign", http.StatusNotFound)
		return
	}

	utils.WriteSuccess(w)
}
