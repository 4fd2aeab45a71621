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
	"admotion_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeviceService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider

	// Tablets authenticate with their own long lived tokens, independent of
	// the user identity provider.
	deviceJwt *auth.JwtManager
}

func (s *DeviceService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Post("/create", s.Create)
		r.Get("/list", s.List)
		r.Get("/{device_id}", s.Details)
		r.Post("/{device_id}/status", s.UpdateStatus)
		r.Delete("/{device_id}", s.Delete)

		r.Post("/{device_id}/assign/{driver_id}", s.Assign)
		r.Post("/{device_id}/unassign", s.Unassign)

		r.Get("/{device_id}/token", s.IssueToken)
		r.Get("/{device_id}/locations", s.LocationHistory)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.deviceJwt.Verifier(), s.deviceJwt.Authenticator())

		r.Post("/sync", s.Sync)
		r.Get("/playlist", s.Playlist)
	})

	return r
}

type createDeviceRequest struct {
	SerialNumber string `json:"serial_number"`
	Model        string `json:"model"`
}

type createDeviceResponse struct {
	DeviceId uuid.UUID `json:"device_id"`
}

func (s *DeviceService) Create(w http.ResponseWriter, r *http.Request) {
	var params createDeviceRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if strings.TrimSpace(params.SerialNumber) == "" {
		http.Error(w, "serial number is required", http.StatusUnprocessableEntity)
		return
	}

	device := schema.Device{
		Id:           uuid.New(),
		SerialNumber: params.SerialNumber,
		Model:        params.Model,
		Status:       schema.DeviceActive,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.Device
		result := txn.Limit(1).Find(&existing, "serial_number = ?", params.SerialNumber)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate serial number", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("a device with serial number %v already exists", params.SerialNumber), http.StatusConflict)
		}

		if result := txn.Create(&device); result.Error != nil {
			slog.Error("sql error creating device", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating device: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("device registered", "device_id", device.Id, "serial_number", device.SerialNumber)

	utils.WriteJsonResponse(w, createDeviceResponse{DeviceId: device.Id})
}

type DeviceInfo struct {
	Id           uuid.UUID `json:"id"`
	SerialNumber string    `json:"serial_number"`
	Model        string    `json:"model"`
	Status       string    `json:"status"`

	DriverId   *uuid.UUID `json:"driver_id"`
	DriverName string     `json:"driver_name,omitempty"`

	LastLatitude   *float64   `json:"last_latitude"`
	LastLongitude  *float64   `json:"last_longitude"`
	LastSyncAt     *time.Time `json:"last_sync_at"`
	BatteryPercent *int       `json:"battery_percent"`
}

func (s *DeviceService) deviceInfo(device schema.Device) DeviceInfo {
	info := DeviceInfo{
		Id:             device.Id,
		SerialNumber:   device.SerialNumber,
		Model:          device.Model,
		Status:         device.Status,
		DriverId:       device.DriverId,
		LastLatitude:   device.LastLatitude,
		LastLongitude:  device.LastLongitude,
		LastSyncAt:     device.LastSyncAt,
		BatteryPercent: device.BatteryPercent,
	}
	if device.DriverId != nil {
		if user, err := schema.GetUser(*device.DriverId, s.db); err == nil {
			info.DriverName = user.Name
		}
	}
	return info
}

func (s *DeviceService) List(w http.ResponseWriter, r *http.Request) {
	query := s.db
	if status := r.URL.Query().Get("status"); status != "" {
		if err := schema.CheckValidDeviceStatus(status); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		query = query.Where("status = ?", status)
	}
	if r.URL.Query().Get("unassigned") == "true" {
		query = query.Where("driver_id IS NULL")
	}

	var devices []schema.Device
	result := query.Order("serial_number ASC").Find(&devices)
	if result.Error != nil {
		slog.Error("sql error listing devices", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing devices: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]DeviceInfo, 0, len(devices))
	for _, device := range devices {
		infos = append(infos, s.deviceInfo(device))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *DeviceService) Details(w http.ResponseWriter, r *http.Request) {
	deviceId, err := utils.URLParamUUID(r, "device_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	device, err := schema.GetDevice(deviceId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrDeviceNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error loading device: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, s.deviceInfo(device))
}

type updateDeviceStatusRequest struct {
	Status string `json:"status"`
}

func (s *DeviceService) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	deviceId, err := utils.URLParamUUID(r, "device_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateDeviceStatusRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := schema.CheckValidDeviceStatus(params.Status); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkDeviceExists(txn, deviceId); err != nil {
			return err
		}

		result := txn.Model(&schema.Device{}).Where("id = ?", deviceId).Update("status", params.Status)
		if result.Error != nil {
			slog.Error("sql error updating device status", "device_id", deviceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating device status: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *DeviceService) Delete(w http.ResponseWriter, r *http.Request) {
	deviceId, err := utils.URLParamUUID(r, "device_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		device, err := schema.GetDevice(deviceId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrDeviceNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if device.DriverId != nil {
			return CodedError(errors.New("device is assigned to a driver, unassign it before deleting"), http.StatusUnprocessableEntity)
		}

		if result := txn.Delete(&schema.Device{Id: deviceId}); result.Error != nil {
			slog.Error("sql error deleting device", "device_id", deviceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting device: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

// Assign links a device to a driver. Both sides of any existing links are
// cleared in the same transaction, so a device can never be referenced by two
// drivers no matter what it was previously assigned to.
func (s *DeviceService) Assign(w http.ResponseWriter, r *http.Request) {
	deviceId, err := utils.URLParamUUID(r, "device_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	driverId, err := utils.URLParamUUID(r, "driver_id")
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
		device, err := schema.GetDevice(deviceId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrDeviceNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		driver, err := schema.GetDriver(driverId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrDriverNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if driver.Status != schema.DriverApproved {
			return CodedError(fmt.Errorf("driver has status %v, devices can only be assigned to approved drivers", driver.Status), http.StatusUnprocessableEntity)
		}
		if device.Status == schema.DeviceDisabled {
			return CodedError(errors.New("disabled devices cannot be assigned"), http.StatusUnprocessableEntity)
		}

		// Release the device's current driver, if any.
		result := txn.Model(&schema.Driver{}).Where("device_id = ?", deviceId).Update("device_id", nil)
		if result.Error != nil {
			slog.Error("sql error releasing previous driver of device", "device_id", deviceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		// Release the driver's current device, if any.
		result = txn.Model(&schema.Device{}).Where("driver_id = ?", driverId).Update("driver_id", nil)
		if result.Error != nil {
			slog.Error("sql error releasing previous device of driver", "driver_id", driverId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Model(&schema.Device{}).Where("id = ?", deviceId).Updates(map[string]interface{}{
			"driver_id": driverId,
			"status":    schema.DeviceActive,
		})
		if result.Error != nil {
			slog.Error("sql error assigning device to driver", "device_id", deviceId, "driver_id", driverId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Model(&schema.Driver{}).Where("id = ?", driverId).Update("device_id", deviceId)
		if result.Error != nil {
			slog.Error("sql error linking driver to device", "device_id", deviceId, "driver_id", driverId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := addNotification(txn, driverId, schema.NotificationSystem, "Tablet assigned", fmt.Sprintf("Tablet %v has been assigned to your vehicle.", device.SerialNumber)); err != nil {
			return err
		}
		return logActivity(txn, admin.Id, "device_assigned", "device", deviceId, fmt.Sprintf("assigned to driver %v", driverId))
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error assigning device: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("device assigned", "device_id", deviceId, "driver_id", driverId)

	utils.WriteSuccess(w)
}

func (s *DeviceService) Unassign(w http.ResponseWriter, r *http.Request) {
	deviceId, err := utils.URLParamUUID(r, "device_id")
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
		device, err := schema.GetDevice(deviceId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrDeviceNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if device.DriverId == nil {
			return CodedError(errors.New("device is not assigned to a driver"), http.StatusUnprocessableEntity)
		}

		result := txn.Model(&schema.Driver{}).Where("device_id = ?", deviceId).Update("device_id", nil)
		if result.Error != nil {
			slog.Error("sql error unlinking driver from device", "device_id", deviceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Model(&schema.Device{}).Where("id = ?", deviceId).Update("driver_id", nil)
		if result.Error != nil {
			slog.Error("sql error unassigning device", "device_id", deviceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return logActivity(txn, admin.Id, "device_unassigned", "device", deviceId, "")
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error unassigning device: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type deviceTokenResponse struct {
	AccessToken string `json:"access_token"`
}

// IssueToken mints the credential a tablet is provisioned with. Re-issuing
// invalidates nothing, old tokens simply age out at their expiration.
func (s *DeviceService) IssueToken(w http.ResponseWriter, r *http.Request) {
	deviceId, err := utils.URLParamUUID(r, "device_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := schema.GetDevice(deviceId, s.db); err != nil {
		if errors.Is(err, schema.ErrDeviceNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error issuing device token: %v", err), http.StatusInternalServerError)
		return
	}

	token, err := s.deviceJwt.CreateDeviceJwt(deviceId, 90*24*time.Hour)
	if err != nil {
		http.Error(w, fmt.Sprintf("error issuing device token: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, deviceTokenResponse{AccessToken: token})
}

type LocationEntry struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     *float64  `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *DeviceService) LocationHistory(w http.ResponseWriter, r *http.Request) {
	deviceId, err := utils.URLParamUUID(r, "device_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := s.db.Where("device_id = ?", deviceId)
	if start, ok, err := utils.QueryParamDate(r, "start"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if ok {
		query = query.Where("timestamp >= ?", start)
	}
	if end, ok, err := utils.QueryParamDate(r, "end"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if ok {
		query = query.Where("timestamp < ?", end.AddDate(0, 0, 1))
	}

	var locations []schema.DeviceLocation
	result := query.Order("timestamp DESC").Limit(1000).Find(&locations)
	if result.Error != nil {
		slog.Error("sql error listing device locations", "device_id", deviceId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing device locations: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	entries := make([]LocationEntry, 0, len(locations))
	for _, loc := range locations {
		entries = append(entries, LocationEntry{Latitude: loc.Latitude, Longitude: loc.Longitude, Speed: loc.Speed, Timestamp: loc.Timestamp})
	}
	utils.WriteJsonResponse(w, entries)
}

type syncRequest struct {
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	Speed          *float64 `json:"speed"`
	BatteryPercent *int     `json:"battery_percent"`
}

// Sync is the tablet heartbeat. It stamps the last contact time, which the
// offline sweep uses to flag devices that have gone quiet, and appends to the
// location history when coordinates are reported.
func (s *DeviceService) Sync(w http.ResponseWriter, r *http.Request) {
	deviceId, err := auth.DeviceIdFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params syncRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	now := time.Now().UTC()

	err = s.db.Transaction(func(txn *gorm.DB) error {
		device, err := schema.GetDevice(deviceId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrDeviceNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		updates := map[string]interface{}{"last_sync_at": now}
		if params.Latitude != nil && params.Longitude != nil {
			updates["last_latitude"] = *params.Latitude
			updates["last_longitude"] = *params.Longitude
		}
		if params.BatteryPercent != nil {
			updates["battery_percent"] = *params.BatteryPercent
		}
		// A device that reports in is no longer offline.
		if device.Status == schema.DeviceOffline {
			updates["status"] = schema.DeviceActive
		}

		result := txn.Model(&schema.Device{}).Where("id = ?", deviceId).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating device sync state", "device_id", deviceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if params.Latitude != nil && params.Longitude != nil {
			location := schema.DeviceLocation{
				Id:        uuid.New(),
				DeviceId:  deviceId,
				Latitude:  *params.Latitude,
				Longitude: *params.Longitude,
				Speed:     params.Speed,
				Timestamp: now,
			}
			if result := txn.Create(&location); result.Error != nil {
				slog.Error("sql error appending device location", "device_id", deviceId, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error syncing device: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type PlaylistMedia struct {
	MediaId  uuid.UUID `json:"media_id"`
	Type     string    `json:"type"`
	Url      string    `json:"url"`
	FileName string    `json:"file_name"`
}

type PlaylistEntry struct {
	CampaignId     uuid.UUID       `json:"campaign_id"`
	Name           string          `json:"name"`
	StartTime      string          `json:"start_time"`
	EndTime        string          `json:"end_time"`
	DailyFrequency int             `json:"daily_frequency"`
	Media          []PlaylistMedia `json:"media"`
}

// Playlist returns the approved media of the active campaigns linked to the
// calling device, restricted to campaigns inside their date window. The
// tablet caches this for offline playback.
func (s *DeviceService) Playlist(w http.ResponseWriter, r *http.Request) {
	deviceId, err := auth.DeviceIdFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var links []schema.CampaignDevice
	result := s.db.Where("device_id = ? AND active = ?", deviceId, true).Find(&links)
	if result.Error != nil {
		slog.Error("sql error listing campaigns for device", "device_id", deviceId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error loading playlist: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)

	playlist := make([]PlaylistEntry, 0, len(links))
	for _, link := range links {
		campaign, err := schema.GetCampaign(link.CampaignId, s.db, true)
		if err != nil {
			http.Error(w, fmt.Sprintf("error loading playlist: %v", err), http.StatusInternalServerError)
			return
		}

		if campaign.Status != schema.CampaignActive {
			continue
		}
		if today.Before(campaign.StartDate) || today.After(campaign.EndDate) {
			continue
		}

		entry := PlaylistEntry{
			CampaignId:     campaign.Id,
			Name:           campaign.Name,
			StartTime:      campaign.StartTime,
			EndTime:        campaign.EndTime,
			DailyFrequency: campaign.DailyFrequency,
			Media:          make([]PlaylistMedia, 0, len(campaign.Media)),
		}
		for _, media := range campaign.Media {
			if media.Status != schema.Approved {
				continue
			}
			entry.Media = append(entry.Media, PlaylistMedia{
				MediaId:  media.Id,
				Type:     media.Type,
				Url:      media.Url,
				FileName: media.FileName,
			})
		}
		if len(entry.Media) > 0 {
			playlist = append(playlist, entry)
		}
	}

	utils.WriteJsonResponse(w, playlist)
}

// MarkStaleDevicesOffline flags devices whose last heartbeat is older than
// the threshold. Called periodically from the platform sync loop.
func MarkStaleDevicesOffline(db *gorm.DB, threshold time.Duration) error {
	cutoff := time.Now().UTC().Add(-threshold)

	result := db.Model(&schema.Device{}).
		Where("status = ?", schema.DeviceActive).
		Where("last_sync_at IS NOT NULL AND last_sync_at < ?", cutoff).
		Update("status", schema.DeviceOffline)
	if result.Error != nil {
		slog.Error("sql error marking stale devices offline", "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if result.RowsAffected > 0 {
		slog.Info("marked stale devices offline", "count", result.RowsAffected)
	}
	return nil
}
