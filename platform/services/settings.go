package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"admotion_platform/platform/auth"
	"admotion_platform/platform/schema"
	"admotion_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type SettingsService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *SettingsService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/public", s.ListPublic)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Get("/list", s.List)
		r.Post("/{key}", s.Update)
	})

	return r
}

// defaultSettings seeds the settings table on first boot. Existing rows are
// never overwritten, so admin edits survive restarts.
const defaultSettings = `
- key: platform.name
  value: AdMotion
  type: string
  description: Display name shown in client applications.
  category: general
  editable: true
- key: platform.support_email
  value: suporte@admotion.com.br
  type: string
  description: Contact address surfaced on the help pages.
  category: general
  editable: true
- key: devices.offline_threshold_minutes
  value: "10"
  type: number
  description: Minutes without a sync before a device is marked offline.
  category: devices
  editable: true
- key: devices.location_history_days
  value: "90"
  type: number
  description: Days of location history retained per device.
  category: devices
  editable: true
- key: campaigns.default_daily_frequency
  value: "10"
  type: number
  description: Default number of daily plays for new campaigns.
  category: campaigns
  editable: true
- key: finance.default_value_per_view
  value: "0.05"
  type: number
  description: Fallback per-view rate when a campaign does not set one.
  category: finance
  editable: true
- key: finance.payout_minimum
  value: "50.00"
  type: number
  description: Minimum accumulated amount before a payout is generated.
  category: finance
  editable: true
- key: uploads.max_media_size_mb
  value: "200"
  type: number
  description: Maximum size accepted for a single media upload.
  category: uploads
  editable: false
- key: registration.direct_signup
  value: "true"
  type: boolean
  description: Whether companies and drivers can self register.
  category: general
  editable: true
`

type settingDefault struct {
	Key         string `yaml:"key"`
	Value       string `yaml:"value"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Editable    bool   `yaml:"editable"`
}

// SeedDefaultSettings inserts any missing default settings. Called at startup.
func SeedDefaultSettings(db *gorm.DB) error {
	var defaults []settingDefault
	if err := yaml.Unmarshal([]byte(defaultSettings), &defaults); err != nil {
		return fmt.Errorf("error parsing default settings: %w", err)
	}

	return db.Transaction(func(txn *gorm.DB) error {
		for _, def := range defaults {
			var existing schema.SystemSetting
			result := txn.Limit(1).Find(&existing, "key = ?", def.Key)
			if result.Error != nil {
				return fmt.Errorf("error checking setting %v: %w", def.Key, result.Error)
			}
			if result.RowsAffected != 0 {
				continue
			}

			setting := schema.SystemSetting{
				Id:          uuid.New(),
				Key:         def.Key,
				Value:       def.Value,
				Type:        def.Type,
				Description: def.Description,
				Category:    def.Category,
				Editable:    def.Editable,
			}
			if result := txn.Create(&setting); result.Error != nil {
				return fmt.Errorf("error seeding setting %v: %w", def.Key, result.Error)
			}
		}
		return nil
	})
}

// GetSettingNumber reads a numeric setting, falling back when missing or malformed.
func GetSettingNumber(db *gorm.DB, key string, fallback float64) float64 {
	var setting schema.SystemSetting
	result := db.Limit(1).Find(&setting, "key = ?", key)
	if result.Error != nil || result.RowsAffected == 0 {
		return fallback
	}
	value, err := strconv.ParseFloat(setting.Value, 64)
	if err != nil {
		slog.Error("setting has a non numeric value", "key", key, "value", setting.Value)
		return fallback
	}
	return value
}

type SettingInfo struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Editable    bool   `json:"editable"`
}

func settingInfos(settings []schema.SystemSetting) []SettingInfo {
	infos := make([]SettingInfo, 0, len(settings))
	for _, setting := range settings {
		infos = append(infos, SettingInfo{
			Key:         setting.Key,
			Value:       setting.Value,
			Type:        setting.Type,
			Description: setting.Description,
			Category:    setting.Category,
			Editable:    setting.Editable,
		})
	}
	return infos
}

func (s *SettingsService) List(w http.ResponseWriter, r *http.Request) {
	query := s.db
	if category := r.URL.Query().Get("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var settings []schema.SystemSetting
	result := query.Order("category, key").Find(&settings)
	if result.Error != nil {
		slog.Error("sql error listing settings", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing settings: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, settingInfos(settings))
}

// ListPublic exposes the general category to any authenticated user.
func (s *SettingsService) ListPublic(w http.ResponseWriter, r *http.Request) {
	var settings []schema.SystemSetting
	result := s.db.Where("category = ?", "general").Order("key").Find(&settings)
	if result.Error != nil {
		slog.Error("sql error listing settings", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing settings: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, settingInfos(settings))
}

type updateSettingRequest struct {
	Value string `json:"value"`
}

func (s *SettingsService) Update(w http.ResponseWriter, r *http.Request) {
	key, err := utils.URLParam(r, "key")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateSettingRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var setting schema.SystemSetting
		result := txn.Limit(1).Find(&setting, "key = ?", key)
		if result.Error != nil {
			slog.Error("sql error loading setting", "key", key, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(fmt.Errorf("no setting with key '%v'", key), http.StatusNotFound)
		}

		if !setting.Editable {
			return CodedError(fmt.Errorf("setting '%v' cannot be edited", key), http.StatusForbidden)
		}

		switch setting.Type {
		case schema.SettingNumber:
			if _, err := strconv.ParseFloat(params.Value, 64); err != nil {
				return CodedError(fmt.Errorf("setting '%v' requires a numeric value", key), http.StatusUnprocessableEntity)
			}
		case schema.SettingBoolean:
			if params.Value != "true" && params.Value != "false" {
				return CodedError(fmt.Errorf("setting '%v' requires true or false", key), http.StatusUnprocessableEntity)
			}
		case schema.SettingJson:
			if !json.Valid([]byte(params.Value)) {
				return CodedError(fmt.Errorf("setting '%v' requires valid json", key), http.StatusUnprocessableEntity)
			}
		}

		setting.Value = params.Value
		if result := txn.Save(&setting); result.Error != nil {
			slog.Error("sql error updating setting", "key", key, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating setting: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
