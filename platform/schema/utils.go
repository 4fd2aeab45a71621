package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrCompanyNotFound      = errors.New("company not found")
	ErrDriverNotFound       = errors.New("driver not found")
	ErrAdminNotFound        = errors.New("admin not found")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrMediaNotFound        = errors.New("media not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPayoutNotFound       = errors.New("payout not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrTicketNotFound       = errors.New("support ticket not found")
	ErrSettingNotFound      = errors.New("system setting not found")
	ErrDbAccessFailed       = errors.New("db access failed")

	ErrRegistrationComplete = errors.New("registration is already complete for this user")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetCompany(companyId uuid.UUID, db *gorm.DB) (Company, error) {
	var company Company

	result := db.First(&company, "id = ?", companyId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return company, ErrCompanyNotFound
		}
		slog.Error("sql error in get company", "company_id", companyId, "error", result.Error)
		return company, ErrDbAccessFailed
	}

	return company, nil
}

func GetDriver(driverId uuid.UUID, db *gorm.DB) (Driver, error) {
	var driver Driver

	result := db.First(&driver, "id = ?", driverId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return driver, ErrDriverNotFound
		}
		slog.Error("sql error in get driver", "driver_id", driverId, "error", result.Error)
		return driver, ErrDbAccessFailed
	}

	return driver, nil
}

func GetAdmin(adminId uuid.UUID, db *gorm.DB) (Admin, error) {
	var admin Admin

	result := db.First(&admin, "id = ?", adminId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return admin, ErrAdminNotFound
		}
		slog.Error("sql error in get admin", "admin_id", adminId, "error", result.Error)
		return admin, ErrDbAccessFailed
	}

	return admin, nil
}

func GetDevice(deviceId uuid.UUID, db *gorm.DB) (Device, error) {
	var device Device

	result := db.First(&device, "id = ?", deviceId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return device, ErrDeviceNotFound
		}
		slog.Error("sql error in get device", "device_id", deviceId, "error", result.Error)
		return device, ErrDbAccessFailed
	}

	return device, nil
}

func GetCampaign(campaignId uuid.UUID, db *gorm.DB, loadMedia bool) (Campaign, error) {
	var campaign Campaign

	query := db
	if loadMedia {
		query = query.Preload("Media")
	}

	result := query.First(&campaign, "id = ?", campaignId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return campaign, ErrCampaignNotFound
		}
		slog.Error("sql error in get campaign", "campaign_id", campaignId, "error", result.Error)
		return campaign, ErrDbAccessFailed
	}

	return campaign, nil
}

func GetMedia(mediaId uuid.UUID, db *gorm.DB) (Media, error) {
	var media Media

	result := db.First(&media, "id = ?", mediaId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return media, ErrMediaNotFound
		}
		slog.Error("sql error in get media", "media_id", mediaId, "error", result.Error)
		return media, ErrDbAccessFailed
	}

	return media, nil
}

func GetPlan(planId uuid.UUID, db *gorm.DB) (Plan, error) {
	var plan Plan

	result := db.First(&plan, "id = ?", planId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return plan, ErrPlanNotFound
		}
		slog.Error("sql error in get plan", "plan_id", planId, "error", result.Error)
		return plan, ErrDbAccessFailed
	}

	return plan, nil
}

func GetTicket(ticketId uuid.UUID, db *gorm.DB, loadMessages bool) (SupportTicket, error) {
	var ticket SupportTicket

	query := db
	if loadMessages {
		query = query.Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		})
	}

	result := query.First(&ticket, "id = ?", ticketId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ticket, ErrTicketNotFound
		}
		slog.Error("sql error in get ticket", "ticket_id", ticketId, "error", result.Error)
		return ticket, ErrDbAccessFailed
	}

	return ticket, nil
}

// ResolveRole returns the effective role for an identity id along with the
// owning user row. Identities with no user row resolve to RoleNone.
func ResolveRole(userId uuid.UUID, db *gorm.DB) (string, User, error) {
	var user User

	result := db.Limit(1).Find(&user, "id = ?", userId)
	if result.Error != nil {
		slog.Error("sql error resolving user role", "user_id", userId, "error", result.Error)
		return RoleNone, user, ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return RoleNone, user, nil
	}

	return user.Role, user, nil
}
