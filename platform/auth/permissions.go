package auth

import (
	"errors"
	"fmt"
	"net/http"

	"admotion_platform/platform/schema"
	"admotion_platform/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func activeAdmin(userId uuid.UUID, db *gorm.DB) (bool, error) {
	admin, err := schema.GetAdmin(userId, db)
	if err != nil {
		if errors.Is(err, schema.ErrAdminNotFound) {
			return false, nil
		}
		return false, err
	}
	return admin.Active, nil
}

func AdminOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if user.Role != schema.RoleAdmin {
				http.Error(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
				return
			}

			active, err := activeAdmin(user.Id, db)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if !active {
				http.Error(w, fmt.Sprintf("admin account %v is deactivated", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

func SuperAdminOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			admin, err := schema.GetAdmin(user.Id, db)
			if err != nil {
				if errors.Is(err, schema.ErrAdminNotFound) {
					http.Error(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
					return
				}
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !admin.Active || admin.AccessLevel != schema.AccessSuperAdmin {
				http.Error(w, fmt.Sprintf("user %v is not a super admin", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

func roleOnly(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if user.Role != role {
				http.Error(w, fmt.Sprintf("endpoint requires the %v role", role), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

func CompanyOnly() func(http.Handler) http.Handler {
	return roleOnly(schema.RoleCompany)
}

func DriverOnly() func(http.Handler) http.Handler {
	return roleOnly(schema.RoleDriver)
}

type campaignPermission int // Private so that no other permissions can be defined

const (
	NoPermission    campaignPermission = 0
	ReadPermission  campaignPermission = 1
	OwnerPermission campaignPermission = 2
)

func campaignPermissionToString(perm campaignPermission) string {
	switch perm {
	case NoPermission:
		return "None"
	case ReadPermission:
		return "Read"
	case OwnerPermission:
		return "Owner"
	default:
		return "invalid permission"
	}
}

// GetCampaignPermissions resolves what a user may do with a campaign. Admins
// and the owning company get full access. Drivers whose device carries the
// campaign get read access so they can see what plays on their tablet.
func GetCampaignPermissions(campaignId uuid.UUID, user schema.User, db *gorm.DB) (campaignPermission, error) {
	if user.Role == schema.RoleAdmin {
		return OwnerPermission, nil
	}

	campaign, err := schema.GetCampaign(campaignId, db, false)
	if err != nil {
		return NoPermission, err
	}

	if user.Role == schema.RoleCompany && campaign.CompanyId == user.Id {
		return OwnerPermission, nil
	}

	if user.Role == schema.RoleDriver {
		driver, err := schema.GetDriver(user.Id, db)
		if err != nil {
			return NoPermission, err
		}
		if driver.DeviceId == nil {
			return NoPermission, nil
		}

		var link schema.CampaignDevice
		result := db.Limit(1).Find(&link, "campaign_id = ? AND device_id = ?", campaignId, *driver.DeviceId)
		if result.Error != nil {
			return NoPermission, schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 1 {
			return ReadPermission, nil
		}
	}

	return NoPermission, nil
}

func CampaignPermissionOnly(db *gorm.DB, minPermission campaignPermission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			campaignId, err := utils.URLParamUUID(r, "campaign_id")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			permission, err := GetCampaignPermissions(campaignId, user, db)
			if err != nil {
				if errors.Is(err, schema.ErrCampaignNotFound) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if permission >= minPermission {
				next.ServeHTTP(w, r)
				return
			}

			required, actual := campaignPermissionToString(minPermission), campaignPermissionToString(permission)
			http.Error(w, fmt.Sprintf("user %v does not have required permission for campaign %v (required=%v, actual=%v)", user.Id, campaignId, required, actual), http.StatusForbidden)
		}
		return http.HandlerFunc(hfn)
	}
}
