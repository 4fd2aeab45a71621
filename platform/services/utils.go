package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"admotion_platform/platform/schema"
	"admotion_platform/platform/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

func checkUserExists(txn *gorm.DB, userId uuid.UUID) error {
	if _, err := schema.GetUser(userId, txn); err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkCompanyExists(txn *gorm.DB, companyId uuid.UUID) error {
	if _, err := schema.GetCompany(companyId, txn); err != nil {
		if errors.Is(err, schema.ErrCompanyNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkDriverExists(txn *gorm.DB, driverId uuid.UUID) error {
	if _, err := schema.GetDriver(driverId, txn); err != nil {
		if errors.Is(err, schema.ErrDriverNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkDeviceExists(txn *gorm.DB, deviceId uuid.UUID) error {
	if _, err := schema.GetDevice(deviceId, txn); err != nil {
		if errors.Is(err, schema.ErrDeviceNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkCampaignExists(txn *gorm.DB, campaignId uuid.UUID) error {
	if _, err := schema.GetCampaign(campaignId, txn, false); err != nil {
		if errors.Is(err, schema.ErrCampaignNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkDiskUsage(store storage.Storage) error {
	stats, err := store.Usage()
	if err != nil {
		slog.Error("unable to get disk usage from storage", "error", err)
		return CodedError(errors.New("unable to get disk usage"), http.StatusInternalServerError)
	}
	oneMib := uint64(1024 * 1024)
	// Either 20% disk needs to be free or 20Gb (in case the disk is very large)
	threshold := min(stats.TotalBytes/5, 20*1024*oneMib)
	if stats.FreeBytes < threshold {
		used := (stats.TotalBytes - stats.FreeBytes) / oneMib
		total := stats.TotalBytes / oneMib
		delta := (threshold - stats.FreeBytes) / oneMib
		return CodedError(fmt.Errorf("insufficient disk space available, usage: %d/%d Mib, please clear %d Mib", used, total, delta), http.StatusInsufficientStorage)
	}
	return nil
}

func checkSufficientStorage(store storage.Storage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			if err := checkDiskUsage(store); err != nil {
				slog.Error(err.Error())
				http.Error(w, err.Error(), GetResponseCode(err))
				return
			}
			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(handler)
	}
}

// addNotification queues an in-app notification inside the caller's
// transaction so it is rolled back with the action that triggered it.
func addNotification(txn *gorm.DB, userId uuid.UUID, kind, title, message string) error {
	notification := schema.Notification{
		Id:        uuid.New(),
		UserId:    userId,
		Kind:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	result := txn.Create(&notification)
	if result.Error != nil {
		slog.Error("sql error creating notification", "user_id", userId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	return nil
}

// logActivity records an action against an entity in the activity log.
func logActivity(txn *gorm.DB, userId uuid.UUID, action, entity string, entityId uuid.UUID, description string) error {
	entry := schema.ActivityLog{
		Id:          uuid.New(),
		UserId:      &userId,
		Action:      action,
		Entity:      entity,
		EntityId:    &entityId,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	result := txn.Create(&entry)
	if result.Error != nil {
		slog.Error("sql error creating activity log entry", "action", action, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	return nil
}
