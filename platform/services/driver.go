package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"admotion_platform/platform/auth"
	"admotion_platform/platform/schema"
	"admotion_platform/platform/validation"
	"admotion_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DriverService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *DriverService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.DriverOnly())

		r.Get("/me", s.Profile)
		r.Post("/me", s.UpdateProfile)
		r.Get("/me/earnings", s.Earnings)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Get("/list", s.List)
		r.Get("/{driver_id}", s.Details)
		r.Post("/{driver_id}/approve", s.Approve)
		r.Post("/{driver_id}/reject", s.Reject)
		r.Post("/{driver_id}/block", s.Block)
		r.Post("/{driver_id}/unblock", s.Unblock)
	})

	return r
}

type DriverInfo struct {
	Id      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Phone   string    `json:"phone"`
	Cpf     string    `json:"cpf"`
	Vehicle string    `json:"vehicle"`
	Plate   string    `json:"plate"`

	BankAccount string `json:"bank_account,omitempty"`
	PixKey      string `json:"pix_key,omitempty"`

	Status      string     `json:"status"`
	BlockReason string     `json:"block_reason,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at"`

	DeviceId *uuid.UUID `json:"device_id"`
}

func driverInfo(user schema.User, driver schema.Driver) DriverInfo {
	return DriverInfo{
		Id:          driver.Id,
		Name:        user.Name,
		Email:       user.Email,
		Phone:       driver.Phone,
		Cpf:         validation.FormatCpf(driver.Cpf),
		Vehicle:     driver.Vehicle,
		Plate:       driver.Plate,
		BankAccount: driver.BankAccount,
		PixKey:      driver.PixKey,
		Status:      driver.Status,
		BlockReason: driver.BlockReason,
		ApprovedAt:  driver.ApprovedAt,
		DeviceId:    driver.DeviceId,
	}
}

func (s *DriverService) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	driver, err := schema.GetDriver(user.Id, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrDriverNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error loading driver profile: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, driverInfo(user, driver))
}

type updateDriverRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Vehicle     string `json:"vehicle"`
	Plate       string `json:"plate"`
	BankAccount string `json:"bank_account"`
	PixKey      string `json:"pix_key"`
}

func (s *DriverService) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params updateDriverRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Phone != "" {
		if err := validation.CheckValidPhone(params.Phone); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		driver, err := schema.GetDriver(user.Id, txn)
		if err != nil {
			if errors.Is(err, schema.ErrDriverNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if params.Name != "" {
			user.Name = params.Name
			if result := txn.Save(&user); result.Error != nil {
				slog.Error("sql error updating driver user row", "driver_id", user.Id, "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		if params.Phone != "" {
			driver.Phone = validation.NormalizeDigits(params.Phone)
		}
		if params.Vehicle != "" {
			driver.Vehicle = params.Vehicle
		}
		if params.Plate != "" {
			driver.Plate = params.Plate
		}
		driver.BankAccount = params.BankAccount
		driver.PixKey = params.PixKey

		if result := txn.Save(&driver); result.Error != nil {
			slog.Error("sql error updating driver profile", "driver_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating driver profile: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type EarningEntry struct {
	Date   time.Time `json:"date"`
	Views  int64     `json:"views"`
	Amount float64   `json:"amount"`
}

type earningsResponse struct {
	Total    float64        `json:"total"`
	Views    int64          `json:"views"`
	Earnings []EarningEntry `json:"earnings"`
}

// Earnings returns the driver's daily earnings, newest first. Optional start
// and end query params (YYYY-MM-DD) bound the period.
func (s *DriverService) Earnings(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db.Where("driver_id = ?", user.Id)

	if start, ok, err := utils.QueryParamDate(r, "start"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if ok {
		query = query.Where("date >= ?", start)
	}
	if end, ok, err := utils.QueryParamDate(r, "end"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if ok {
		query = query.Where("date <= ?", end)
	}

	var earnings []schema.DriverEarning
	result := query.Order("date DESC").Find(&earnings)
	if result.Error != nil {
		slog.Error("sql error listing driver earnings", "driver_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing earnings: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	res := earningsResponse{Earnings: make([]EarningEntry, 0, len(earnings))}
	for _, earning := range earnings {
		res.Total += earning.Amount
		res.Views += earning.Views
		res.Earnings = append(res.Earnings, EarningEntry{Date: earning.Date, Views: earning.Views, Amount: earning.Amount})
	}

	utils.WriteJsonResponse(w, res)
}

func (s *DriverService) List(w http.ResponseWriter, r *http.Request) {
	query := s.db
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("drivers.status = ?", status)
	}

	var drivers []schema.Driver
	result := query.Find(&drivers)
	if result.Error != nil {
		slog.Error("sql error listing drivers", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing drivers: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]DriverInfo, 0, len(drivers))
	for _, driver := range drivers {
		user, err := schema.GetUser(driver.Id, s.db)
		if err != nil {
			http.Error(w, fmt.Sprintf("error listing drivers: %v", err), http.StatusInternalServerError)
			return
		}
		infos = append(infos, driverInfo(user, driver))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *DriverService) Details(w http.ResponseWriter, r *http.Request) {
	driverId, err := utils.URLParamUUID(r, "driver_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	driver, err := schema.GetDriver(driverId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrDriverNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error loading driver: %v", err), http.StatusInternalServerError)
		return
	}

	user, err := schema.GetUser(driverId, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading driver: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, driverInfo(user, driver))
}

func (s *DriverService) Approve(w http.ResponseWriter, r *http.Request) {
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
		driver, err := schema.GetDriver(driverId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrDriverNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if driver.Status != schema.AwaitingApproval {
			return CodedError(fmt.Errorf("driver has status %v, only drivers awaiting approval can be approved", driver.Status), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		driver.Status = schema.DriverApproved
		driver.ApprovedBy = &admin.Id
		driver.ApprovedAt = &now
		if result := txn.Save(&driver); result.Error != nil {
			slog.Error("sql error approving driver", "driver_id", driverId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := addNotification(txn, driverId, schema.NotificationApproval, "Account approved", "Your driver account has been approved. A tablet will be assigned to your vehicle."); err != nil {
			return err
		}
		return logActivity(txn, admin.Id, "driver_approved", "driver", driverId, "")
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error approving driver: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("driver approved", "driver_id", driverId, "admin_id", admin.Id)

	utils.WriteSuccess(w)
}

func (s *DriverService) Reject(w http.ResponseWriter, r *http.Request) {
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

	var params decisionRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Reason == "" {
		http.Error(w, "a reason is required to reject a driver", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		driver, err := schema.GetDriver(driverId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrDriverNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if driver.Status != schema.AwaitingApproval {
			return CodedError(fmt.Errorf("driver has status %v, only drivers awaiting approval can be rejected", driver.Status), http.StatusUnprocessableEntity)
		}

		if result := txn.Delete(&schema.User{Id: driverId}); result.Error != nil {
			slog.Error("sql error deleting rejected driver", "driver_id", driverId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return logActivity(txn, admin.Id, "driver_rejected", "driver", driverId, params.Reason)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error rejecting driver: %v", err), GetResponseCode(err))
		return
	}

	if err := s.userAuth.DeleteIdentity(driverId); err != nil {
		http.Error(w, fmt.Sprintf("error rejecting driver: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}

func (s *DriverService) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool, reason string) {
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
		driver, err := schema.GetDriver(driverId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrDriverNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		var action, title, message, userStatus string
		if blocked {
			if driver.Status == schema.DriverBlocked {
				return CodedError(errors.New("driver is already blocked"), http.StatusUnprocessableEntity)
			}
			driver.Status = schema.DriverBlocked
			driver.BlockReason = reason
			action, userStatus = "driver_blocked", schema.UserBlocked
			title, message = "Account blocked", fmt.Sprintf("Your driver account has been blocked: %v", reason)

			// A blocked driver must not keep showing ads, release the tablet.
			if driver.DeviceId != nil {
				result := txn.Model(&schema.Device{}).Where("id = ?", *driver.DeviceId).Update("driver_id", nil)
				if result.Error != nil {
					slog.Error("sql error releasing device from blocked driver", "driver_id", driverId, "error", result.Error)
					return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
				}
				driver.DeviceId = nil
			}
		} else {
			if driver.Status != schema.DriverBlocked {
				return CodedError(errors.New("driver is not blocked"), http.StatusUnprocessableEntity)
			}
			driver.Status = schema.DriverApproved
			driver.BlockReason = ""
			action, userStatus = "driver_unblocked", schema.UserActive
			title, message = "Account unblocked", "Your driver account has been unblocked."
		}

		if result := txn.Save(&driver); result.Error != nil {
			slog.Error("sql error updating driver block status", "driver_id", driverId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result := txn.Model(&schema.User{Id: driverId}).Update("status", userStatus)
		if result.Error != nil {
			slog.Error("sql error updating user status for driver", "driver_id", driverId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := addNotification(txn, driverId, schema.NotificationAlert, title, message); err != nil {
			return err
		}
		return logActivity(txn, admin.Id, action, "driver", driverId, reason)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating driver: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *DriverService) Block(w http.ResponseWriter, r *http.Request) {
	var params decisionRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Reason == "" {
		http.Error(w, "a reason is required to block a driver", http.StatusUnprocessableEntity)
		return
	}
	s.setBlocked(w, r, true, params.Reason)
}

func (s *DriverService) Unblock(w http.ResponseWriter, r *http.Request) {
	s.setBlocked(w, r, false, "")
}
