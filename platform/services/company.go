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

type CompanyService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *CompanyService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.CompanyOnly())

		r.Get("/me", s.Profile)
		r.Post("/me", s.UpdateProfile)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Get("/list", s.List)
		r.Get("/{company_id}", s.Details)
		r.Post("/{company_id}/approve", s.Approve)
		r.Post("/{company_id}/reject", s.Reject)
		r.Post("/{company_id}/block", s.Block)
		r.Post("/{company_id}/unblock", s.Unblock)
	})

	return r
}

type CompanyInfo struct {
	Id        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Cnpj      string    `json:"cnpj"`
	LegalName string    `json:"legal_name"`
	TradeName string    `json:"trade_name"`
	Instagram string    `json:"instagram"`

	Status      string     `json:"status"`
	BlockReason string     `json:"block_reason,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at"`
}

func companyInfo(user schema.User, company schema.Company) CompanyInfo {
	return CompanyInfo{
		Id:          company.Id,
		Name:        user.Name,
		Email:       user.Email,
		Phone:       user.Phone,
		Cnpj:        validation.FormatCnpj(company.Cnpj),
		LegalName:   company.LegalName,
		TradeName:   company.TradeName,
		Instagram:   company.Instagram,
		Status:      company.Status,
		BlockReason: company.BlockReason,
		ApprovedAt:  company.ApprovedAt,
	}
}

func (s *CompanyService) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	company, err := schema.GetCompany(user.Id, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrCompanyNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error loading company profile: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, companyInfo(user, company))
}

type updateCompanyRequest struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	TradeName string `json:"trade_name"`
	Instagram string `json:"instagram"`
}

// UpdateProfile lets a company edit its presentation fields. The cnpj and
// legal name are fixed at registration and only an admin process can change
// them.
func (s *CompanyService) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params updateCompanyRequest
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
		company, err := schema.GetCompany(user.Id, txn)
		if err != nil {
			if errors.Is(err, schema.ErrCompanyNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if params.Name != "" {
			user.Name = params.Name
		}
		if params.Phone != "" {
			user.Phone = params.Phone
		}
		if result := txn.Save(&user); result.Error != nil {
			slog.Error("sql error updating company user row", "company_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		company.TradeName = params.TradeName
		company.Instagram = params.Instagram
		if result := txn.Save(&company); result.Error != nil {
			slog.Error("sql error updating company profile", "company_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating company profile: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *CompanyService) List(w http.ResponseWriter, r *http.Request) {
	query := s.db
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("companies.status = ?", status)
	}

	var companies []schema.Company
	result := query.Find(&companies)
	if result.Error != nil {
		slog.Error("sql error listing companies", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing companies: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]CompanyInfo, 0, len(companies))
	for _, company := range companies {
		user, err := schema.GetUser(company.Id, s.db)
		if err != nil {
			http.Error(w, fmt.Sprintf("error listing companies: %v", err), http.StatusInternalServerError)
			return
		}
		infos = append(infos, companyInfo(user, company))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *CompanyService) Details(w http.ResponseWriter, r *http.Request) {
	companyId, err := utils.URLParamUUID(r, "company_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	company, err := schema.GetCompany(companyId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrCompanyNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error loading company: %v", err), http.StatusInternalServerError)
		return
	}

	user, err := schema.GetUser(companyId, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading company: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, companyInfo(user, company))
}

// Approve moves a company out of the approval queue. Only companies awaiting
// approval can be approved; the company is notified of the decision.
func (s *CompanyService) Approve(w http.ResponseWriter, r *http.Request) {
	companyId, err := utils.URLParamUUID(r, "company_id")
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
		company, err := schema.GetCompany(companyId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrCompanyNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if company.Status != schema.AwaitingApproval {
			return CodedError(fmt.Errorf("company has status %v, only companies awaiting approval can be approved", company.Status), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		company.Status = schema.CompanyActive
		company.ApprovedBy = &admin.Id
		company.ApprovedAt = &now
		if result := txn.Save(&company); result.Error != nil {
			slog.Error("sql error approving company", "company_id", companyId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := addNotification(txn, companyId, schema.NotificationApproval, "Account approved", "Your company account has been approved. You can now create campaigns."); err != nil {
			return err
		}
		return logActivity(txn, admin.Id, "company_approved", "company", companyId, "")
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error approving company: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("company approved", "company_id", companyId, "admin_id", admin.Id)

	utils.WriteSuccess(w)
}

type decisionRequest struct {
	Reason string `json:"reason"`
}

// Reject removes a company that failed review. The rejection deletes the
// account entirely so the email and cnpj can be used to register again.
func (s *CompanyService) Reject(w http.ResponseWriter, r *http.Request) {
	companyId, err := utils.URLParamUUID(r, "company_id")
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
		http.Error(w, "a reason is required to reject a company", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		company, err := schema.GetCompany(companyId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrCompanyNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if company.Status != schema.AwaitingApproval {
			return CodedError(fmt.Errorf("company has status %v, only companies awaiting approval can be rejected", company.Status), http.StatusUnprocessableEntity)
		}

		if result := txn.Delete(&schema.User{Id: companyId}); result.Error != nil {
			slog.Error("sql error deleting rejected company", "company_id", companyId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return logActivity(txn, admin.Id, "company_rejected", "company", companyId, params.Reason)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error rejecting company: %v", err), GetResponseCode(err))
		return
	}

	if err := s.userAuth.DeleteIdentity(companyId); err != nil {
		http.Error(w, fmt.Sprintf("error rejecting company: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}

func (s *CompanyService) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool, reason string) {
	companyId, err := utils.URLParamUUID(r, "company_id")
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
		company, err := schema.GetCompany(companyId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrCompanyNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		var action, title, message, userStatus string
		if blocked {
			if company.Status == schema.CompanyBlocked {
				return CodedError(errors.New("company is already blocked"), http.StatusUnprocessableEntity)
			}
			company.Status = schema.CompanyBlocked
			company.BlockReason = reason
			action, userStatus = "company_blocked", schema.UserBlocked
			title, message = "Account blocked", fmt.Sprintf("Your company account has been blocked: %v", reason)
		} else {
			if company.Status != schema.CompanyBlocked {
				return CodedError(errors.New("company is not blocked"), http.StatusUnprocessableEntity)
			}
			company.Status = schema.CompanyActive
			company.BlockReason = ""
			action, userStatus = "company_unblocked", schema.UserActive
			title, message = "Account unblocked", "Your company account has been unblocked."
		}

		if result := txn.Save(&company); result.Error != nil {
			slog.Error("sql error updating company block status", "company_id", companyId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		// The login gate checks the user row status.
		result := txn.Model(&schema.User{Id: companyId}).Update("status", userStatus)
		if result.Error != nil {
			slog.Error("sql error updating user status for company", "company_id", companyId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if err := addNotification(txn, companyId, schema.NotificationAlert, title, message); err != nil {
			return err
		}
		return logActivity(txn, admin.Id, action, "company", companyId, reason)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating company: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *CompanyService) Block(w http.ResponseWriter, r *http.Request) {
	var params decisionRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}
	if params.Reason == "" {
		http.Error(w, "a reason is required to block a company", http.StatusUnprocessableEntity)
		return
	}
	s.setBlocked(w, r, true, params.Reason)
}

func (s *CompanyService) Unblock(w http.ResponseWriter, r *http.Request) {
	s.setBlocked(w, r, false, "")
}
