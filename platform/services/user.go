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
	"admotion_platform/platform/validation"
	"admotion_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if s.userAuth.AllowDirectSignup() {
			r.Post("/signup/company", s.SignupCompany)
			r.Post("/signup/driver", s.SignupDriver)
		}

		// Brute force protection on the credential endpoints.
		r.With(httprate.LimitByIP(10, time.Minute)).Get("/login", s.LoginWithEmail)
		r.With(httprate.LimitByIP(10, time.Minute)).Post("/login-with-token", s.LoginWithToken)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/info", s.Info)

		r.Post("/complete-registration/company", s.CompleteCompanyRegistration)
		r.Post("/complete-registration/driver", s.CompleteDriverRegistration)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Get("/list", s.List)
		r.Post("/create-admin", s.CreateAdmin)

		r.Delete("/{user_id}", s.DeleteUser)
		r.Post("/{user_id}/block", s.BlockUser)
		r.Post("/{user_id}/unblock", s.UnblockUser)
	})

	return r
}

type companyProfileRequest struct {
	Cnpj      string `json:"cnpj"`
	LegalName string `json:"legal_name"`
	TradeName string `json:"trade_name"`
	Instagram string `json:"instagram"`
}

func (p *companyProfileRequest) check() error {
	if err := validation.CheckValidCnpj(p.Cnpj); err != nil {
		return err
	}
	if strings.TrimSpace(p.LegalName) == "" {
		return errors.New("legal name is required")
	}
	return nil
}

type driverProfileRequest struct {
	Cpf         string `json:"cpf"`
	Vehicle     string `json:"vehicle"`
	Plate       string `json:"plate"`
	BankAccount string `json:"bank_account"`
	PixKey      string `json:"pix_key"`
}

func (p *driverProfileRequest) check() error {
	if err := validation.CheckValidCpf(p.Cpf); err != nil {
		return err
	}
	if strings.TrimSpace(p.Vehicle) == "" {
		return errors.New("vehicle is required")
	}
	if strings.TrimSpace(p.Plate) == "" {
		return errors.New("license plate is required")
	}
	return nil
}

type accountRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

func (p *accountRequest) check() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if err := validation.CheckValidEmail(p.Email); err != nil {
		return err
	}
	if err := validation.CheckValidPassword(p.Password); err != nil {
		return err
	}
	if err := validation.CheckValidPhone(p.Phone); err != nil {
		return err
	}
	return nil
}

type signupResponse struct {
	UserId uuid.UUID `json:"user_id"`
}

// finishRegistration runs the final steps of the registration saga: claim the
// user row for the given role and insert the role profile, in one
// transaction. If the steps fail the previously created identity is removed
// so a retry does not hit a stale email conflict.
func (s *UserService) finishRegistration(userId uuid.UUID, account schema.User, role string, addProfile func(txn *gorm.DB) error) error {
	err := s.db.Transaction(func(txn *gorm.DB) error {
		var user schema.User
		result := txn.Limit(1).Find(&user, "id = ?", userId)
		if result.Error != nil {
			slog.Error("sql error finding user row during registration", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result.RowsAffected == 0 {
			user = schema.User{
				Id:     userId,
				Role:   role,
				Email:  account.Email,
				Name:   account.Name,
				Phone:  account.Phone,
				Status: schema.UserActive,
			}
			if createResult := txn.Create(&user); createResult.Error != nil {
				slog.Error("sql error creating user row during registration", "user_id", userId, "error", createResult.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		} else {
			if user.Role != schema.RoleNone {
				return CodedError(fmt.Errorf("%w: %v", schema.ErrRegistrationComplete, userId), http.StatusConflict)
			}
			user.Role = role
			user.Name = account.Name
			if account.Phone != "" {
				user.Phone = account.Phone
			}
			if saveResult := txn.Save(&user); saveResult.Error != nil {
				slog.Error("sql error claiming user row during registration", "user_id", userId, "error", saveResult.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		return addProfile(txn)
	})

	if err != nil {
		// Do not compensate a completed registration. Every other failure,
		// duplicate cnpj/cpf included, removes the identity so the email can
		// be registered again.
		if !errors.Is(err, schema.ErrRegistrationComplete) {
			if delErr := s.userAuth.DeleteIdentity(userId); delErr != nil {
				slog.Error("error compensating partial registration", "user_id", userId, "error", delErr)
			}
		}
		return err
	}

	return nil
}

type companySignupRequest struct {
	accountRequest
	companyProfileRequest
}

func (s *UserService) registerCompany(userId uuid.UUID, account schema.User, profile companyProfileRequest) error {
	return s.finishRegistration(userId, account, schema.RoleCompany, func(txn *gorm.DB) error {
		cnpj := validation.NormalizeDigits(profile.Cnpj)

		var existing schema.Company
		result := txn.Limit(1).Find(&existing, "cnpj = ?", cnpj)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate cnpj", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(errors.New("a company with this cnpj is already registered"), http.StatusConflict)
		}

		company := schema.Company{
			Id:        userId,
			Cnpj:      cnpj,
			LegalName: profile.LegalName,
			TradeName: profile.TradeName,
			Instagram: profile.Instagram,
			Status:    schema.AwaitingApproval,
		}
		if createResult := txn.Create(&company); createResult.Error != nil {
			slog.Error("sql error creating company profile", "user_id", userId, "error", createResult.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
}

func (s *UserService) registerDriver(userId uuid.UUID, account schema.User, profile driverProfileRequest) error {
	return s.finishRegistration(userId, account, schema.RoleDriver, func(txn *gorm.DB) error {
		cpf := validation.NormalizeDigits(profile.Cpf)

		var existing schema.Driver
		result := txn.Limit(1).Find(&existing, "cpf = ?", cpf)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate cpf", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(errors.New("a driver with this cpf is already registered"), http.StatusConflict)
		}

		driver := schema.Driver{
			Id:          userId,
			Cpf:         cpf,
			Phone:       validation.NormalizeDigits(account.Phone),
			Vehicle:     profile.Vehicle,
			Plate:       strings.ToUpper(strings.TrimSpace(profile.Plate)),
			BankAccount: profile.BankAccount,
			PixKey:      profile.PixKey,
			Status:      schema.AwaitingApproval,
		}
		if createResult := txn.Create(&driver); createResult.Error != nil {
			slog.Error("sql error creating driver profile", "user_id", userId, "error", createResult.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
}

func (s *UserService) SignupCompany(w http.ResponseWriter, r *http.Request) {
	var params companySignupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := params.accountRequest.check(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := params.companyProfileRequest.check(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	userId, err := s.userAuth.CreateIdentity(params.Name, params.Email, params.Password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		if errors.Is(err, auth.ErrEmailAlreadyInUse) {
			responseCode = http.StatusConflict
		}
		http.Error(w, err.Error(), responseCode)
		return
	}

	account := schema.User{Name: params.Name, Email: params.Email, Phone: params.Phone}
	if err := s.registerCompany(userId, account, params.companyProfileRequest); err != nil {
		http.Error(w, fmt.Sprintf("company registration failed: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("company registered", "user_id", userId)

	utils.WriteJsonResponse(w, signupResponse{UserId: userId})
}

type driverSignupRequest struct {
	accountRequest
	driverProfileRequest
}

func (s *UserService) SignupDriver(w http.ResponseWriter, r *http.Request) {
	var params driverSignupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := params.accountRequest.check(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := params.driverProfileRequest.check(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	userId, err := s.userAuth.CreateIdentity(params.Name, params.Email, params.Password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		if errors.Is(err, auth.ErrEmailAlreadyInUse) {
			responseCode = http.StatusConflict
		}
		http.Error(w, err.Error(), responseCode)
		return
	}

	account := schema.User{Name: params.Name, Email: params.Email, Phone: params.Phone}
	if err := s.registerDriver(userId, account, params.driverProfileRequest); err != nil {
		http.Error(w, fmt.Sprintf("driver registration failed: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("driver registered", "user_id", userId)

	utils.WriteJsonResponse(w, signupResponse{UserId: userId})
}

type completeRegistrationRequest struct {
	Phone string `json:"phone"`

	companyProfileRequest
	driverProfileRequest
}

// CompleteCompanyRegistration attaches a company profile to an identity that
// logged in through the OAuth flow and has no role yet.
func (s *UserService) CompleteCompanyRegistration(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params completeRegistrationRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := params.companyProfileRequest.check(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	account := schema.User{Name: user.Name, Email: user.Email, Phone: params.Phone}
	if err := s.registerCompany(user.Id, account, params.companyProfileRequest); err != nil {
		http.Error(w, fmt.Sprintf("company registration failed: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *UserService) CompleteDriverRegistration(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params completeRegistrationRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := params.driverProfileRequest.check(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := validation.CheckValidPhone(params.Phone); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	account := schema.User{Name: user.Name, Email: user.Email, Phone: params.Phone}
	if err := s.registerDriver(user.Id, account, params.driverProfileRequest); err != nil {
		http.Error(w, fmt.Sprintf("driver registration failed: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type loginResponse struct {
	UserId      uuid.UUID `json:"user_id"`
	Role        string    `json:"role"`
	AccessToken string    `json:"access_token"`
}

func (s *UserService) LoginWithEmail(w http.ResponseWriter, r *http.Request) {
	email, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	login, err := s.userAuth.LoginWithEmail(email, password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrUserNotFoundWithEmail):
			responseCode = http.StatusNotFound
		case errors.Is(err, auth.ErrInvalidCredentials):
			responseCode = http.StatusUnauthorized
		}
		http.Error(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	role, _, err := schema.ResolveRole(login.UserId, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("login failed: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, loginResponse{UserId: login.UserId, Role: role, AccessToken: login.AccessToken})
}

type loginWithTokenRequest struct {
	AccessToken string `json:"access_token"`
}

func (s *UserService) LoginWithToken(w http.ResponseWriter, r *http.Request) {
	var params loginWithTokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	login, err := s.userAuth.LoginWithToken(params.AccessToken)
	if err != nil {
		http.Error(w, fmt.Sprintf("login failed: %v", err), http.StatusInternalServerError)
		return
	}

	role, _, err := schema.ResolveRole(login.UserId, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("login failed: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, loginResponse{UserId: login.UserId, Role: role, AccessToken: login.AccessToken})
}

type CompanyProfile struct {
	Cnpj      string `json:"cnpj"`
	LegalName string `json:"legal_name"`
	TradeName string `json:"trade_name"`
	Instagram string `json:"instagram"`
	Status    string `json:"status"`
}

type DriverProfile struct {
	Cpf      string     `json:"cpf"`
	Vehicle  string     `json:"vehicle"`
	Plate    string     `json:"plate"`
	Status   string     `json:"status"`
	DeviceId *uuid.UUID `json:"device_id"`
}

type AdminProfile struct {
	AccessLevel string `json:"access_level"`
	Department  string `json:"department"`
	Active      bool   `json:"active"`
}

type UserInfo struct {
	Id     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Phone  string    `json:"phone"`
	Role   string    `json:"role"`
	Status string    `json:"status"`

	Company *CompanyProfile `json:"company,omitempty"`
	Driver  *DriverProfile  `json:"driver,omitempty"`
	Admin   *AdminProfile   `json:"admin,omitempty"`
}

func loadUserInfo(user schema.User, db *gorm.DB) (UserInfo, error) {
	info := UserInfo{
		Id:     user.Id,
		Name:   user.Name,
		Email:  user.Email,
		Phone:  user.Phone,
		Role:   user.Role,
		Status: user.Status,
	}

	switch user.Role {
	case schema.RoleCompany:
		company, err := schema.GetCompany(user.Id, db)
		if err != nil {
			return info, fmt.Errorf("error loading company profile: %w", err)
		}
		info.Company = &CompanyProfile{
			Cnpj:      validation.FormatCnpj(company.Cnpj),
			LegalName: company.LegalName,
			TradeName: company.TradeName,
			Instagram: company.Instagram,
			Status:    company.Status,
		}
	case schema.RoleDriver:
		driver, err := schema.GetDriver(user.Id, db)
		if err != nil {
			return info, fmt.Errorf("error loading driver profile: %w", err)
		}
		info.Driver = &DriverProfile{
			Cpf:      validation.FormatCpf(driver.Cpf),
			Vehicle:  driver.Vehicle,
			Plate:    driver.Plate,
			Status:   driver.Status,
			DeviceId: driver.DeviceId,
		}
	case schema.RoleAdmin:
		admin, err := schema.GetAdmin(user.Id, db)
		if err != nil {
			return info, fmt.Errorf("error loading admin profile: %w", err)
		}
		info.Admin = &AdminProfile{
			AccessLevel: admin.AccessLevel,
			Department:  admin.Department,
			Active:      admin.Active,
		}
	}

	return info, nil
}

// Info resolves the caller's effective role from the user row and returns the
// matching profile. Identities with no completed registration get role "none"
// so the client can route them to complete registration.
func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info, err := loadUserInfo(user, s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error getting user info: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, info)
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	query := s.db
	if role := r.URL.Query().Get("role"); role != "" {
		if err := schema.CheckValidRole(role); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		query = query.Where("role = ?", role)
	}

	var users []schema.User
	result := query.Order("name ASC").Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, user := range users {
		infos = append(infos, UserInfo{
			Id: user.Id, Name: user.Name, Email: user.Email,
			Phone: user.Phone, Role: user.Role, Status: user.Status,
		})
	}
	utils.WriteJsonResponse(w, infos)
}

type createAdminRequest struct {
	accountRequest
	AccessLevel string `json:"access_level"`
	Department  string `json:"department"`
}

func (s *UserService) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var params createAdminRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := params.accountRequest.check(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if params.AccessLevel == "" {
		params.AccessLevel = schema.AccessAdmin
	}
	if params.AccessLevel != schema.AccessAdmin && params.AccessLevel != schema.AccessSuperAdmin && params.AccessLevel != schema.AccessSupport {
		http.Error(w, fmt.Sprintf("invalid access level '%v'", params.AccessLevel), http.StatusUnprocessableEntity)
		return
	}

	userId, err := s.userAuth.CreateIdentity(params.Name, params.Email, params.Password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		if errors.Is(err, auth.ErrEmailAlreadyInUse) {
			responseCode = http.StatusConflict
		}
		http.Error(w, fmt.Sprintf("error creating admin: %v", err), responseCode)
		return
	}

	account := schema.User{Name: params.Name, Email: params.Email, Phone: params.Phone}
	err = s.finishRegistration(userId, account, schema.RoleAdmin, func(txn *gorm.DB) error {
		admin := schema.Admin{Id: userId, AccessLevel: params.AccessLevel, Department: params.Department, Active: true}
		if result := txn.Create(&admin); result.Error != nil {
			slog.Error("sql error creating admin profile", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating admin: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, signupResponse{UserId: userId})
}

func (s *UserService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if actor.Id == userId {
		http.Error(w, "admins cannot delete their own account", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, userId); err != nil {
			return err
		}

		// Role profiles cascade from the user row.
		result := txn.Delete(&schema.User{Id: userId})
		if result.Error != nil {
			slog.Error("sql error deleting user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return logActivity(txn, actor.Id, "user_deleted", "user", userId, "")
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting user %v: %v", userId, err), GetResponseCode(err))
		return
	}

	if err := s.userAuth.DeleteIdentity(userId); err != nil {
		http.Error(w, fmt.Sprintf("error deleting user %v: %v", userId, err), http.StatusInternalServerError)
		return
	}

	utils.WriteSuccess(w)
}

type blockUserRequest struct {
	Reason string `json:"reason"`
}

func (s *UserService) updateUserStatus(w http.ResponseWriter, r *http.Request, status, action, reason string) {
	userId, err := utils.URLParamUUID(r, "user_id")
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
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if user.Role == schema.RoleAdmin && status == schema.UserBlocked {
			return CodedError(errors.New("admin accounts cannot be blocked"), http.StatusUnprocessableEntity)
		}

		user.Status = status
		if result := txn.Save(&user); result.Error != nil {
			slog.Error("sql error updating user status", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return logActivity(txn, actor.Id, action, "user", userId, reason)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating user status: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *UserService) BlockUser(w http.ResponseWriter, r *http.Request) {
	// The reason is optional, blocking without a body is allowed.
	var params blockUserRequest
	if r.ContentLength != 0 && !utils.ParseRequestBody(w, r, &params) {
		return
	}
	s.updateUserStatus(w, r, schema.UserBlocked, "user_blocked", params.Reason)
}

func (s *UserService) UnblockUser(w http.ResponseWriter, r *http.Request) {
	s.updateUserStatus(w, r, schema.UserActive, "user_unblocked", "")
}
