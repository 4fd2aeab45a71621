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

type FinanceService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *FinanceService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/plans", s.ListPlans)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.CompanyOnly())

		r.Get("/payments", s.ListOwnPayments)
		r.Get("/subscription", s.Subscription)
		r.Post("/subscribe/{plan_id}", s.Subscribe)
		r.Post("/subscription/cancel", s.CancelSubscription)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.DriverOnly())

		r.Get("/payouts", s.ListOwnPayouts)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Post("/plans/create", s.CreatePlan)
		r.Post("/plans/{plan_id}/update", s.UpdatePlan)

		r.Get("/subscriptions/all", s.ListAllSubscriptions)

		r.Get("/payments/all", s.ListAllPayments)
		r.Post("/payments/create", s.CreatePayment)
		r.Post("/payments/{payment_id}/status", s.UpdatePaymentStatus)

		r.Get("/payouts/all", s.ListAllPayouts)
		r.Post("/payouts/generate/{driver_id}", s.GeneratePayout)
		r.Post("/payouts/{payout_id}/paid", s.MarkPayoutPaid)
	})

	return r
}

type PlanInfo struct {
	Id            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	MonthlyPrice  float64   `json:"monthly_price"`
	PricePerView  *float64  `json:"price_per_view"`
	CampaignLimit *int      `json:"campaign_limit"`
	MediaLimit    *int      `json:"media_limit"`
	Active        bool      `json:"active"`
}

func planInfo(plan schema.Plan) PlanInfo {
	return PlanInfo{
		Id:            plan.Id,
		Name:          plan.Name,
		Description:   plan.Description,
		MonthlyPrice:  plan.MonthlyPrice,
		PricePerView:  plan.PricePerView,
		CampaignLimit: plan.CampaignLimit,
		MediaLimit:    plan.MediaLimit,
		Active:        plan.Active,
	}
}

func (s *FinanceService) ListPlans(w http.ResponseWriter, r *http.Request) {
	var plans []schema.Plan
	result := s.db.Where("active = ?", true).Order("monthly_price ASC").Find(&plans)
	if result.Error != nil {
		slog.Error("sql error listing plans", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing plans: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]PlanInfo, 0, len(plans))
	for _, plan := range plans {
		infos = append(infos, planInfo(plan))
	}
	utils.WriteJsonResponse(w, infos)
}

type planRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	MonthlyPrice  float64  `json:"monthly_price"`
	PricePerView  *float64 `json:"price_per_view"`
	CampaignLimit *int     `json:"campaign_limit"`
	MediaLimit    *int     `json:"media_limit"`
	Active        *bool    `json:"active"`
}

type createPlanResponse struct {
	PlanId uuid.UUID `json:"plan_id"`
}

func (s *FinanceService) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var params planRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if strings.TrimSpace(params.Name) == "" {
		http.Error(w, "plan name is required", http.StatusUnprocessableEntity)
		return
	}
	if params.MonthlyPrice < 0 {
		http.Error(w, "plan price cannot be negative", http.StatusUnprocessableEntity)
		return
	}

	plan := schema.Plan{
		Id:            uuid.New(),
		Name:          params.Name,
		Description:   params.Description,
		MonthlyPrice:  params.MonthlyPrice,
		PricePerView:  params.PricePerView,
		CampaignLimit: params.CampaignLimit,
		MediaLimit:    params.MediaLimit,
		Active:        true,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.Plan
		result := txn.Limit(1).Find(&existing, "name = ?", params.Name)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate plan", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("a plan named %v already exists", params.Name), http.StatusConflict)
		}

		if result := txn.Create(&plan); result.Error != nil {
			slog.Error("sql error creating plan", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating plan: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createPlanResponse{PlanId: plan.Id})
}

func (s *FinanceService) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	planId, err := utils.URLParamUUID(r, "plan_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params planRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		plan, err := schema.GetPlan(planId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrPlanNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if params.Name != "" {
			plan.Name = params.Name
		}
		plan.Description = params.Description
		if params.MonthlyPrice >= 0 {
			plan.MonthlyPrice = params.MonthlyPrice
		}
		plan.PricePerView = params.PricePerView
		plan.CampaignLimit = params.CampaignLimit
		plan.MediaLimit = params.MediaLimit
		if params.Active != nil {
			plan.Active = *params.Active
		}

		if result := txn.Save(&plan); result.Error != nil {
			slog.Error("sql error updating plan", "plan_id", planId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating plan: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type SubscriptionInfo struct {
	Id        uuid.UUID  `json:"id"`
	CompanyId uuid.UUID  `json:"company_id"`
	PlanId    uuid.UUID  `json:"plan_id"`
	PlanName  string     `json:"plan_name"`
	Status    string     `json:"status"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Price     float64    `json:"price"`
}

func (s *FinanceService) activeSubscription(companyId uuid.UUID) (*schema.Subscription, error) {
	var sub schema.Subscription
	result := s.db.Preload("Plan").Limit(1).Find(&sub, "company_id = ? AND status = ?", companyId, schema.SubscriptionActive)
	if result.Error != nil {
		slog.Error("sql error loading subscription", "company_id", companyId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (s *FinanceService) Subscription(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sub, err := s.activeSubscription(user.Id)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading subscription: %v", err), http.StatusInternalServerError)
		return
	}
	if sub == nil {
		http.Error(w, "company has no active subscription", http.StatusNotFound)
		return
	}

	info := SubscriptionInfo{
		Id:        sub.Id,
		CompanyId: sub.CompanyId,
		PlanId:    sub.PlanId,
		Status:    sub.Status,
		StartDate: sub.StartDate,
		EndDate:   sub.EndDate,
		Price:     sub.Price,
	}
	if sub.Plan != nil {
		info.PlanName = sub.Plan.Name
	}
	utils.WriteJsonResponse(w, info)
}

// Subscribe starts a subscription on the given plan and creates the first
// monthly payment as pending. An existing active subscription is cancelled,
// switching plans does not stack them.
func (s *FinanceService) Subscribe(w http.ResponseWriter, r *http.Request) {
	planId, err := utils.URLParamUUID(r, "plan_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var subscriptionId uuid.UUID

	err = s.db.Transaction(func(txn *gorm.DB) error {
		plan, err := schema.GetPlan(planId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrPlanNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}
		if !plan.Active {
			return CodedError(errors.New("plan is no longer offered"), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()

		result := txn.Model(&schema.Subscription{}).
			Where("company_id = ? AND status = ?", user.Id, schema.SubscriptionActive).
			Updates(map[string]interface{}{"status": schema.SubscriptionCancelled, "end_date": now})
		if result.Error != nil {
			slog.Error("sql error cancelling previous subscription", "company_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		sub := schema.Subscription{
			Id:        uuid.New(),
			CompanyId: user.Id,
			PlanId:    plan.Id,
			Status:    schema.SubscriptionActive,
			StartDate: now,
			Price:     plan.MonthlyPrice,
		}
		if result := txn.Create(&sub); result.Error != nil {
			slog.Error("sql error creating subscription", "company_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		subscriptionId = sub.Id

		dueDate := now.AddDate(0, 0, 7)
		payment := schema.Payment{
			Id:        uuid.New(),
			CompanyId: user.Id,
			Amount:    plan.MonthlyPrice,
			Status:    schema.PaymentPending,
			Method:    "pix",
			DueDate:   &dueDate,
		}
		if result := txn.Create(&payment); result.Error != nil {
			slog.Error("sql error creating subscription payment", "company_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return addNotification(txn, user.Id, schema.NotificationPayment, "Subscription started", fmt.Sprintf("You are now subscribed to the %v plan.", plan.Name))
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error subscribing: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, map[string]uuid.UUID{"subscription_id": subscriptionId})
}

func (s *FinanceService) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	result := s.db.Model(&schema.Subscription{}).
		Where("company_id = ? AND status = ?", user.Id, schema.SubscriptionActive).
		Updates(map[string]interface{}{"status": schema.SubscriptionCancelled, "end_date": now})
	if result.Error != nil {
		slog.Error("sql error cancelling subscription", "company_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error cancelling subscription: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "company has no active subscription", http.StatusNotFound)
		return
	}

	utils.WriteSuccess(w)
}

type PaymentInfo struct {
	Id         uuid.UUID  `json:"id"`
	CompanyId  uuid.UUID  `json:"company_id"`
	CampaignId *uuid.UUID `json:"campaign_id"`
	Amount     float64    `json:"amount"`
	Status     string     `json:"status"`
	Method     string     `json:"method"`
	DueDate    *time.Time `json:"due_date"`
	PaidAt     *time.Time `json:"paid_at"`
}

func paymentInfos(payments []schema.Payment) []PaymentInfo {
	infos := make([]PaymentInfo, 0, len(payments))
	for _, payment := range payments {
		infos = append(infos, PaymentInfo{
			Id:         payment.Id,
			CompanyId:  payment.CompanyId,
			CampaignId: payment.CampaignId,
			Amount:     payment.Amount,
			Status:     payment.Status,
			Method:     payment.Method,
			DueDate:    payment.DueDate,
			PaidAt:     payment.PaidAt,
		})
	}
	return infos
}

func (s *FinanceService) ListAllSubscriptions(w http.ResponseWriter, r *http.Request) {
	query := s.db.Preload("Plan")
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var subs []schema.Subscription
	result := query.Order("start_date DESC").Find(&subs)
	if result.Error != nil {
		slog.Error("sql error listing subscriptions", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing subscriptions: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]SubscriptionInfo, 0, len(subs))
	for _, sub := range subs {
		info := SubscriptionInfo{
			Id:        sub.Id,
			CompanyId: sub.CompanyId,
			PlanId:    sub.PlanId,
			Status:    sub.Status,
			StartDate: sub.StartDate,
			EndDate:   sub.EndDate,
			Price:     sub.Price,
		}
		if sub.Plan != nil {
			info.PlanName = sub.Plan.Name
		}
		infos = append(infos, info)
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *FinanceService) ListOwnPayments(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var payments []schema.Payment
	result := s.db.Where("company_id = ?", user.Id).Order("due_date DESC").Find(&payments)
	if result.Error != nil {
		slog.Error("sql error listing payments", "company_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing payments: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, paymentInfos(payments))
}

func (s *FinanceService) ListAllPayments(w http.ResponseWriter, r *http.Request) {
	query := s.db
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var payments []schema.Payment
	result := query.Order("due_date DESC").Find(&payments)
	if result.Error != nil {
		slog.Error("sql error listing payments", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing payments: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, paymentInfos(payments))
}

type createPaymentRequest struct {
	CompanyId  uuid.UUID  `json:"company_id"`
	CampaignId *uuid.UUID `json:"campaign_id"`
	Amount     float64    `json:"amount"`
	Method     string     `json:"method"`
	DueDate    *time.Time `json:"due_date"`
}

func (s *FinanceService) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var params createPaymentRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Amount <= 0 {
		http.Error(w, "payment amount must be positive", http.StatusUnprocessableEntity)
		return
	}

	payment := schema.Payment{
		Id:         uuid.New(),
		CompanyId:  params.CompanyId,
		CampaignId: params.CampaignId,
		Amount:     params.Amount,
		Status:     schema.PaymentPending,
		Method:     params.Method,
		DueDate:    params.DueDate,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkCompanyExists(txn, params.CompanyId); err != nil {
			return err
		}
		if params.CampaignId != nil {
			if err := checkCampaignExists(txn, *params.CampaignId); err != nil {
				return err
			}
		}

		if result := txn.Create(&payment); result.Error != nil {
			slog.Error("sql error creating payment", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return addNotification(txn, params.CompanyId, schema.NotificationPayment, "New charge", fmt.Sprintf("A charge of R$ %.2f has been issued.", params.Amount))
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating payment: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, map[string]uuid.UUID{"payment_id": payment.Id})
}

type updatePaymentStatusRequest struct {
	Status        string `json:"status"`
	TransactionId string `json:"transaction_id"`
}

func (s *FinanceService) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	paymentId, err := utils.URLParamUUID(r, "payment_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updatePaymentStatusRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	valid := map[string]bool{
		schema.PaymentPending: true, schema.PaymentProcessing: true,
		schema.PaymentPaid: true, schema.PaymentFailed: true, schema.PaymentRefunded: true,
	}
	if !valid[params.Status] {
		http.Error(w, fmt.Sprintf("invalid payment status '%v'", params.Status), http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var payment schema.Payment
		result := txn.Limit(1).Find(&payment, "id = ?", paymentId)
		if result.Error != nil {
			slog.Error("sql error loading payment", "payment_id", paymentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(schema.ErrPaymentNotFound, http.StatusNotFound)
		}

		payment.Status = params.Status
		if params.TransactionId != "" {
			payment.TransactionId = params.TransactionId
		}
		if params.Status == schema.PaymentPaid {
			now := time.Now().UTC()
			payment.PaidAt = &now
		}

		if result := txn.Save(&payment); result.Error != nil {
			slog.Error("sql error updating payment", "payment_id", paymentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if params.Status == schema.PaymentPaid {
			return addNotification(txn, payment.CompanyId, schema.NotificationPayment, "Payment confirmed", fmt.Sprintf("Your payment of R$ %.2f was confirmed.", payment.Amount))
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating payment: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type PayoutInfo struct {
	Id          uuid.UUID  `json:"id"`
	DriverId    uuid.UUID  `json:"driver_id"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`
	Amount      float64    `json:"amount"`
	Views       int64      `json:"views"`
	Status      string     `json:"status"`
	PaidAt      *time.Time `json:"paid_at"`
}

func payoutInfos(payouts []schema.Payout) []PayoutInfo {
	infos := make([]PayoutInfo, 0, len(payouts))
	for _, payout := range payouts {
		infos = append(infos, PayoutInfo{
			Id:          payout.Id,
			DriverId:    payout.DriverId,
			PeriodStart: payout.PeriodStart,
			PeriodEnd:   payout.PeriodEnd,
			Amount:      payout.Amount,
			Views:       payout.Views,
			Status:      payout.Status,
			PaidAt:      payout.PaidAt,
		})
	}
	return infos
}

func (s *FinanceService) ListOwnPayouts(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var payouts []schema.Payout
	result := s.db.Where("driver_id = ?", user.Id).Order("period_end DESC").Find(&payouts)
	if result.Error != nil {
		slog.Error("sql error listing payouts", "driver_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing payouts: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, payoutInfos(payouts))
}

func (s *FinanceService) ListAllPayouts(w http.ResponseWriter, r *http.Request) {
	query := s.db
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var payouts []schema.Payout
	result := query.Order("period_end DESC").Find(&payouts)
	if result.Error != nil {
		slog.Error("sql error listing payouts", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing payouts: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, payoutInfos(payouts))
}

type generatePayoutRequest struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// GeneratePayout consolidates a driver's daily earnings over a period into a
// pending payout. Periods cannot overlap an existing payout for the driver.
func (s *FinanceService) GeneratePayout(w http.ResponseWriter, r *http.Request) {
	driverId, err := utils.URLParamUUID(r, "driver_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params generatePayoutRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	periodStart, err := time.Parse(time.DateOnly, params.PeriodStart)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid period start '%v', expected YYYY-MM-DD", params.PeriodStart), http.StatusUnprocessableEntity)
		return
	}
	periodEnd, err := time.Parse(time.DateOnly, params.PeriodEnd)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid period end '%v', expected YYYY-MM-DD", params.PeriodEnd), http.StatusUnprocessableEntity)
		return
	}
	if periodEnd.Before(periodStart) {
		http.Error(w, "payout period end cannot be before its start", http.StatusUnprocessableEntity)
		return
	}

	var payoutId uuid.UUID

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkDriverExists(txn, driverId); err != nil {
			return err
		}

		var overlapping int64
		result := txn.Model(&schema.Payout{}).
			Where("driver_id = ?", driverId).
			Where("period_start <= ? AND period_end >= ?", periodEnd, periodStart).
			Count(&overlapping)
		if result.Error != nil {
			slog.Error("sql error checking for overlapping payouts", "driver_id", driverId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if overlapping > 0 {
			return CodedError(errors.New("a payout already covers part of this period"), http.StatusConflict)
		}

		var earnings []schema.DriverEarning
		result = txn.Where("driver_id = ? AND date >= ? AND date <= ?", driverId, periodStart, periodEnd).Find(&earnings)
		if result.Error != nil {
			slog.Error("sql error loading earnings for payout", "driver_id", driverId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		payout := schema.Payout{
			Id:          uuid.New(),
			DriverId:    driverId,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			Status:      schema.PaymentPending,
		}
		for _, earning := range earnings {
			payout.Amount += earning.Amount
			payout.Views += earning.Views
		}

		if payout.Views == 0 {
			return CodedError(errors.New("driver has no earnings in this period"), http.StatusUnprocessableEntity)
		}

		if result := txn.Create(&payout); result.Error != nil {
			slog.Error("sql error creating payout", "driver_id", driverId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		payoutId = payout.Id

		return addNotification(txn, driverId, schema.NotificationPayment, "Payout generated", fmt.Sprintf("A payout of R$ %.2f for %v views is being processed.", payout.Amount, payout.Views))
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error generating payout: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, map[string]uuid.UUID{"payout_id": payoutId})
}

type markPayoutPaidRequest struct {
	Method     string `json:"method"`
	ReceiptUrl string `json:"receipt_url"`
}

func (s *FinanceService) MarkPayoutPaid(w http.ResponseWriter, r *http.Request) {
	payoutId, err := utils.URLParamUUID(r, "payout_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params markPayoutPaidRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var payout schema.Payout
		result := txn.Limit(1).Find(&payout, "id = ?", payoutId)
		if result.Error != nil {
			slog.Error("sql error loading payout", "payout_id", payoutId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected == 0 {
			return CodedError(schema.ErrPayoutNotFound, http.StatusNotFound)
		}

		if payout.Status == schema.PaymentPaid {
			return CodedError(errors.New("payout is already marked as paid"), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		payout.Status = schema.PaymentPaid
		payout.Method = params.Method
		payout.ReceiptUrl = params.ReceiptUrl
		payout.PaidAt = &now

		if result := txn.Save(&payout); result.Error != nil {
			slog.Error("sql error marking payout paid", "payout_id", payoutId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return addNotification(txn, payout.DriverId, schema.NotificationPayment, "Payout paid", fmt.Sprintf("Your payout of R$ %.2f has been paid.", payout.Amount))
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error marking payout paid: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
