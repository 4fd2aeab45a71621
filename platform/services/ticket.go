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

type TicketService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *TicketService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Post("/create", s.Create)
		r.Get("/list", s.ListOwn)
		r.Get("/{ticket_id}", s.Details)
		r.Post("/{ticket_id}/message", s.AddMessage)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly(s.db))

		r.Get("/all", s.ListAll)
		r.Post("/{ticket_id}/assign", s.Assign)
		r.Post("/{ticket_id}/priority", s.SetPriority)
		r.Post("/{ticket_id}/resolve", s.Resolve)
		r.Post("/{ticket_id}/close", s.Close)
	})

	return r
}

type createTicketRequest struct {
	Kind        string `json:"kind"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

func (s *TicketService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params createTicketRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := schema.CheckValidTicketKind(params.Kind); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if strings.TrimSpace(params.Subject) == "" {
		http.Error(w, "ticket subject is required", http.StatusUnprocessableEntity)
		return
	}

	ticket := schema.SupportTicket{
		Id:          uuid.New(),
		UserId:      user.Id,
		Kind:        params.Kind,
		Subject:     params.Subject,
		Description: params.Description,
		Status:      schema.TicketOpen,
		Priority:    schema.PriorityMedium,
		CreatedAt:   time.Now().UTC(),
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Create(&ticket); result.Error != nil {
			slog.Error("sql error creating ticket", "user_id", user.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return logActivity(txn, user.Id, "ticket_created", "ticket", ticket.Id, params.Subject)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating ticket: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, map[string]uuid.UUID{"ticket_id": ticket.Id})
}

type TicketInfo struct {
	Id         uuid.UUID  `json:"id"`
	UserId     uuid.UUID  `json:"user_id"`
	Kind       string     `json:"kind"`
	Subject    string     `json:"subject"`
	Status     string     `json:"status"`
	Priority   string     `json:"priority"`
	AssignedTo *uuid.UUID `json:"assigned_to"`
	CreatedAt  time.Time  `json:"created_at"`
}

func ticketInfos(tickets []schema.SupportTicket) []TicketInfo {
	infos := make([]TicketInfo, 0, len(tickets))
	for _, ticket := range tickets {
		infos = append(infos, TicketInfo{
			Id:         ticket.Id,
			UserId:     ticket.UserId,
			Kind:       ticket.Kind,
			Subject:    ticket.Subject,
			Status:     ticket.Status,
			Priority:   ticket.Priority,
			AssignedTo: ticket.AssignedTo,
			CreatedAt:  ticket.CreatedAt,
		})
	}
	return infos
}

func (s *TicketService) ListOwn(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var tickets []schema.SupportTicket
	result := s.db.Where("user_id = ?", user.Id).Order("created_at DESC").Find(&tickets)
	if result.Error != nil {
		slog.Error("sql error listing tickets", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing tickets: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, ticketInfos(tickets))
}

func (s *TicketService) ListAll(w http.ResponseWriter, r *http.Request) {
	query := s.db
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if priority := r.URL.Query().Get("priority"); priority != "" {
		query = query.Where("priority = ?", priority)
	}

	var tickets []schema.SupportTicket
	result := query.Order("created_at DESC").Find(&tickets)
	if result.Error != nil {
		slog.Error("sql error listing tickets", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing tickets: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, ticketInfos(tickets))
}

type TicketMessageInfo struct {
	Id        uuid.UUID `json:"id"`
	UserId    uuid.UUID `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type TicketDetails struct {
	TicketInfo
	Description string              `json:"description"`
	ResolvedBy  *uuid.UUID          `json:"resolved_by"`
	ResolvedAt  *time.Time          `json:"resolved_at"`
	Messages    []TicketMessageInfo `json:"messages"`
}

// loadTicketForUser returns the ticket if the caller owns it or is an admin.
func (s *TicketService) loadTicketForUser(txn *gorm.DB, ticketId uuid.UUID, user schema.User, loadMessages bool) (schema.SupportTicket, error) {
	ticket, err := schema.GetTicket(ticketId, txn, loadMessages)
	if err != nil {
		if errors.Is(err, schema.ErrTicketNotFound) {
			return ticket, CodedError(err, http.StatusNotFound)
		}
		return ticket, CodedError(err, http.StatusInternalServerError)
	}
	if ticket.UserId != user.Id && user.Role != schema.RoleAdmin {
		return ticket, CodedError(errors.New("user does not have permission to access this ticket"), http.StatusForbidden)
	}
	return ticket, nil
}

func (s *TicketService) Details(w http.ResponseWriter, r *http.Request) {
	ticketId, err := utils.URLParamUUID(r, "ticket_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ticket, err := s.loadTicketForUser(s.db, ticketId, user, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading ticket: %v", err), GetResponseCode(err))
		return
	}

	details := TicketDetails{
		TicketInfo:  ticketInfos([]schema.SupportTicket{ticket})[0],
		Description: ticket.Description,
		ResolvedBy:  ticket.ResolvedBy,
		ResolvedAt:  ticket.ResolvedAt,
		Messages:    make([]TicketMessageInfo, 0, len(ticket.Messages)),
	}
	for _, msg := range ticket.Messages {
		details.Messages = append(details.Messages, TicketMessageInfo{
			Id:        msg.Id,
			UserId:    msg.UserId,
			Message:   msg.Message,
			CreatedAt: msg.CreatedAt,
		})
	}

	utils.WriteJsonResponse(w, details)
}

type addMessageRequest struct {
	Message string `json:"message"`
}

func (s *TicketService) AddMessage(w http.ResponseWriter, r *http.Request) {
	ticketId, err := utils.URLParamUUID(r, "ticket_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params addMessageRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if strings.TrimSpace(params.Message) == "" {
		http.Error(w, "message cannot be empty", http.StatusUnprocessableEntity)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		ticket, err := s.loadTicketForUser(txn, ticketId, user, false)
		if err != nil {
			return err
		}
		if ticket.Status == schema.TicketClosed {
			return CodedError(errors.New("cannot reply to a closed ticket"), http.StatusUnprocessableEntity)
		}

		message := schema.TicketMessage{
			Id:        uuid.New(),
			TicketId:  ticket.Id,
			UserId:    user.Id,
			Message:   params.Message,
			CreatedAt: time.Now().UTC(),
		}
		if result := txn.Create(&message); result.Error != nil {
			slog.Error("sql error creating ticket message", "ticket_id", ticketId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		// An admin reply notifies the ticket owner, not the admin themselves.
		if user.Id != ticket.UserId {
			return addNotification(txn, ticket.UserId, schema.NotificationSupport, "Support replied", fmt.Sprintf("Your ticket '%v' has a new reply.", ticket.Subject))
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error adding message: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type assignTicketRequest struct {
	AdminId uuid.UUID `json:"admin_id"`
}

func (s *TicketService) Assign(w http.ResponseWriter, r *http.Request) {
	ticketId, err := utils.URLParamUUID(r, "ticket_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params assignTicketRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		ticket, err := schema.GetTicket(ticketId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrTicketNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if _, err := schema.GetAdmin(params.AdminId, txn); err != nil {
			if errors.Is(err, schema.ErrAdminNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		ticket.AssignedTo = &params.AdminId
		if ticket.Status == schema.TicketOpen {
			ticket.Status = schema.TicketInProgress
		}

		if result := txn.Save(&ticket); result.Error != nil {
			slog.Error("sql error assigning ticket", "ticket_id", ticketId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error assigning ticket: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type setPriorityRequest struct {
	Priority string `json:"priority"`
}

func (s *TicketService) SetPriority(w http.ResponseWriter, r *http.Request) {
	ticketId, err := utils.URLParamUUID(r, "ticket_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params setPriorityRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := schema.CheckValidTicketPriority(params.Priority); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	result := s.db.Model(&schema.SupportTicket{}).Where("id = ?", ticketId).Update("priority", params.Priority)
	if result.Error != nil {
		slog.Error("sql error setting ticket priority", "ticket_id", ticketId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error setting priority: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, schema.ErrTicketNotFound.Error(), http.StatusNotFound)
		return
	}

	utils.WriteSuccess(w)
}

func (s *TicketService) Resolve(w http.ResponseWriter, r *http.Request) {
	s.closeTicket(w, r, schema.TicketResolved, "Ticket resolved", "Your support ticket has been resolved.")
}

func (s *TicketService) Close(w http.ResponseWriter, r *http.Request) {
	s.closeTicket(w, r, schema.TicketClosed, "Ticket closed", "Your support ticket has been closed.")
}

func (s *TicketService) closeTicket(w http.ResponseWriter, r *http.Request, status, title, message string) {
	ticketId, err := utils.URLParamUUID(r, "ticket_id")
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
		ticket, err := schema.GetTicket(ticketId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrTicketNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if ticket.Status == schema.TicketClosed {
			return CodedError(errors.New("ticket is already closed"), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		ticket.Status = status
		ticket.ResolvedBy = &admin.Id
		ticket.ResolvedAt = &now

		if result := txn.Save(&ticket); result.Error != nil {
			slog.Error("sql error closing ticket", "ticket_id", ticketId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return addNotification(txn, ticket.UserId, schema.NotificationSupport, title, message)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error updating ticket: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
