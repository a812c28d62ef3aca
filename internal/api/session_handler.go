package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"scheduling-service/internal/model"
	"scheduling-service/internal/service"
)

type SessionHandler struct {
	sessionService service.SessionService
	rsvpService    service.RSVPService
	validate       *validator.Validate
}

func NewSessionHandler(sessionService service.SessionService, rsvpService service.RSVPService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		rsvpService:    rsvpService,
		validate:       validator.New(),
	}
}

type CreateSessionRequest struct {
	ClientID uuid.UUID `json:"client_id" validate:"required"`
	Title    string    `json:"title" validate:"required,min=3,max=120"`
	Format   string    `json:"format" validate:"required,oneof=in_person online phone"`
	Location string    `json:"location" validate:"max=250"`
	StartAt  time.Time `json:"start_at" validate:"required"`
	EndAt    time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	if GetRoleFromClaims(c) != model.RoleTherapist {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "Forbidden",
			"message": "Only therapists can create sessions",
		})
	}

	therapistID, err := GetUserIDFromClaims(c)
	if err != nil {
		slog.ErrorContext(c.UserContext(), "Error getting user ID from claims", slog.String("error", err.Error()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	var request CreateSessionRequest

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	if err := h.validate.Struct(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input", "details": err.Error()})
	}

	session := &model.Session{
		TherapistID: therapistID,
		ClientID:    request.ClientID,
		Title:       request.Title,
		Format:      request.Format,
		Location:    request.Location,
		StartAt:     request.StartAt,
		EndAt:       request.EndAt,
	}

	result, err := h.sessionService.CreateSession(c.Context(), session)

	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not create session"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session":  result.Session,
		"notified": result.Notified,
	})
}

func (h *SessionHandler) CancelSession(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID format"})
	}

	therapistID, err := GetUserIDFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	result, err := h.sessionService.CancelSession(c.Context(), sessionID, therapistID)
	if err != nil {
		return sessionErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"session":  result.Session,
		"notified": result.Notified,
	})
}

type ProposeRescheduleRequest struct {
	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
}

func (h *SessionHandler) ProposeReschedule(c *fiber.Ctx) error {
	if GetRoleFromClaims(c) != model.RoleTherapist {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "Forbidden",
			"message": "Only therapists can propose a reschedule",
		})
	}

	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID format"})
	}

	therapistID, err := GetUserIDFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	var request ProposeRescheduleRequest

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	if err := h.validate.Struct(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid input", "details": err.Error()})
	}

	result, err := h.rsvpService.ProposeReschedule(c.Context(), sessionID, request.StartAt, request.EndAt, therapistID)
	if err != nil {
		return sessionErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"session":  result.Session,
		"notified": result.Notified,
	})
}

func (h *SessionHandler) GetSessionDetails(c *fiber.Ctx) error {
	sessionID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID format"})
	}

	details, err := h.sessionService.GetSessionDetails(c.Context(), sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
		}
		slog.ErrorContext(c.UserContext(), "Error getting session details", slog.String("error", err.Error()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch session details"})
	}

	userID, err := GetUserIDFromClaims(c)
	if err != nil || (details.TherapistID != userID && details.ClientID != userID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}

	return c.Status(fiber.StatusOK).JSON(details)
}

func (h *SessionHandler) ListUpcomingSessions(c *fiber.Ctx) error {
	userID, err := GetUserIDFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	sessions, err := h.sessionService.ListUpcomingSessions(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch sessions"})
	}

	return c.Status(fiber.StatusOK).JSON(sessions)
}

func (h *SessionHandler) ListHistory(c *fiber.Ctx) error {
	userID, err := GetUserIDFromClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	history, err := h.sessionService.ListUserHistory(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not fetch session history"})
	}

	return c.Status(fiber.StatusOK).JSON(history)
}

func sessionErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotSessionOwner):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrRescheduleAlreadyPending),
		errors.Is(err, service.ErrInvalidSessionState):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		slog.ErrorContext(c.UserContext(), "Session operation failed", slog.String("error", err.Error()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}
