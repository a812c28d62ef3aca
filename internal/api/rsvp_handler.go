package api

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"scheduling-service/internal/service"
)

// RSVPHandler serves the public, unauthenticated link-click endpoints.
// Possession of the emailed token is the only authorization. Every
// outcome, success or failure, becomes a redirect to the web app with a
// reason code; state-machine errors are never surfaced as 4xx/5xx here.
type RSVPHandler struct {
	rsvpService service.RSVPService
	webURL      string
}

func NewRSVPHandler(rsvpService service.RSVPService, webURL string) *RSVPHandler {
	return &RSVPHandler{
		rsvpService: rsvpService,
		webURL:      webURL,
	}
}

func (h *RSVPHandler) Respond(c *fiber.Ctx) error {
	result, err := h.rsvpService.Respond(c.Context(), c.Query("token"), c.Query("action"))
	if err != nil {
		return h.redirect(c, "rsvp", reasonFor(c, err), false)
	}

	reason := "accepted"
	if result.Session.Status.Terminal() {
		reason = "declined"
	}
	return h.redirect(c, "rsvp", reason, !result.Notified)
}

func (h *RSVPHandler) RespondToReschedule(c *fiber.Ctx) error {
	action := c.Query("action")
	result, err := h.rsvpService.RespondToReschedule(c.Context(), c.Query("token"), action)
	if err != nil {
		return h.redirect(c, "reschedule", reasonFor(c, err), false)
	}

	reason := "time_declined"
	if action == service.ActionAccept {
		reason = "time_accepted"
	}
	return h.redirect(c, "reschedule", reason, !result.Notified)
}

func (h *RSVPHandler) redirect(c *fiber.Ctx, flow, reason string, notifyFailed bool) error {
	url := fmt.Sprintf("%s/sessions/response?flow=%s&reason=%s", h.webURL, flow, reason)
	if notifyFailed {
		url += "&notified=false"
	}
	return c.Redirect(url, fiber.StatusFound)
}

func reasonFor(c *fiber.Ctx, err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidTokenFormat):
		return "invalid_link"
	case errors.Is(err, service.ErrTokenNotFound):
		return "link_expired"
	case errors.Is(err, service.ErrInvalidAction):
		return "invalid_action"
	default:
		slog.ErrorContext(c.UserContext(), "RSVP operation failed", slog.String("error", err.Error()))
		return "server_error"
	}
}
