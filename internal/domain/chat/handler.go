package chat

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/telehealth/telehealth/internal/platform/apperr"
	"github.com/telehealth/telehealth/internal/platform/auth"
	"github.com/telehealth/telehealth/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/chat", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	g.GET("/sessions", h.ListSessions)
	g.POST("/sessions", h.FindOrCreateSession)
	g.GET("/sessions/:id/messages", h.ListMessages)
	g.POST("/sessions/:id/messages", h.SendMessage)
	g.POST("/sessions/:id/read", h.MarkRead)
	g.GET("/sessions/:id/unread", h.UnreadCount)
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	return id, nil
}

func sessionParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	return id, nil
}

type createSessionRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
}

func (h *Handler) FindOrCreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	// A session can only be opened by one of its two participants. Admins may
	// open sessions on behalf of others.
	if role := auth.RoleFromContext(c.Request().Context()); role != auth.RoleAdmin {
		if uid != req.PatientID && uid != req.DoctorID {
			return echo.NewHTTPError(http.StatusForbidden, "caller must be a participant of the session")
		}
	}
	session, err := h.svc.FindOrCreateSession(c.Request().Context(), req.PatientID, req.DoctorID)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, session)
}

func (h *Handler) ListSessions(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSessionsForUser(c.Request().Context(), uid, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListMessages(c echo.Context) error {
	id, err := sessionParam(c)
	if err != nil {
		return err
	}
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListMessages(c.Request().Context(), id, uid)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	if items == nil {
		items = []*ChatMessage{}
	}
	return c.JSON(http.StatusOK, items)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) SendMessage(c echo.Context) error {
	id, err := sessionParam(c)
	if err != nil {
		return err
	}
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msg, err := h.svc.AppendMessage(c.Request().Context(), id, uid, req.Content)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := sessionParam(c)
	if err != nil {
		return err
	}
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	n, err := h.svc.MarkMessagesRead(c.Request().Context(), id, uid)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int64{"marked_read": n})
}

func (h *Handler) UnreadCount(c echo.Context) error {
	id, err := sessionParam(c)
	if err != nil {
		return err
	}
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	n, err := h.svc.UnreadCount(c.Request().Context(), id, uid)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": n})
}
