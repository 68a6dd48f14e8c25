package alert

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
	admin := api.Group("/alerts", auth.RequireRole(auth.RoleAdmin))
	admin.POST("", h.Broadcast)
	admin.GET("", h.ListAlerts)
	admin.GET("/:id", h.GetAlert)

	user := api.Group("/alert-deliveries", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	user.GET("", h.ListDeliveries)
	user.POST("/:id/read", h.MarkDeliveryRead)
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid user identity")
	}
	return id, nil
}

type broadcastRequest struct {
	MessageContent string `json:"message_content"`
}

func (h *Handler) Broadcast(c echo.Context) error {
	adminID, err := callerID(c)
	if err != nil {
		return err
	}
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.Broadcast(c.Request().Context(), req.MessageContent, adminID)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) ListAlerts(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAlerts(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetAlert(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid alert id")
	}
	a, err := h.svc.GetAlert(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListDeliveries(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDeliveries(c.Request().Context(), uid, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) MarkDeliveryRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid delivery id")
	}
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	if err := h.svc.MarkDeliveryRead(c.Request().Context(), id, uid); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
