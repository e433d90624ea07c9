package orders

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labtrack/labtrack/internal/platform/apperr"
	"github.com/labtrack/labtrack/internal/platform/auth"
	"github.com/labtrack/labtrack/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "lab_tech", "pathologist", "front_desk"))
	readGroup.GET("/orders", h.ListOrders)
	readGroup.GET("/orders/:id", h.GetOrder)
	readGroup.GET("/orders/:id/panels", h.ListPanels)
	readGroup.GET("/orders/:id/status-history", h.GetStatusHistory)
	readGroup.GET("/orders/:id/consistency", h.GetConsistency)

	writeGroup := api.Group("", auth.RequireRole("admin", "physician", "lab_tech", "front_desk"))
	writeGroup.POST("/orders", h.CreateOrder)
	writeGroup.POST("/orders/:id/actions/:action", h.ApplyAction)
	writeGroup.POST("/orders/:id/consistency/repair", h.RepairConsistency)
}

type createOrderRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	Note      *string   `json:"note,omitempty"`
	Panels    []struct {
		TestGroupID      uuid.UUID `json:"test_group_id"`
		TestGroupName    string    `json:"test_group_name"`
		ExpectedAnalytes int       `json:"expected_analytes"`
	} `json:"panels"`
}

func (h *Handler) CreateOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	o := &Order{PatientID: req.PatientID, Note: req.Note}
	panels := make([]*OrderTest, 0, len(req.Panels))
	for _, p := range req.Panels {
		panels = append(panels, &OrderTest{
			TestGroupID:      p.TestGroupID,
			TestGroupName:    p.TestGroupName,
			ExpectedAnalytes: p.ExpectedAnalytes,
		})
	}

	actor := auth.Actor(c.Request().Context())
	if err := h.svc.CreateOrder(c.Request().Context(), o, panels, actor); err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, o)
}

func (h *Handler) GetOrder(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	o, err := h.svc.GetOrder(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) ListOrders(c echo.Context) error {
	pg := pagination.FromContext(c)
	if patientID := c.QueryParam("patient_id"); patientID != "" {
		pid, err := uuid.Parse(patientID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		items, total, err := h.svc.ListOrdersByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	params := map[string]string{}
	if status := c.QueryParam("status"); status != "" {
		if !Status(status).Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		params["status"] = status
	}
	if collected := c.QueryParam("collected"); collected != "" {
		params["collected"] = collected
	}
	items, total, err := h.svc.SearchOrders(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListPanels(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListPanels(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ApplyAction(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	action, ok := ParseAction(c.Param("action"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action")
	}

	actor := auth.Actor(c.Request().Context())
	o, err := h.svc.ApplyAction(c.Request().Context(), id, action, actor)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) GetConsistency(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	report, err := h.svc.Consistency(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) RepairConsistency(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor := auth.Actor(c.Request().Context())
	o, err := h.svc.RepairConsistency(c.Request().Context(), id, actor)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) GetStatusHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	history, err := h.svc.StatusHistory(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, history)
}
