package results

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labtrack/labtrack/internal/platform/apperr"
	"github.com/labtrack/labtrack/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "lab_tech", "pathologist"))
	readGroup.GET("/orders/:id/results", h.ListByOrder)
	readGroup.GET("/results/:id", h.GetResult)

	entryGroup := api.Group("", auth.RequireRole("admin", "lab_tech"))
	entryGroup.POST("/orders/:id/results", h.SubmitResult)

	// Sign-off is reserved for pathologists.
	verifyGroup := api.Group("", auth.RequireRole("admin", "pathologist"))
	verifyGroup.POST("/results/:id/approve", h.Approve)
	verifyGroup.POST("/results/:id/reject", h.Reject)
	verifyGroup.POST("/results/bulk-approve", h.BulkApprove)
	verifyGroup.POST("/results/bulk-reject", h.BulkReject)
}

type submitResultRequest struct {
	TestGroupID uuid.UUID        `json:"test_group_id"`
	Values      []SubmittedValue `json:"values"`
}

func (h *Handler) SubmitResult(c echo.Context) error {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req submitResultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.svc.SubmitResult(c.Request().Context(), orderID, req.TestGroupID, req.Values)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, res)
}

type resultDetail struct {
	*Result
	Values []*ResultValue `json:"values"`
}

func (h *Handler) GetResult(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	res, values, err := h.svc.GetResult(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, resultDetail{Result: res, Values: values})
}

func (h *Handler) ListByOrder(c echo.Context) error {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListResultsByOrder(c.Request().Context(), orderID)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

type approveRequest struct {
	Notes *string `json:"notes,omitempty"`
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor := auth.Actor(c.Request().Context())
	ok, err := h.svc.Approve(c.Request().Context(), id, req.Notes, actor)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	if !ok {
		stateErr := apperr.InvalidState("cannot approve: result missing or already verified/rejected")
		return echo.NewHTTPError(apperr.HTTPStatus(stateErr), stateErr.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor := auth.Actor(c.Request().Context())
	ok, err := h.svc.Reject(c.Request().Context(), id, req.Reason, actor)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	if !ok {
		stateErr := apperr.InvalidState("cannot reject: result missing or already verified/rejected")
		return echo.NewHTTPError(apperr.HTTPStatus(stateErr), stateErr.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type bulkApproveRequest struct {
	IDs   []uuid.UUID `json:"ids"`
	Notes *string     `json:"notes,omitempty"`
}

func (h *Handler) BulkApprove(c echo.Context) error {
	var req bulkApproveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor := auth.Actor(c.Request().Context())
	out, err := h.svc.BulkApprove(c.Request().Context(), req.IDs, req.Notes, actor)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

type bulkRejectRequest struct {
	IDs    []uuid.UUID `json:"ids"`
	Reason string      `json:"reason"`
}

func (h *Handler) BulkReject(c echo.Context) error {
	var req bulkRejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	actor := auth.Actor(c.Request().Context())
	out, err := h.svc.BulkReject(c.Request().Context(), req.IDs, req.Reason, actor)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, out)
}
