package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/edit"
	"github.com/AdvantusAI/m8-collab/internal/export"
	"github.com/AdvantusAI/m8-collab/internal/period"
	"github.com/AdvantusAI/m8-collab/internal/service"
)

type CollaborationHandler struct {
	service     *service.CollaborationService
	exporter    *export.Exporter
	defaultUnit domain.Unit
}

// NewCollaborationHandler wires the handler. exporter may be nil, which disables POST /export.
func NewCollaborationHandler(svc *service.CollaborationService, exporter *export.Exporter, defaultUnit domain.Unit) *CollaborationHandler {
	if defaultUnit == "" {
		defaultUnit = domain.UnitCases
	}
	return &CollaborationHandler{service: svc, exporter: exporter, defaultUnit: defaultUnit}
}

// splitList accepts repeated params and comma-separated values, dropping blanks and duplicates.
func splitList(c *gin.Context, param string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, raw := range c.QueryArray(param) {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

func parseDateParam(c *gin.Context, param string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(param))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", param)
	}
	return &t, nil
}

func (h *CollaborationHandler) parseFilter(c *gin.Context) (domain.Filter, error) {
	filter := domain.Filter{
		CustomerIDs: splitList(c, "customer_ids"),
		ProductIDs:  splitList(c, "product_ids"),
		LocationIDs: splitList(c, "location_ids"),
	}

	var err error
	if filter.StartDate, err = parseDateParam(c, "start_date"); err != nil {
		return filter, err
	}
	if filter.EndDate, err = parseDateParam(c, "end_date"); err != nil {
		return filter, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return filter, fmt.Errorf("end_date is before start_date")
	}
	return filter, nil
}

func (h *CollaborationHandler) parseUnit(c *gin.Context) (domain.Unit, error) {
	if raw := strings.TrimSpace(c.Query("unit")); raw != "" {
		return domain.ParseUnit(raw)
	}
	return h.defaultUnit, nil
}

func parseMetrics(c *gin.Context) ([]domain.Metric, error) {
	var metrics []domain.Metric
	for _, raw := range splitList(c, "metrics") {
		m, err := domain.ParseMetric(raw)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

// parseViewParams reads the filter, unit and metric list shared by /matrix, /summary and /export.
func (h *CollaborationHandler) parseViewParams(c *gin.Context) (domain.Filter, domain.Unit, []domain.Metric, bool) {
	filter, err := h.parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter", "details": err.Error()})
		return filter, "", nil, false
	}
	unit, err := h.parseUnit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid unit", "details": err.Error()})
		return filter, "", nil, false
	}
	metrics, err := parseMetrics(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metrics", "details": err.Error()})
		return filter, "", nil, false
	}
	return filter, unit, metrics, true
}

func (h *CollaborationHandler) GetMatrix(c *gin.Context) {
	filter, unit, metrics, ok := h.parseViewParams(c)
	if !ok {
		return
	}

	view, err := h.service.View(c.Request.Context(), filter, metrics, unit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build matrix", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *CollaborationHandler) GetSummary(c *gin.Context) {
	filter, unit, metrics, ok := h.parseViewParams(c)
	if !ok {
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), filter, metrics, unit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch summary", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *CollaborationHandler) GetRollup(c *gin.Context) {
	filter, err := h.parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter", "details": err.Error()})
		return
	}

	q := service.RollupQuery{}
	if q.Metric, err = domain.ParseMetric(c.Query("metric")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metric", "details": err.Error()})
		return
	}
	if q.Unit, err = h.parseUnit(c); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid unit", "details": err.Error()})
		return
	}
	if q.Window, err = domain.ParseWindow(c.DefaultQuery("window", string(domain.WindowYTD))); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window", "details": err.Error()})
		return
	}
	if customerID := strings.TrimSpace(c.Query("customer_id")); customerID != "" {
		key := domain.NewEntityKey(customerID, c.Query("product_id"))
		q.Entity = &key
	}

	value, err := h.service.Rollup(c.Request.Context(), filter, q)
	if errors.Is(err, edit.ErrEntityNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found", "details": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute rollup", "details": err.Error()})
		return
	}

	resp := gin.H{"metric": q.Metric, "unit": q.Unit, "window": q.Window, "value": value}
	if q.Entity != nil {
		resp["customer_id"] = q.Entity.CustomerID
		resp["product_id"] = q.Entity.ProductID
	}
	c.JSON(http.StatusOK, resp)
}

type editRequest struct {
	CustomerID string   `json:"customer_id"`
	ProductID  string   `json:"product_id"`
	All        bool     `json:"all"`
	Period     string   `json:"period" binding:"required"`
	Value      *float64 `json:"value" binding:"required"`
	Notes      *string  `json:"notes"`
}

// parsePeriod accepts a period key ("Mar-25") or any date inside the month.
func parsePeriod(raw string) (period.Key, error) {
	k := period.Key(strings.TrimSpace(raw))
	if _, _, err := period.ParseKey(k); err == nil {
		return k, nil
	}
	t, err := period.ParseDate(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", edit.ErrInvalidPeriod, raw)
	}
	return period.KeyOf(t), nil
}

func (h *CollaborationHandler) PostEdit(c *gin.Context) {
	filter, err := h.parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter", "details": err.Error()})
		return
	}

	var body editRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid edit request", "details": err.Error()})
		return
	}
	if !body.All && strings.TrimSpace(body.CustomerID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid edit request", "details": "customer_id is required unless all is set"})
		return
	}
	key, err := parsePeriod(body.Period)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period", "details": err.Error()})
		return
	}

	req := edit.Request{
		Target: edit.Target{All: body.All, Entity: domain.NewEntityKey(body.CustomerID, body.ProductID)},
		Period: key,
		Value:  *body.Value,
		Notes:  body.Notes,
	}
	res, err := h.service.Edit(c.Request.Context(), filter, req)
	switch {
	case errors.Is(err, edit.ErrEntityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found", "details": err.Error()})
		return
	case errors.Is(err, edit.ErrInvalidPeriod), errors.Is(err, edit.ErrPeriodOutOfWindow), errors.Is(err, edit.ErrNoEntities):
		c.JSON(http.StatusBadRequest, gin.H{"error": "edit rejected", "details": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply edit", "details": err.Error()})
		return
	}

	c.JSON(editStatus(res), res)
}

// editStatus maps a batch result to 200 (all applied), 207 (partial), 502 (every write failed)
// or 422 (nothing could be keyed).
func editStatus(res *edit.Result) int {
	switch {
	case res.Complete():
		return http.StatusOK
	case res.AnyApplied():
		return http.StatusMultiStatus
	case res.Failed > 0:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func (h *CollaborationHandler) GetDiagnostics(c *gin.Context) {
	filter, err := h.parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter", "details": err.Error()})
		return
	}

	diag, err := h.service.Diagnostics(filter)
	if errors.Is(err, service.ErrNoMatrix) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no matrix built for this filter"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch diagnostics", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, diag)
}

func (h *CollaborationHandler) PostRebuild(c *gin.Context) {
	filter, err := h.parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter", "details": err.Error()})
		return
	}

	m, err := h.service.Rebuild(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rebuild matrix", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": m.Len(), "window": m.Window().String(), "diagnostics": m.Diagnostics()})
}

func (h *CollaborationHandler) PostExport(c *gin.Context) {
	if h.exporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot storage is not configured"})
		return
	}
	filter, unit, metrics, ok := h.parseViewParams(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	view, err := h.service.View(ctx, filter, metrics, unit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build matrix", "details": err.Error()})
		return
	}
	summary, err := h.service.Summary(ctx, filter, metrics, unit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch summary", "details": err.Error()})
		return
	}

	keys, err := h.exporter.Export(ctx, c.DefaultQuery("name", "collaboration"), *view, *summary)
	if err != nil {
		log.Error().Err(err).Msg("export: snapshot upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to upload snapshot", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"keys": keys})
}
