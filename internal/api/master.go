// Package api implements the read-only master HTTP API and the
// slave's read/write HTTP API.
package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/model"
)

// MasterStore is the slice of the storage gateway the master API
// reads from; *store.Store satisfies it.
type MasterStore interface {
	LastSample(valueID string, dataType model.DataType) (*model.Sample, error)
	AggregatesBetween(valueID string, dataType model.DataType, t0, t1 int64, minPeriod, maxPeriod model.Period) ([]model.Aggregate, error)
	SamplesBetween(valueID string, dataType model.DataType, t0, t1 int64) ([]model.Sample, error)
}

// MasterHandler holds the dependencies of the master's read-only API.
type MasterHandler struct {
	store  MasterStore
	values map[string]config.PolledValue
}

// NewMasterHandler indexes every configured value by id, across every
// connection and slave, for O(1) lookups at request time.
func NewMasterHandler(store MasterStore, conns []config.PolledConnection) *MasterHandler {
	values := map[string]config.PolledValue{}
	for _, conn := range conns {
		for _, slave := range conn.Slaves {
			for _, v := range slave.Values {
				values[v.ID] = v
			}
		}
	}
	return &MasterHandler{store: store, values: values}
}

// SetupRoutes wires the master's /api/v1/values surface.
func (h *MasterHandler) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/v1")
	api.Get("/health", h.healthCheck)

	values := api.Group("/values")
	values.Get("/", h.listValues)
	values.Get("/:id", h.getValue)
	values.Get("/:id/config", h.getValueConfig)
	values.Get("/:id/history", h.getHistory)
}

func (h *MasterHandler) healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"values": len(h.values),
	})
}

func (h *MasterHandler) listValues(c *fiber.Ctx) error {
	ids := make([]string, 0, len(h.values))
	for id := range h.values {
		ids = append(ids, id)
	}
	return c.JSON(ids)
}

// modbusPoll is one decoded value plus its poll timestamp.
type modbusPoll struct {
	ValueID       string      `json:"value_id"`
	Value         model.Value `json:"value"`
	SecsSinceEpoch int64       `json:"secs_since_epoch"`
}

func (h *MasterHandler) getValue(c *fiber.Ctx) error {
	id := c.Params("id")
	v, ok := h.values[id]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "value was not configured"})
	}
	sample, err := h.store.LastSample(id, v.DataType)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "access to db failed"})
	}
	if sample == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no samples recorded yet"})
	}
	return c.JSON(modbusPoll{ValueID: sample.ValueID, Value: sample.Value, SecsSinceEpoch: sample.Timestamp})
}

func (h *MasterHandler) getValueConfig(c *fiber.Ctx) error {
	id := c.Params("id")
	v, ok := h.values[id]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "value was not configured"})
	}
	return c.JSON(v)
}

// historyResult is either an aggregation or a raw sample, distinguished
// only by which field is present in the JSON.
type historyResult struct {
	AggregationInfo *model.Aggregate `json:"aggregation_info,omitempty"`
	ValueInfo       *modbusPoll      `json:"value_info,omitempty"`
}

// getHistory implements GET /values/{id}/history: aggregations
// within [start_date, end_date] bucketed between
// min_group and max_group, plus raw samples appended when
// min_group=NoGrouping.
func (h *MasterHandler) getHistory(c *fiber.Ctx) error {
	id := c.Params("id")
	v, ok := h.values[id]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "value was not configured"})
	}

	startDate := parseEpochQuery(c, "start_date", 0)
	endDate := parseEpochQuery(c, "end_date", 1<<62)
	maxGroup := parsePeriodQuery(c, "max_group", model.Day)
	minGroup := parsePeriodQuery(c, "min_group", model.NoGrouping)

	result := make([]historyResult, 0)

	aggregates, err := h.store.AggregatesBetween(id, v.DataType, startDate, endDate, minGroup, maxGroup)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "access to db failed"})
	}
	for i := range aggregates {
		result = append(result, historyResult{AggregationInfo: &aggregates[i]})
	}

	if minGroup == model.NoGrouping {
		samples, err := h.store.SamplesBetween(id, v.DataType, startDate, endDate)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "access to db failed"})
		}
		for _, s := range samples {
			result = append(result, historyResult{ValueInfo: &modbusPoll{ValueID: s.ValueID, Value: s.Value, SecsSinceEpoch: s.Timestamp}})
		}
	}

	return c.JSON(result)
}

func parseEpochQuery(c *fiber.Ctx, key string, def int64) int64 {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func parsePeriodQuery(c *fiber.Ctx, key string, def model.Period) model.Period {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return model.Period(n)
}
