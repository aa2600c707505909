package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jordise2002/modbus-watch/internal/grid"
	"github.com/jordise2002/modbus-watch/internal/model"
)

// SlaveGrid is the slice of the register grid the slave's HTTP API
// reads and writes; *grid.Grid satisfies it.
type SlaveGrid interface {
	GetValue(valueID string) (model.Value, error)
	SetValue(valueID string, v model.Value) error
}

// SlaveHandler holds the dependencies of the slave's HTTP API.
type SlaveHandler struct {
	grid SlaveGrid
	ids  []string
}

// NewSlaveHandler builds a SlaveHandler given the flattened list of
// served value ids, used for the listing endpoint.
func NewSlaveHandler(g SlaveGrid, ids []string) *SlaveHandler {
	return &SlaveHandler{grid: g, ids: ids}
}

// SetupRoutes wires the slave's /api/v1/values surface.
func (h *SlaveHandler) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/v1")
	api.Get("/health", h.healthCheck)

	values := api.Group("/values")
	values.Get("/", h.listValues)
	values.Get("/:id", h.getValue)
	values.Put("/:id", h.setValue)
}

func (h *SlaveHandler) healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy", "values": len(h.ids)})
}

func (h *SlaveHandler) listValues(c *fiber.Ctx) error {
	return c.JSON(h.ids)
}

func (h *SlaveHandler) getValue(c *fiber.Ctx) error {
	id := c.Params("id")
	v, err := h.grid.GetValue(id)
	if err != nil {
		if errors.Is(err, grid.ErrUnknownValue) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "value was not configured"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "grid access failed"})
	}
	return c.JSON(v)
}

func (h *SlaveHandler) setValue(c *fiber.Ctx) error {
	id := c.Params("id")
	var v model.Value
	if err := c.BodyParser(&v); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid value body"})
	}
	if err := h.grid.SetValue(id, v); err != nil {
		if errors.Is(err, grid.ErrUnknownValue) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "value was not configured"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "grid access failed"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
