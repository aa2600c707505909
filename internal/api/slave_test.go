package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordise2002/modbus-watch/internal/grid"
	"github.com/jordise2002/modbus-watch/internal/model"
)

type fakeSlaveGrid struct {
	values map[string]model.Value
	err    error
}

func (f *fakeSlaveGrid) GetValue(valueID string) (model.Value, error) {
	if f.err != nil {
		return model.Value{}, f.err
	}
	v, ok := f.values[valueID]
	if !ok {
		return model.Value{}, grid.ErrUnknownValue
	}
	return v, nil
}

func (f *fakeSlaveGrid) SetValue(valueID string, v model.Value) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.values[valueID]; !ok {
		return grid.ErrUnknownValue
	}
	f.values[valueID] = v
	return nil
}

func TestSlaveAPI_ListValues(t *testing.T) {
	h := NewSlaveHandler(&fakeSlaveGrid{}, []string{"counter", "alarm"})
	app := fiber.New()
	h.SetupRoutes(app)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/values", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "counter")
	assert.Contains(t, string(body), "alarm")
}

func TestSlaveAPI_GetValue_UnknownReturns404(t *testing.T) {
	h := NewSlaveHandler(&fakeSlaveGrid{values: map[string]model.Value{}}, nil)
	app := fiber.New()
	h.SetupRoutes(app)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/values/counter", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSlaveAPI_GetValue_ReturnsValue(t *testing.T) {
	g := &fakeSlaveGrid{values: map[string]model.Value{"counter": model.NewFloat(3.5)}}
	h := NewSlaveHandler(g, nil)
	app := fiber.New()
	h.SetupRoutes(app)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/values/counter", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "3.5", string(body))
}

func TestSlaveAPI_SetValue_UpdatesGridAndReturns204(t *testing.T) {
	g := &fakeSlaveGrid{values: map[string]model.Value{"counter": model.NewFloat(0)}}
	h := NewSlaveHandler(g, nil)
	app := fiber.New()
	h.SetupRoutes(app)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/values/counter", bytes.NewReader([]byte("9.25")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.InDelta(t, 9.25, g.values["counter"].Float, 1e-9)
}

func TestSlaveAPI_SetValue_UnknownReturns404(t *testing.T) {
	g := &fakeSlaveGrid{values: map[string]model.Value{}}
	h := NewSlaveHandler(g, nil)
	app := fiber.New()
	h.SetupRoutes(app)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/values/counter", bytes.NewReader([]byte("1")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
