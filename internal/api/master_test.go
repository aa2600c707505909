package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/model"
)

type fakeMasterStore struct {
	last       map[string]*model.Sample
	aggregates []model.Aggregate
	samples    []model.Sample
	err        error
}

func (f *fakeMasterStore) LastSample(valueID string, dataType model.DataType) (*model.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.last[valueID], nil
}

func (f *fakeMasterStore) AggregatesBetween(valueID string, dataType model.DataType, t0, t1 int64, minPeriod, maxPeriod model.Period) ([]model.Aggregate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.aggregates, nil
}

func (f *fakeMasterStore) SamplesBetween(valueID string, dataType model.DataType, t0, t1 int64) ([]model.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.samples, nil
}

func testConns() []config.PolledConnection {
	return []config.PolledConnection{
		{
			IP: "10.0.0.1",
			Slaves: []config.PolledSlave{
				{ID: 1, Values: []config.PolledValue{
					{ID: "counter", DataType: model.Uint16, Table: model.HoldingRegisters},
				}},
			},
		},
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestMasterAPI_ListValues(t *testing.T) {
	h := NewMasterHandler(&fakeMasterStore{}, testConns())
	app := fiber.New()
	h.SetupRoutes(app)

	status, body := doJSON(t, app, http.MethodGet, "/api/v1/values")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(body), "counter")
}

func TestMasterAPI_GetValue_NotConfigured(t *testing.T) {
	h := NewMasterHandler(&fakeMasterStore{}, testConns())
	app := fiber.New()
	h.SetupRoutes(app)

	status, _ := doJSON(t, app, http.MethodGet, "/api/v1/values/unknown")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestMasterAPI_GetValue_NoSampleYet(t *testing.T) {
	h := NewMasterHandler(&fakeMasterStore{last: map[string]*model.Sample{}}, testConns())
	app := fiber.New()
	h.SetupRoutes(app)

	status, _ := doJSON(t, app, http.MethodGet, "/api/v1/values/counter")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestMasterAPI_GetValue_ReturnsLastSample(t *testing.T) {
	store := &fakeMasterStore{last: map[string]*model.Sample{
		"counter": {ValueID: "counter", Timestamp: 123, Value: model.NewFloat(0)},
	}}
	h := NewMasterHandler(store, testConns())
	app := fiber.New()
	h.SetupRoutes(app)

	status, body := doJSON(t, app, http.MethodGet, "/api/v1/values/counter")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(body), `"secs_since_epoch":123`)
}

func TestMasterAPI_GetValueConfig(t *testing.T) {
	h := NewMasterHandler(&fakeMasterStore{}, testConns())
	app := fiber.New()
	h.SetupRoutes(app)

	status, body := doJSON(t, app, http.MethodGet, "/api/v1/values/counter/config")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(body), `"id":"counter"`)
}

func TestMasterAPI_History_AppendsRawSamplesWhenNoGrouping(t *testing.T) {
	store := &fakeMasterStore{
		aggregates: []model.Aggregate{{ValueID: "counter", Period: model.Hour}},
		samples:    []model.Sample{{ValueID: "counter", Timestamp: 5, Value: model.NewFloat(1)}},
	}
	h := NewMasterHandler(store, testConns())
	app := fiber.New()
	h.SetupRoutes(app)

	status, body := doJSON(t, app, http.MethodGet, "/api/v1/values/counter/history")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(body), "aggregation_info")
	assert.Contains(t, string(body), "value_info")
}

func TestMasterAPI_History_StoreFailureReturns500(t *testing.T) {
	h := NewMasterHandler(&fakeMasterStore{err: assert.AnError}, testConns())
	app := fiber.New()
	h.SetupRoutes(app)

	status, _ := doJSON(t, app, http.MethodGet, "/api/v1/values/counter/history")
	assert.Equal(t, fiber.StatusInternalServerError, status)
}
