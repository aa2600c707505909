package mbus

import (
	"errors"
	"fmt"

	"github.com/simonvetter/modbus"

	"github.com/jordise2002/modbus-watch/internal/config"
	"github.com/jordise2002/modbus-watch/internal/grid"
	"github.com/jordise2002/modbus-watch/internal/model"
)

// Handler adapts a grid.Grid to modbus.RequestHandler, serving the
// slave's emulated register tables over Modbus-TCP.
type Handler struct {
	grid *grid.Grid
}

func NewHandler(g *grid.Grid) *Handler {
	return &Handler{grid: g}
}

func mapGridErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, grid.ErrIllegalDataAddress):
		return modbus.ErrIllegalDataAddress
	default:
		return modbus.ErrServerDeviceFailure
	}
}

func (h *Handler) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	if req.IsWrite {
		if err := h.grid.WriteCoils(req.UnitId, req.Addr, req.Args); err != nil {
			return nil, mapGridErr(err)
		}
	}
	res, err := h.grid.ReadBits(req.UnitId, model.Coils, req.Addr, req.Quantity)
	return res, mapGridErr(err)
}

func (h *Handler) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	res, err := h.grid.ReadBits(req.UnitId, model.DiscreteInputs, req.Addr, req.Quantity)
	return res, mapGridErr(err)
}

func (h *Handler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.IsWrite {
		if err := h.grid.WriteHoldingRegisters(req.UnitId, req.Addr, req.Args); err != nil {
			return nil, mapGridErr(err)
		}
	}
	res, err := h.grid.ReadRegisters(req.UnitId, model.HoldingRegisters, req.Addr, req.Quantity)
	return res, mapGridErr(err)
}

func (h *Handler) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	res, err := h.grid.ReadRegisters(req.UnitId, model.InputRegisters, req.Addr, req.Quantity)
	return res, mapGridErr(err)
}

// Server owns the TCP listener that serves one ServedConnection's
// slaves.
type Server struct {
	server *modbus.ModbusServer
	port   uint16
}

// NewServer constructs (but does not start) the Modbus-TCP server for
// one served connection, bound to g.
func NewServer(conn config.ServedConnection, g *grid.Grid) (*Server, error) {
	srv, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:     fmt.Sprintf("tcp://0.0.0.0:%d", conn.Port),
		Timeout: conn.ConnectionTimeToLive.Duration(),
	}, NewHandler(g))
	if err != nil {
		return nil, fmt.Errorf("mbus: failed to create server on port %d: %w", conn.Port, err)
	}
	return &Server{server: srv, port: conn.Port}, nil
}

func (s *Server) Start() error { return s.server.Start() }
func (s *Server) Stop() error  { return s.server.Stop() }
