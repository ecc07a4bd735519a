package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/crucible/internal/qstore"
	"github.com/samcharles93/crucible/internal/tensor"
	"github.com/samcharles93/crucible/pkg/qblock"
)

func (s *Server) handleMatMul(c *echo.Context) error {
	req, err := decodeJSON[MatMulRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	scheme, err := qblock.ParseScheme(req.Scheme)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	strategy, err := qstore.ParseStrategy(req.Strategy)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Rows <= 0 || req.Cols <= 0 {
		return writeBadRequest(c, "rows and cols must be positive")
	}
	if len(req.Shape) == 0 {
		return writeBadRequest(c, "shape is required")
	}
	elems := 1
	for _, dim := range req.Shape {
		if dim <= 0 {
			return writeBadRequest(c, "shape dims must be positive")
		}
		elems *= dim
	}
	if elems != len(req.Input) {
		return writeBadRequest(c, fmt.Sprintf("input has %d values but shape wants %d", len(req.Input), elems))
	}

	st, err := qstore.Load(s.dev, scheme, req.Weights, req.Rows*req.Cols)
	if err != nil {
		return writeDomainError(c, err)
	}
	defer st.Close()

	rhs, err := tensor.FromFloats(s.dev, req.Input, req.Shape...)
	if err != nil {
		return writeDomainError(c, err)
	}
	defer rhs.Close()

	out, err := st.Forward(req.Rows, req.Cols, rhs, strategy)
	if err != nil {
		return writeDomainError(c, err)
	}
	defer out.Close()

	vals, err := out.Floats()
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, MatMulResponse{
		Shape:  out.Shape(),
		Values: vals,
	})
}
