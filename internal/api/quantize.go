package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/crucible/internal/qstore"
	"github.com/samcharles93/crucible/pkg/qblock"
)

func (s *Server) handleQuantize(c *echo.Context) error {
	req, err := decodeJSON[QuantizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	scheme, err := qblock.ParseScheme(req.Scheme)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(req.Values) == 0 {
		return writeBadRequest(c, "values is required")
	}

	st, err := qstore.Zeros(s.dev, scheme, len(req.Values))
	if err != nil {
		return writeDomainError(c, err)
	}
	defer st.Close()

	if err := st.QuantizeFloats(req.Values); err != nil {
		return writeDomainError(c, err)
	}
	payload, err := st.Bytes()
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, QuantizeResponse{
		ID:          newTensorID(),
		Scheme:      scheme.String(),
		ElemCount:   st.ElemCount(),
		SizeInBytes: st.SizeInBytes(),
		Payload:     payload,
	})
}

func (s *Server) handleDequantize(c *echo.Context) error {
	req, err := decodeJSON[DequantizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	scheme, err := qblock.ParseScheme(req.Scheme)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.ElemCount <= 0 {
		return writeBadRequest(c, "elem_count must be positive")
	}

	st, err := qstore.Load(s.dev, scheme, req.Payload, req.ElemCount)
	if err != nil {
		return writeDomainError(c, err)
	}
	defer st.Close()

	vals, err := st.DequantizeFloats()
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, DequantizeResponse{
		Scheme: scheme.String(),
		Values: vals,
	})
}

func newTensorID() string {
	return "qt_" + uuid.NewString()
}
