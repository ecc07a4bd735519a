package api

import (
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/crucible/internal/device"
	"github.com/samcharles93/crucible/internal/version"
	"github.com/samcharles93/crucible/pkg/qblock"
)

type Server struct {
	dev device.Device
}

func NewServer(dev device.Device) *Server {
	return &Server{dev: dev}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealthz)
	e.GET("/v1/schemes", s.handleSchemes)
	e.POST("/v1/quantize", s.handleQuantize)
	e.POST("/v1/dequantize", s.handleDequantize)
	e.POST("/v1/matmul", s.handleMatMul)
}

func (s *Server) handleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.String(),
		Device:  s.dev.Name(),
	})
}

func (s *Server) handleSchemes(c *echo.Context) error {
	schemes := qblock.Schemes()
	out := SchemeList{
		Object: "list",
		Data:   make([]SchemeInfo, 0, len(schemes)),
	}
	for _, sc := range schemes {
		out.Data = append(out.Data, SchemeInfo{
			Name:      sc.String(),
			BlockSize: sc.BlockSize(),
			TypeSize:  sc.TypeSize(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
