package api

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Device  string `json:"device"`
}

type SchemeInfo struct {
	Name      string `json:"name"`
	BlockSize int    `json:"block_size"`
	TypeSize  int    `json:"type_size"`
}

type SchemeList struct {
	Object string       `json:"object"`
	Data   []SchemeInfo `json:"data"`
}

type QuantizeRequest struct {
	Scheme string    `json:"scheme"`
	Values []float32 `json:"values"`
}

// Payload marshals as standard base64, the encoding/json convention for
// byte slices.
type QuantizeResponse struct {
	ID          string `json:"id"`
	Scheme      string `json:"scheme"`
	ElemCount   int    `json:"elem_count"`
	SizeInBytes int    `json:"size_in_bytes"`
	Payload     []byte `json:"payload"`
}

type DequantizeRequest struct {
	Scheme    string `json:"scheme"`
	ElemCount int    `json:"elem_count"`
	Payload   []byte `json:"payload"`
}

type DequantizeResponse struct {
	Scheme string    `json:"scheme"`
	Values []float32 `json:"values"`
}

// MatMulRequest multiplies a quantized rows x cols weight matrix against a
// dense activation given as flat values plus a shape.
type MatMulRequest struct {
	Scheme   string    `json:"scheme"`
	Rows     int       `json:"rows"`
	Cols     int       `json:"cols"`
	Weights  []byte    `json:"weights"`
	Input    []float32 `json:"input"`
	Shape    []int     `json:"shape"`
	Strategy string    `json:"strategy,omitempty"`
}

type MatMulResponse struct {
	Shape  []int     `json:"shape"`
	Values []float32 `json:"values"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}
