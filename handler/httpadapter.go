package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"voicebot/internal/metrics"
	"voicebot/internal/usecase"
)

// maxBodyBytes mirrors the API Gateway payload ceiling.
const maxBodyBytes = 10 << 20

// HTTPAdapter serves the Lambda handler over plain net/http for local runs.
type HTTPAdapter struct {
	h            *Handler
	metrics      *metrics.Metrics
	maxBodyBytes int64
}

func NewHTTPAdapter(h *Handler, m *metrics.Metrics) (*HTTPAdapter, error) {
	if h == nil {
		return nil, errors.New("handler: handler must not be nil")
	}
	return &HTTPAdapter{h: h, metrics: m, maxBodyBytes: maxBodyBytes}, nil
}

func (a *HTTPAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBodyBytes))
	if err != nil {
		resp := jsonResponse(http.StatusRequestEntityTooLarge, errorResponse{
			Error:   string(usecase.ErrorInvalidInput),
			Message: "Request body is too large.",
		})
		correlationID := r.Header.Get(correlationHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		resp.Headers[correlationHeader] = correlationID
		a.write(w, r, resp, start)
		return
	}

	resp, _ := a.h.Handle(r.Context(), toProxyRequest(r, body))
	a.write(w, r, resp, start)
}

func (a *HTTPAdapter) write(w http.ResponseWriter, r *http.Request, resp events.APIGatewayProxyResponse, start time.Time) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = io.WriteString(w, resp.Body)
	}
	a.record(r, resp.StatusCode, start)
}

func (a *HTTPAdapter) record(r *http.Request, status int, start time.Time) {
	a.metrics.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), strconv.Itoa(status), time.Since(start).Seconds())
}

func toProxyRequest(r *http.Request, body []byte) events.APIGatewayProxyRequest {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	query := make(map[string]string, len(r.URL.Query()))
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	return events.APIGatewayProxyRequest{
		HTTPMethod:            r.Method,
		Path:                  r.URL.Path,
		Headers:               headers,
		QueryStringParameters: query,
		Body:                  string(body),
	}
}

// routeLabel keeps metric cardinality bounded to the known routes.
func routeLabel(path string) string {
	switch p := normalizePath(path); p {
	case routeSubmit, routeReset, routeTranscript, routeSession:
		return p
	default:
		return "other"
	}
}
