package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"voicebot/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"

	routeSubmit     = "/submit"
	routeReset      = "/reset"
	routeTranscript = "/transcript"
	routeSession    = "/session"

	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

type ChatService interface {
	Submit(ctx context.Context, in usecase.SubmitInput) (usecase.SubmitOutput, error)
	Reset(ctx context.Context, sessionID string) (usecase.TranscriptOutput, error)
	Transcript(ctx context.Context, sessionID string) (usecase.TranscriptOutput, error)
	End(ctx context.Context, sessionID string) error
}

type Handler struct {
	svc    ChatService
	logger *slog.Logger
}

type submitRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Audio     []byte `json:"audio"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

type submitResponse struct {
	SessionID  string   `json:"sessionId"`
	Reply      string   `json:"reply"`
	Transcript []string `json:"transcript"`
}

type transcriptResponse struct {
	SessionID  string   `json:"sessionId"`
	Transcript []string `json:"transcript"`
}

type errorResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message"`
	SessionID  string   `json:"sessionId,omitempty"`
	Transcript []string `json:"transcript,omitempty"`
}

func NewHandler(svc ChatService, logger *slog.Logger) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: service must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}, nil
}

// Handle serves one API Gateway proxy request. Failures are always reported
// through the response; the returned error is reserved for the Lambda runtime
// and is always nil.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID)

	resp := h.route(ctx, logger, event)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[correlationHeader] = correlationID

	logger.InfoContext(ctx, "request handled",
		"method", event.HTTPMethod,
		"path", event.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (h *Handler) route(ctx context.Context, logger *slog.Logger, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	path := normalizePath(event.Path)
	method := strings.ToUpper(event.HTTPMethod)

	switch path {
	case routeSubmit:
		if method != http.MethodPost {
			return methodNotAllowed(http.MethodPost)
		}
		return h.submit(ctx, logger, event)
	case routeReset:
		if method != http.MethodPost {
			return methodNotAllowed(http.MethodPost)
		}
		return h.reset(ctx, logger, event)
	case routeTranscript:
		if method != http.MethodGet {
			return methodNotAllowed(http.MethodGet)
		}
		return h.transcript(ctx, logger, event)
	case routeSession:
		if method != http.MethodDelete {
			return methodNotAllowed(http.MethodDelete)
		}
		return h.end(ctx, logger, event)
	default:
		return jsonResponse(http.StatusNotFound, errorResponse{
			Error:   codeNotFound,
			Message: "No such route.",
		})
	}
}

func (h *Handler) submit(ctx context.Context, logger *slog.Logger, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var req submitRequest
	if err := decodeBody(event, &req); err != nil {
		logger.InfoContext(ctx, "invalid submit body", "err", err)
		return invalidBody()
	}

	out, err := h.svc.Submit(ctx, usecase.SubmitInput{
		SessionID: req.SessionID,
		Text:      req.Text,
		Audio:     req.Audio,
	})
	if err != nil {
		return errorResult(err, out.SessionID, out.Transcript)
	}
	return jsonResponse(http.StatusOK, submitResponse{
		SessionID:  out.SessionID,
		Reply:      out.Reply,
		Transcript: nonNil(out.Transcript),
	})
}

func (h *Handler) reset(ctx context.Context, logger *slog.Logger, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var req sessionRequest
	if err := decodeBody(event, &req); err != nil {
		logger.InfoContext(ctx, "invalid reset body", "err", err)
		return invalidBody()
	}
	out, err := h.svc.Reset(ctx, req.SessionID)
	if err != nil {
		return errorResult(err, out.SessionID, out.Transcript)
	}
	return jsonResponse(http.StatusOK, transcriptResponse{SessionID: out.SessionID, Transcript: nonNil(out.Transcript)})
}

func (h *Handler) transcript(ctx context.Context, _ *slog.Logger, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	out, err := h.svc.Transcript(ctx, event.QueryStringParameters["sessionId"])
	if err != nil {
		return errorResult(err, out.SessionID, out.Transcript)
	}
	return jsonResponse(http.StatusOK, transcriptResponse{SessionID: out.SessionID, Transcript: nonNil(out.Transcript)})
}

func (h *Handler) end(ctx context.Context, _ *slog.Logger, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	sessionID := event.QueryStringParameters["sessionId"]
	if err := h.svc.End(ctx, sessionID); err != nil {
		return errorResult(err, sessionID, nil)
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}
}

func decodeBody(event events.APIGatewayProxyRequest, v any) error {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return err
		}
		body = decoded
	}
	return json.Unmarshal(body, v)
}

func errorResult(err error, sessionID string, transcript []string) events.APIGatewayProxyResponse {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		ue = &usecase.Error{Code: usecase.ErrorInternal, Err: err}
	}
	return jsonResponse(statusFor(ue.Code), errorResponse{
		Error:      string(ue.Code),
		Message:    ue.UserMessage(),
		SessionID:  sessionID,
		Transcript: transcript,
	})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorNoInput, usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorTranscription:
		return http.StatusUnprocessableEntity
	case usecase.ErrorCompletion:
		return http.StatusBadGateway
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorSessionBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func invalidBody() events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusBadRequest, errorResponse{
		Error:   string(usecase.ErrorInvalidInput),
		Message: "Request body must be valid JSON.",
	})
}

func methodNotAllowed(allow string) events.APIGatewayProxyResponse {
	resp := jsonResponse(http.StatusMethodNotAllowed, errorResponse{
		Error:   codeMethodNotAllowed,
		Message: "Method not allowed.",
	})
	resp.Headers["Allow"] = allow
	return resp
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR","message":"Something went wrong. Please try again."}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

// headerValue looks a header up case-insensitively; API Gateway passes
// headers through with whatever casing the client used.
func headerValue(headers map[string]string, key string) string {
	if v, ok := headers[key]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
