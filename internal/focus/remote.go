package focus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/studytrack/backend/internal/models"
)

const requestTimeout = 10 * time.Second

// ErrConflict is returned when the server refuses an update because the
// session is completed or owned by another device. Retrying cannot help.
var ErrConflict = errors.New("session conflict")

// Remote is the server side of a focus session.
type Remote interface {
	Create(ctx context.Context, req models.CreateFocusSessionRequest) (*models.FocusSession, error)
	Act(ctx context.Context, req models.FocusActionRequest) (*models.FocusActionResponse, error)
}

// StatusError carries a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrConflict && e.Code == http.StatusConflict
}

// Retryable reports whether replaying the same request later may succeed.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// IsRetryable treats transport errors and timeouts as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

// ── HTTP client ────────────────────────────────────────────

type HTTPRemote struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPRemote(baseURL, token string) *HTTPRemote {
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

func (r *HTTPRemote) Create(ctx context.Context, req models.CreateFocusSessionRequest) (*models.FocusSession, error) {
	var resp models.CreateFocusSessionResponse
	if err := r.do(ctx, http.MethodPost, "/api/v1/focus-sessions", req, &resp); err != nil {
		return nil, fmt.Errorf("create focus session: %w", err)
	}
	return &resp.FocusSession, nil
}

func (r *HTTPRemote) Act(ctx context.Context, req models.FocusActionRequest) (*models.FocusActionResponse, error) {
	var resp models.FocusActionResponse
	if err := r.do(ctx, http.MethodPatch, "/api/v1/focus-sessions", req, &resp); err != nil {
		return nil, fmt.Errorf("%s focus session: %w", req.Action, err)
	}
	return &resp, nil
}

// Active fetches the user's open session, or nil when there is none.
func (r *HTTPRemote) Active(ctx context.Context) (*models.FocusSession, error) {
	var resp models.CreateFocusSessionResponse
	err := r.do(ctx, http.MethodGet, "/api/v1/focus-sessions/active", nil, &resp)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch active session: %w", err)
	}
	return &resp.FocusSession, nil
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e models.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
