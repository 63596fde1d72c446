package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/renderforge/render-gateway/internal/model"
)

// ErrUnavailable means the rendering service is tripped or unreachable;
// retryable, nothing was charged.
var ErrUnavailable = errors.New("renderer unavailable")

// maxResultBytes caps what we buffer from the rendering service (64 MiB).
const maxResultBytes = 64 << 20

// HTTPRenderer calls a rendering service over HTTP with a bounded timeout
// and a small circuit breaker in front.
type HTTPRenderer struct {
	baseURL string
	client  *http.Client
	br      *breaker
}

func NewHTTPRenderer(baseURL string, timeoutMs, failThreshold, openForMs int) *HTTPRenderer {
	if timeoutMs <= 0 {
		timeoutMs = 30000
	}
	return &HTTPRenderer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      newBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (r *HTTPRenderer) Render(ctx context.Context, job model.RenderJob) (Result, error) {
	if !r.br.acquire() {
		return Result{}, ErrUnavailable
	}

	res, err := r.render(ctx, job)
	if err != nil {
		r.br.onFailure()
		return Result{}, err
	}

	r.br.onSuccess()
	return res, nil
}

func (r *HTTPRenderer) render(ctx context.Context, job model.RenderJob) (Result, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/render", bytes.NewReader(b))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("render request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return Result{}, fmt.Errorf("render service: status=%d", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResultBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read render result: %w", err)
	}

	ct := res.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return Result{Body: body, ContentType: ct}, nil
}

var _ Renderer = (*HTTPRenderer)(nil)
