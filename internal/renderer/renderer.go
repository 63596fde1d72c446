// Package renderer is the boundary to the headless rendering engine. The
// admission core hands over a validated job and gets bytes back; browser
// automation and templating live on the other side.
package renderer

import (
	"context"

	"github.com/renderforge/render-gateway/internal/model"
)

// Result is a completed render.
type Result struct {
	Body        []byte
	ContentType string
}

// Renderer executes one job. Calls may take seconds and are bounded by the
// implementation's own timeout; they must never be made under a lock.
type Renderer interface {
	Render(ctx context.Context, job model.RenderJob) (Result, error)
}
