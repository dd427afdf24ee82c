package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderHTML_RequiresURL(t *testing.T) {
	_, err := RenderHTML(context.Background(), RenderOptions{})
	assert.EqualError(t, err, "capture: URL is required")
}
