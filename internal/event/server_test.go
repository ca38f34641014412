package event

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloom/taskloom/internal/eventbus"
)

// startStream opens the SSE endpoint and returns once the response headers
// arrive. The handler subscribes before writing headers, so events published
// after this returns are guaranteed to reach the stream.
func startStream(t *testing.T, bus *eventbus.Bus, path string) *bufio.Reader {
	t.Helper()
	r := chi.NewRouter()
	NewServer(bus).RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

// readFrame collects one event frame, i.e. everything up to the blank line.
func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" {
			return b.String()
		}
		b.WriteString(line)
	}
}

func TestStreamDeliversEventsInOrder(t *testing.T) {
	bus := eventbus.New()
	stream := startStream(t, bus, "/events")

	bus.PublishNew(eventbus.TypeTaskCreated, "t1", "created", nil)
	bus.PublishNew(eventbus.TypeCommentCreated, "c1", "commented", map[string]string{"taskId": "t1"})

	first := readFrame(t, stream)
	assert.Contains(t, first, "event: task.created")
	assert.Contains(t, first, `"resourceId":"t1"`)

	second := readFrame(t, stream)
	assert.Contains(t, second, "event: comment.created")
	assert.Contains(t, second, `"taskId":"t1"`)
}

func TestStreamFiltersByType(t *testing.T) {
	bus := eventbus.New()
	stream := startStream(t, bus, "/events?types=task.updated,task.deleted")

	bus.PublishNew(eventbus.TypeTaskCreated, "t1", "skipped", nil)
	bus.PublishNew(eventbus.TypeNotificationCreated, "n1", "skipped", nil)
	bus.PublishNew(eventbus.TypeTaskUpdated, "t2", "kept", nil)
	bus.PublishNew(eventbus.TypeTaskDeleted, "t3", "kept", nil)

	first := readFrame(t, stream)
	assert.Contains(t, first, "event: task.updated")
	assert.Contains(t, first, `"resourceId":"t2"`)
	assert.NotContains(t, first, "task.created")

	second := readFrame(t, stream)
	assert.Contains(t, second, "event: task.deleted")
	assert.Contains(t, second, `"resourceId":"t3"`)
}
