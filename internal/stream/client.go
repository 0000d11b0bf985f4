package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jyannick/OrbitPlot/internal/metrics"
)

const writeTimeout = 30 * time.Second

// client writes named SSE events to one connection.
type client struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	ip     string
	logger *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// send marshals v as JSON and writes it as an SSE event:
//
//	event: <name>
//	id: <id>
//	data: {json}
//
// The id line is omitted when id is zero.
func (c *client) send(name string, id uint64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	var b strings.Builder
	b.Grow(len(data) + len(name) + 32)
	fmt.Fprintf(&b, "event: %s\n", name)
	if id > 0 {
		fmt.Fprintf(&b, "id: %d\n", id)
	}
	b.WriteString("data: ")
	b.Write(data)
	b.WriteString("\n\n")

	n, err := c.write(b.String())
	if err != nil {
		return err
	}
	c.messagesSent++
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(int64(n))
	return nil
}

// sendKeepalive writes an SSE comment line.
func (c *client) sendKeepalive() error {
	n, err := c.write(":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	metrics.AddStreamBytes(int64(n))
	return nil
}

func (c *client) write(s string) (int, error) {
	// Extend the deadline per write; the server-wide WriteTimeout is cleared
	// for streams.
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := fmt.Fprint(c.w, s)
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}
	if err := c.rc.Flush(); err != nil {
		return n, fmt.Errorf("flush: %w", err)
	}
	c.bytesSent += int64(n)
	return n, nil
}
