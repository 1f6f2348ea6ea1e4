package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/aatumaykin/nexbotd/internal/health"
)

// defaultQueryTimeout applies when ctx carries no deadline.
var defaultQueryTimeout = 5 * time.Second

// QueryHealth fetches one snapshot from the health socket at socketPath.
func QueryHealth(ctx context.Context, socketPath string) (health.Status, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return health.Status{}, fmt.Errorf("failed to connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultQueryTimeout)
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte("status\n")); err != nil {
		return health.Status{}, fmt.Errorf("failed to send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return health.Status{}, fmt.Errorf("failed to read response: %w", err)
	}

	var status health.Status
	if err := json.Unmarshal(line, &status); err != nil {
		return health.Status{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return status, nil
}
