// Package hostcall is the line protocol between the host engine and the
// capture server. A call is one line, either `:COMMAND:|arg|arg` or a JSON
// array `[":COMMAND:", "arg", "arg"]`. Every call gets one reply line.
package hostcall

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rtsforge/capturepoint/internal/dispatcher"
)

// ErrEmptyCall is returned by ParseLine for blank lines and comments.
var ErrEmptyCall = errors.New("empty call")

// maxLine bounds one call. Snapshot batches from the engine can be large.
const maxLine = 1 << 20

// Bridge feeds host calls to a dispatcher and writes replies and callbacks.
type Bridge struct {
	name       string
	version    string
	dispatcher *dispatcher.Dispatcher

	mu  sync.Mutex
	out io.Writer
}

// New creates a bridge. name prefixes every callback line.
func New(name, version string, d *dispatcher.Dispatcher, out io.Writer) *Bridge {
	return &Bridge{name: name, version: version, dispatcher: d, out: out}
}

// ParseLine splits one call into command and args.
func ParseLine(line string) (string, []string, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", nil, ErrEmptyCall
	}

	if strings.HasPrefix(line, "[") {
		var parts []string
		if err := json.Unmarshal([]byte(line), &parts); err != nil {
			return "", nil, fmt.Errorf("parsing call %q: %w", line, err)
		}
		if len(parts) == 0 || parts[0] == "" {
			return "", nil, ErrEmptyCall
		}
		return parts[0], parts[1:], nil
	}

	parts := strings.Split(line, "|")
	return parts[0], parts[1:], nil
}

// Call dispatches one parsed call and returns the reply.
func (b *Bridge) Call(command string, args []string) string {
	switch command {
	case ":TIMESTAMP:":
		return formatDispatchResponse(command, getTimestamp(), nil)
	case ":EXT:VERSION:":
		return formatDispatchResponse(command, b.version, nil)
	}

	if b.dispatcher == nil || !b.dispatcher.HasHandler(command) {
		return formatDispatchResponse(command, nil, fmt.Errorf("no handler registered for %s", command))
	}

	result, err := b.dispatcher.Dispatch(dispatcher.Event{
		Command:   command,
		Args:      args,
		Timestamp: time.Now(),
	})
	return formatDispatchResponse(command, result, err)
}

// CallLine parses and dispatches one line. Blank lines yield no reply.
func (b *Bridge) CallLine(line string) (string, bool) {
	command, args, err := ParseLine(line)
	if errors.Is(err, ErrEmptyCall) {
		return "", false
	}
	if err != nil {
		return formatDispatchResponse("", nil, err), true
	}
	return b.Call(command, args), true
}

// Serve reads calls from r until EOF or ctx is done, writing each reply.
func (b *Bridge) Serve(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLine)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if reply, ok := b.CallLine(line); ok {
				if err := b.writeLine(reply); err != nil {
					return err
				}
			}
		}
	}
}

// Callback sends an unsolicited message to the host, such as a match
// export notice.
func (b *Bridge) Callback(function string, data ...string) error {
	if data == nil {
		data = []string{}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return b.writeLine(fmt.Sprintf(`["%s", "%s", %s]`, b.name, function, body))
}

func (b *Bridge) writeLine(s string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.out == nil {
		return nil
	}
	_, err := io.WriteString(b.out, s+"\n")
	return err
}

// formatDispatchResponse formats a dispatcher result as a reply. Strings are
// passed through, other values are encoded as JSON.
func formatDispatchResponse(command string, result any, err error) string {
	if err != nil {
		return fmt.Sprintf(`["error", "%s"]`, err.Error())
	}
	switch v := result.(type) {
	case nil:
		return `["ok"]`
	case string:
		return fmt.Sprintf(`["ok", "%s"]`, v)
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`["error", "%s: %s"]`, command, err.Error())
	}
	return fmt.Sprintf(`["ok", %s]`, body)
}

func getTimestamp() string {
	return fmt.Sprintf("%d", time.Now().UTC().UnixNano())
}
