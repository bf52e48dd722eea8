package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/huskyapply/gateway/internal/models"
	"github.com/huskyapply/gateway/internal/stream"
)

type WatchCmd struct {
	Server  string        `help:"Gateway URL" default:"http://localhost:8080" env:"HUSKY_SERVER"`
	Token   string        `help:"Bearer token for authentication" env:"HUSKY_TOKEN"`
	JobID   string        `arg:"" help:"Job ID to watch"`
	Timeout time.Duration `help:"Give up waiting for a terminal event after this long" default:"10m"`
}

func (w *WatchCmd) Run(ctx context.Context, globals *Globals) error {
	fmt.Printf("Streaming events for job %s\n", w.JobID)

	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/applications/%s/stream", w.Server, w.JobID), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if w.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.Token)
	}

	// No client timeout: the stream stays open until a terminal event, and
	// the context deadline above bounds the whole watch.
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	terminal, err := w.consume(bufio.NewScanner(resp.Body))
	if err != nil {
		return err
	}
	if !terminal {
		return errors.New("stream ended before a terminal event; fetch the result with 'husky artifact'")
	}
	return nil
}

// consume reads SSE frames until a terminal status event or the end of the
// stream, reporting whether a terminal event arrived.
func (w *WatchCmd) consume(scanner *bufio.Scanner) (bool, error) {
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			// Blank line ends the frame.
			done, err := w.printFrame(event, data)
			if err != nil || done {
				return done, err
			}
			event, data = "", ""
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("stream read failed: %w", err)
	}
	return false, nil
}

func (w *WatchCmd) printFrame(event, data string) (bool, error) {
	switch event {
	case stream.EventHeartbeat:
		return false, nil

	case stream.EventError:
		return false, fmt.Errorf("stream error: %s", data)

	case stream.EventStatus, stream.EventStreaming:
		var ev models.StatusEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return false, fmt.Errorf("malformed event payload: %w", err)
		}

		ts := ev.Timestamp.Local().Format("15:04:05")
		switch {
		case ev.StreamingData != nil:
			fmt.Printf("[%s] %s %.0f%% (%d tokens, $%.4f)\n",
				ts, ev.Status, ev.StreamingData.Progress*100,
				ev.StreamingData.TokensGenerated, ev.StreamingData.CostSoFar)
		case ev.Message != "":
			fmt.Printf("[%s] %s: %s\n", ts, ev.Status, ev.Message)
		default:
			fmt.Printf("[%s] %s\n", ts, ev.Status)
		}

		if ev.Terminal() {
			if ev.Status == models.StatusCompleted && ev.Text() != "" {
				fmt.Printf("\n%s\n", ev.Text())
			}
			return true, nil
		}
		return false, nil

	default:
		return false, nil
	}
}
