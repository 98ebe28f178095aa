// Package speech reads incoming statuses aloud. It is a fire-and-forget
// side effect of the event dispatcher: failures are logged and dropped,
// never retried, and never surfaced to the views.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"time"

	"github.com/petrelapp/petrel/core"
)

const speakTimeout = 5 * time.Second

// Speaker hands one plain-text utterance to a synthesis backend
type Speaker interface {
	Speak(ctx context.Context, text string)
}

// NewSpeaker selects the backend from config. The two backends are
// mutually exclusive; "none" (or anything unknown) yields a no-op.
func NewSpeaker(config core.Config) Speaker {
	switch config.SpeechBackend {
	case "command":
		return &commandSpeaker{command: config.SpeechCommand}
	case "http":
		return &httpSpeaker{port: config.SpeechPort}
	}
	return &nullSpeaker{}
}

type nullSpeaker struct{}

func (s *nullSpeaker) Speak(ctx context.Context, text string) {
}

// commandSpeaker spawns a local synthesis command with the utterance as
// its argument
type commandSpeaker struct {
	command string
}

func (s *commandSpeaker) Speak(ctx context.Context, text string) {
	if s.command == "" || text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, speakTimeout)
	defer cancel()

	err := exec.CommandContext(ctx, s.command, text).Run()
	if err != nil {
		slog.Warn(
			fmt.Sprintf("speech command failed: %v", err),
			slog.String("module", "speech"),
		)
	}
}

// httpSpeaker posts the utterance to a synthesis daemon on a configured
// local port
type httpSpeaker struct {
	port int
}

func (s *httpSpeaker) Speak(ctx context.Context, text string) {
	if s.port == 0 || text == "" {
		return
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return
	}

	url := fmt.Sprintf("http://localhost:%d/speak", s.port)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := new(http.Client)
	httpClient.Timeout = speakTimeout
	resp, err := httpClient.Do(req)
	if err != nil {
		slog.Warn(
			fmt.Sprintf("speech endpoint unreachable: %v", err),
			slog.String("module", "speech"),
		)
		return
	}
	resp.Body.Close()
}
