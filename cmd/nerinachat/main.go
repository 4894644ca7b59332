package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/nerina/internal/protocol"
)

type options struct {
	baseURL        string
	userID         string
	username       string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type createSessionRequest struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// wsEnvelope is a loose superset of every server frame the client renders.
type wsEnvelope struct {
	Type        string   `json:"type"`
	TurnID      string   `json:"turn_id,omitempty"`
	Text        string   `json:"text,omitempty"`
	TextDelta   string   `json:"text_delta,omitempty"`
	Images      []string `json:"images,omitempty"`
	KarmaDelta  int      `json:"karma_delta,omitempty"`
	Delta       int      `json:"delta,omitempty"`
	Score       int      `json:"score,omitempty"`
	Directive   string   `json:"directive,omitempty"`
	FactsStored int      `json:"facts_stored,omitempty"`
	Summarized  bool     `json:"summarized,omitempty"`
	Error       string   `json:"error,omitempty"`
	Code        string   `json:"code,omitempty"`
	Detail      string   `json:"detail,omitempty"`
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "nerinachat: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "nerinachat: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8085", "Nerina base URL")
	flag.StringVar(&cfg.userID, "user-id", "terminal", "user_id for the chat session")
	flag.StringVar(&cfg.username, "username", "", "display name stored on the user's profile")
	flag.IntVar(&cfg.turns, "turns", 10, "number of scripted turns (replay mode only)")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between scripted turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for assistant_turn_end per turn in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "scripted turns separated by '|'; empty for interactive chat")
	flag.BoolVar(&cfg.verbose, "verbose", false, "print per-turn latency in replay mode")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) != "" {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty turns")
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx := context.Background()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	sessionID, err := createSession(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	frames := make(chan wsEnvelope, 64)
	readErrCh := make(chan error, 1)
	go readLoop(conn, frames, readErrCh)

	if len(cfg.texts) > 0 {
		return replay(conn, sessionID, cfg, frames, readErrCh)
	}
	return interactive(conn, sessionID, cfg, frames, readErrCh)
}

// interactive is a line-based chat loop: type, watch the reply stream in,
// see karma and memory side effects as they land.
func interactive(conn *websocket.Conn, sessionID string, cfg options, frames <-chan wsEnvelope, readErrCh <-chan error) error {
	fmt.Printf("connected (session %s). Type to chat, /end to quit.\n", sessionID)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print("> ")
		var text string
		var open bool
	idle:
		for {
			select {
			case text, open = <-lines:
				break idle
			case env := <-frames:
				renderIdleFrame(env)
			case err := <-readErrCh:
				return fmt.Errorf("ws read: %w", err)
			}
		}
		if !open || strings.TrimSpace(text) == "/end" {
			return sendEnd(conn, sessionID, frames, readErrCh)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		if err := sendText(conn, sessionID, text); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		if _, _, err := renderTurn(cfg, frames, readErrCh); err != nil {
			return err
		}
	}
}

// replay drives scripted turns and reports first-delta and total latency,
// the two numbers the perf endpoint tracks server-side.
func replay(conn *websocket.Conn, sessionID string, cfg options, frames <-chan wsEnvelope, readErrCh <-chan error) error {
	var firstDeltas, totals []time.Duration

	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		started := time.Now()
		if err := sendText(conn, sessionID, text); err != nil {
			return fmt.Errorf("turn %d send: %w", i+1, err)
		}
		firstDelta, total, err := timeTurn(cfg, frames, readErrCh, started)
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		if firstDelta > 0 {
			firstDeltas = append(firstDeltas, firstDelta)
		}
		totals = append(totals, total)
		if cfg.verbose {
			fmt.Printf("nerinachat: turn %d/%d first_delta=%s total=%s\n", i+1, cfg.turns, firstDelta.Round(time.Millisecond), total.Round(time.Millisecond))
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	fmt.Printf("nerinachat: %d turns completed\n", cfg.turns)
	printStats("first_delta", firstDeltas)
	printStats("turn_total", totals)
	return nil
}

// renderTurn prints deltas as they stream and returns once the turn ends.
func renderTurn(cfg options, frames <-chan wsEnvelope, readErrCh <-chan error) (string, int, error) {
	timer := time.NewTimer(cfg.turnTimeout)
	defer timer.Stop()

	var streamed strings.Builder
	for {
		select {
		case env := <-frames:
			switch env.Type {
			case string(protocol.TypeAssistantTextDelta):
				fmt.Print(env.TextDelta)
				streamed.WriteString(env.TextDelta)
			case string(protocol.TypeAssistantTurnEnd):
				if streamed.Len() == 0 && env.Text != "" {
					fmt.Print(env.Text)
				}
				fmt.Println()
				for _, ref := range env.Images {
					fmt.Printf("  [image: /v1/images/%s]\n", ref)
				}
				if env.KarmaDelta != 0 {
					fmt.Printf("  [karma %+d, score %d, %s]\n", env.KarmaDelta, env.Score, env.Directive)
				}
				return env.Text, env.Score, nil
			case string(protocol.TypeErrorEvent):
				fmt.Println()
				return "", 0, fmt.Errorf("server error %s: %s", env.Code, env.Detail)
			default:
				renderIdleFrame(env)
			}
		case err := <-readErrCh:
			return "", 0, fmt.Errorf("ws read: %w", err)
		case <-timer.C:
			return "", 0, fmt.Errorf("timeout after %s", cfg.turnTimeout)
		}
	}
}

// timeTurn consumes a turn's frames without rendering text, recording when
// the first delta and the turn end arrive.
func timeTurn(cfg options, frames <-chan wsEnvelope, readErrCh <-chan error, started time.Time) (time.Duration, time.Duration, error) {
	timer := time.NewTimer(cfg.turnTimeout)
	defer timer.Stop()

	var firstDelta time.Duration
	for {
		select {
		case env := <-frames:
			switch env.Type {
			case string(protocol.TypeAssistantTextDelta):
				if firstDelta == 0 {
					firstDelta = time.Since(started)
				}
			case string(protocol.TypeAssistantTurnEnd):
				return firstDelta, time.Since(started), nil
			case string(protocol.TypeErrorEvent):
				return 0, 0, fmt.Errorf("server error %s: %s", env.Code, env.Detail)
			}
		case err := <-readErrCh:
			return 0, 0, fmt.Errorf("ws read: %w", err)
		case <-timer.C:
			return 0, 0, fmt.Errorf("timeout after %s", cfg.turnTimeout)
		}
	}
}

// renderIdleFrame handles frames that arrive outside a turn, memory events
// from the background ingest pipeline in particular.
func renderIdleFrame(env wsEnvelope) {
	switch env.Type {
	case string(protocol.TypeMemoryEvent):
		if env.Error == "" && env.FactsStored > 0 {
			fmt.Printf("  [remembered %d fact(s)]\n", env.FactsStored)
		}
	case string(protocol.TypeKarmaEvent):
		fmt.Printf("  [karma %+d, score %d, %s]\n", env.Delta, env.Score, env.Directive)
	case string(protocol.TypeSystemEvent):
		if env.Code == "session_ended" {
			fmt.Println("  [session ended]")
		}
	case string(protocol.TypeErrorEvent):
		fmt.Fprintf(os.Stderr, "nerinachat: error_event code=%s detail=%s\n", env.Code, env.Detail)
	}
}

func sendText(conn *websocket.Conn, sessionID, text string) error {
	return conn.WriteJSON(protocol.ClientMessage{
		Type:      protocol.TypeClientMessage,
		SessionID: sessionID,
		Text:      text,
		TSMs:      time.Now().UnixMilli(),
	})
}

func sendEnd(conn *websocket.Conn, sessionID string, frames <-chan wsEnvelope, readErrCh <-chan error) error {
	if err := conn.WriteJSON(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    "end",
	}); err != nil {
		return err
	}
	timer := time.NewTimer(3 * time.Second)
	defer timer.Stop()
	for {
		select {
		case env := <-frames:
			if env.Type == string(protocol.TypeSystemEvent) && env.Code == "session_ended" {
				fmt.Println("bye")
				return nil
			}
		case <-readErrCh:
			return nil
		case <-timer.C:
			return nil
		}
	}
}

func printStats(name string, samples []time.Duration) {
	if len(samples) == 0 {
		fmt.Printf("nerinachat: %s no samples\n", name)
		return
	}
	min, max := samples[0], samples[0]
	var sum time.Duration
	for _, s := range samples {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
		sum += s
	}
	avg := sum / time.Duration(len(samples))
	fmt.Printf("nerinachat: %s min=%s avg=%s max=%s (n=%d)\n",
		name, min.Round(time.Millisecond), avg.Round(time.Millisecond), max.Round(time.Millisecond), len(samples))
}

func createSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	payload, err := json.Marshal(createSessionRequest{
		UserID:   cfg.userID,
		Username: cfg.username,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/chat/session", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/chat/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, frames chan<- wsEnvelope, readErrCh chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		select {
		case frames <- env:
		default:
			// A stalled terminal should not break the connection.
		}
	}
}
