package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/handlers"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
	"github.com/gorilla/websocket"
	"github.com/lmittmann/tint"
)

func main() {
	backend := flag.String("backend", "http://localhost:8080", "Monitor HTTP address")
	token := flag.String("token", "", "Viewer token")
	clientID := flag.String("client-id", "", "Viewer id shown in the monitor logs")
	count := flag.Int("n", 0, "Exit after this many overlays (0 = run until interrupted)")
	flag.Parse()

	log := slog.New(tint.NewHandler(os.Stderr, nil))

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Drowsiness monitor - overlay viewer")
	fmt.Println(strings.Repeat("=", 60))

	if err := checkHealth(*backend); err != nil {
		log.Error("monitor is not reachable", "backend", *backend, "error", err)
		os.Exit(1)
	}

	wsURL, err := streamURL(*backend, *clientID)
	if err != nil {
		log.Error("invalid backend address", "error", err)
		os.Exit(1)
	}
	header := http.Header{}
	if *token != "" {
		header.Set("Authorization", "Bearer "+*token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		if resp != nil {
			log.Error("overlay stream refused", "status", resp.StatusCode)
		} else {
			log.Error("could not connect to overlay stream", "error", err)
		}
		os.Exit(1)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	messages := make(chan handlers.WebSocketMessage)
	go func() {
		defer close(messages)
		for {
			var msg handlers.WebSocketMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
					log.Warn("overlay stream closed", "error", err)
				}
				return
			}
			messages <- msg
		}
	}()

	seen := 0
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			switch msg.Type {
			case handlers.MsgWelcome:
				fmt.Printf("connected as %s\n", msg.ClientID)
			case handlers.MsgOverlay:
				var overlay models.Overlay
				if err := json.Unmarshal(msg.Payload, &overlay); err != nil {
					log.Warn("bad overlay payload", "error", err)
					continue
				}
				printOverlay(overlay)
				seen++
				if *count > 0 && seen >= *count {
					closeStream(conn)
					return
				}
			}
		case <-interrupt:
			closeStream(conn)
			return
		}
	}
}

func checkHealth(backend string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(backend, "/") + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed: status %d, body: %s", resp.StatusCode, string(body))
	}
	var health models.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to parse health: %w", err)
	}
	fmt.Printf("monitor %s, session %s, %d viewer(s)\n", health.Status, health.SessionState, health.ActiveViewers)
	return nil
}

func streamURL(backend, clientID string) (string, error) {
	u, err := url.Parse(backend)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	if clientID != "" {
		q.Set("clientId", clientID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func printOverlay(o models.Overlay) {
	fmt.Printf("[%06d] %s\n", o.Seq, strings.Join(o.Lines, " | "))
}

func closeStream(conn *websocket.Conn) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
