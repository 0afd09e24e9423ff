// Package main is a websocket smoke client for post-deployment checks. It
// connects to /ws with a bearer token, joins a project room, sends one
// message and waits for both the acknowledgement and the room broadcast of
// that message. It exits non-zero if any step fails or times out.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/projecthub/projecthub/internal/realtime"
)

func main() {
	server := flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
	token := flag.String("token", os.Getenv("PHUB_TOKEN"), "bearer token (defaults to $PHUB_TOKEN)")
	projectID := flag.Int64("project", 0, "project id to join (required)")
	content := flag.String("message", "smoke test "+time.Now().UTC().Format(time.RFC3339), "message content")
	timeout := flag.Duration("timeout", 10*time.Second, "overall deadline")
	flag.Parse()

	if *token == "" || *projectID <= 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*server, *token, *projectID, *content, *timeout); err != nil {
		log.Fatalf("Smoke test failed: %v", err)
	}
	fmt.Println("OK")
}

func run(server, token string, projectID int64, content string, timeout time.Duration) error {
	if _, err := url.Parse(server); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.Dial(server, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	if err := send(conn, realtime.EventJoinProject, "join", map[string]int64{"projectId": projectID}); err != nil {
		return err
	}
	ack, err := waitAck(conn, "join")
	if err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("join refused: %v", ack.Message)
	}
	log.Printf("Joined project %d", projectID)

	start := time.Now()
	if err := send(conn, realtime.EventSendMessage, "send", map[string]interface{}{"projectId": projectID, "content": content}); err != nil {
		return err
	}

	// The ack and the broadcast may arrive in either order.
	var acked, broadcast bool
	for !acked || !broadcast {
		f, err := read(conn)
		if err != nil {
			return err
		}
		switch {
		case f.Event == realtime.EventAck && f.AckID == "send":
			var a realtime.Ack
			if err := json.Unmarshal(f.Data, &a); err != nil {
				return fmt.Errorf("bad ack: %w", err)
			}
			if !a.OK {
				return fmt.Errorf("send refused: %s", a.Error)
			}
			acked = true
		case f.Event == realtime.EventNewMessage:
			var m struct {
				Content string `json:"content"`
			}
			if err := json.Unmarshal(f.Data, &m); err == nil && m.Content == content {
				broadcast = true
			}
		}
	}
	log.Printf("Message acknowledged and broadcast in %s", time.Since(start).Round(time.Millisecond))

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

func send(conn *websocket.Conn, event, ackID string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(realtime.Frame{Event: event, AckID: ackID, Data: raw}); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

func read(conn *websocket.Conn) (realtime.Frame, error) {
	var f realtime.Frame
	if err := conn.ReadJSON(&f); err != nil {
		return f, fmt.Errorf("read failed: %w", err)
	}
	return f, nil
}

func waitAck(conn *websocket.Conn, ackID string) (realtime.Ack, error) {
	for {
		f, err := read(conn)
		if err != nil {
			return realtime.Ack{}, err
		}
		if f.Event != realtime.EventAck || f.AckID != ackID {
			continue
		}
		var a realtime.Ack
		if err := json.Unmarshal(f.Data, &a); err != nil {
			return a, fmt.Errorf("bad ack: %w", err)
		}
		return a, nil
	}
}
