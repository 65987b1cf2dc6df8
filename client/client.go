package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"support-chat/gateway"
	"sync"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress  string `env:"CHAT_SERVER_ADDR,default=localhost:8080"`
	Token          string `env:"CHAT_TOKEN,required=true"`
	ConversationID string `env:"CHAT_CONVERSATION_ID"`
	AfterSeq       uint64 `env:"CHAT_AFTER_SEQ,default=0"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run connects to the gateway, prints every frame it receives and
// sends each stdin line as a message to the configured conversation.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the WebSocket.
	u := url.URL{Scheme: "ws", Host: config.ServerAddress, Path: "/ws", RawQuery: "token=" + url.QueryEscape(config.Token)}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	color.Green.Printf(">>> Connected to %s (Ctrl+C to quit)\n", config.ServerAddress)

	// 4. Catch up on the conversation, then forward stdin.
	if config.ConversationID != "" {
		if err := send(conn, gateway.Replay, gateway.ReplayPayload{
			ConversationID: config.ConversationID,
			AfterSeq:       config.AfterSeq,
		}); err != nil {
			return exitRuntime, err
		}
		go forwardStdin(conn, config.ConversationID)
	}

	// 5. Reception loop.
	for {
		var frame gateway.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("stream error: %w", err)
		}
		if err := display(conn, frame); err != nil {
			return exitRuntime, err
		}
	}
}

func display(conn *websocket.Conn, frame gateway.Frame) error {
	switch frame.Type {
	case gateway.TypeMessage:
		var msg gateway.MessageView
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			return err
		}
		fmt.Printf("%s %s %s\n",
			color.Gray.Sprintf("[%s #%d]", msg.CreatedAt.Format(time.TimeOnly), msg.Seq),
			color.Cyan.Sprint(msg.SenderID+":"),
			msg.Payload,
		)
		return send(conn, gateway.MessageAck, gateway.MessageAckPayload{MessageID: msg.ID})
	case gateway.TypeError:
		var e gateway.ErrorPayload
		if err := json.Unmarshal(frame.Payload, &e); err != nil {
			return err
		}
		color.Red.Printf("! %s: %s\n", e.Code, e.Message)
	default:
		color.Gray.Printf("< %s %s\n", frame.Type, string(frame.Payload))
	}
	return nil
}

func forwardStdin(conn *websocket.Conn, conversationID string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := send(conn, gateway.MessageSend, gateway.MessageSendPayload{
			ConversationID: conversationID,
			Payload:        line,
		}); err != nil {
			color.Red.Printf("! send failed: %v\n", err)
			return
		}
	}
}

// writeMu serializes writes from the reception loop and the stdin goroutine.
var writeMu sync.Mutex

func send(conn *websocket.Conn, frameType gateway.FrameType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	return conn.WriteJSON(gateway.Frame{Type: frameType, RequestID: uuid.NewString(), Payload: raw})
}
