package e2e

import (
	"encoding/json"
	"fmt"
	"net/url"
	"support-chat/auth"
	"support-chat/domain"
	"support-chat/gateway"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseWSSuite struct {
	suite.Suite
	Config Config
	issuer *auth.TokenIssuer
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseWSSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerAddr == "" {
		s.T().Skip("SERVER_ADDR not set, skipping end-to-end scenarios")
	}
	s.issuer = auth.NewTokenIssuer(s.Config.JWTSecret, time.Hour)
}

// Client is one authenticated WebSocket connection with frame logging.
type Client struct {
	suite *BaseWSSuite
	name  string
	conn  *websocket.Conn
}

// Connect opens a connection for user, printing a header for the step in logs.
func (s *BaseWSSuite) Connect(name string, user domain.User) *Client {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)

	token, err := s.issuer.GenerateToken(user)
	s.Require().NoError(err)
	u := url.URL{Scheme: "ws", Host: s.Config.ServerAddr, Path: "/ws", RawQuery: "token=" + url.QueryEscape(token)}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err, "Failed to connect to server at "+s.Config.ServerAddr)

	c := &Client{suite: s, name: name, conn: conn}
	s.T().Cleanup(func() { _ = conn.Close() })
	return c
}

// Call sends a frame and returns the first reply or error frame, keeping pushed messages aside.
func (c *Client) Call(frameType gateway.FrameType, payload any) (gateway.Frame, []gateway.MessageView) {
	requestID := uuid.NewString()
	frame := gateway.Frame{Type: frameType, RequestID: requestID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		c.suite.Require().NoError(err)
		frame.Payload = raw
	}
	c.log("SEND", frame)
	c.suite.Require().NoError(c.conn.WriteJSON(frame))

	var pushed []gateway.MessageView
	for {
		in := c.Read()
		if in.RequestID == requestID {
			return in, pushed
		}
		if in.Type == gateway.TypeMessage {
			pushed = append(pushed, Decode[gateway.MessageView](c.suite, in))
		}
	}
}

func (c *Client) Read() gateway.Frame {
	c.suite.Require().NoError(c.conn.SetReadDeadline(time.Now().Add(10 * time.Second)))
	var frame gateway.Frame
	c.suite.Require().NoError(c.conn.ReadJSON(&frame))
	c.log("RECV", frame)
	return frame
}

// NextMessage waits for a pushed message frame.
func (c *Client) NextMessage() gateway.MessageView {
	for {
		frame := c.Read()
		if frame.Type == gateway.TypeMessage {
			return Decode[gateway.MessageView](c.suite, frame)
		}
	}
}

func (c *Client) log(direction string, frame gateway.Frame) {
	line := fmt.Sprintf("%s %s %s", c.name, direction, frame.Type)
	if c.suite.Config.DebugJSON {
		line += "\n" + string(frame.Payload)
	}
	c.suite.T().Log(line)
}

func Decode[T any](s *BaseWSSuite, frame gateway.Frame) T {
	var v T
	s.Require().NoError(json.Unmarshal(frame.Payload, &v))
	return v
}
