package e2e

import (
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/projection"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport/rest"
	"chat-relay/transport/ws"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

// BaseRelaySuite boots the whole relay in-process: badger, moderation,
// broker, supervised workers and the HTTP surface. Scenarios talk to it the
// way a real client would, over the socket.
type BaseRelaySuite struct {
	suite.Suite
	Config Config

	Server *httptest.Server
	Stats  *observability.Stats

	cancel  context.CancelFunc
	supDone chan struct{}
	db      *badger.DB
}

func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	log := slog.Default()

	s.db, err = badger.Open(badger.DefaultOptions(s.T().TempDir()).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)

	moderator, err := moderation.NewEmbeddedModerator('*')
	s.Require().NoError(err)

	s.Stats = observability.NewStats()
	registry := runtime.NewRegistry()
	messages := repositories.NewMessageLog(s.db, log)
	broker := runtime.NewBroker(log, registry, messages, moderator, s.Stats, 64)
	timeline := projection.NewTimeline(32)

	sup := workers.NewSupervisor(log, 100*time.Millisecond)
	sup.Add(
		workers.NewTelemetryWorker(log, broker.Telemetry(), timeline),
		workers.NewReaperWorker(log, registry, broker, time.Minute, time.Second),
		workers.NewHeartbeatWorker(log, registry, s.Stats, 50*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.supDone = make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(s.supDone)
	}()

	router := chi.NewRouter()
	ws.NewHandler(log, broker, 64, time.Minute).RegisterRoutes(router)
	rest.RegisterRoutes(router, s.Stats, timeline, messages)
	s.Server = httptest.NewServer(router)
}

func (s *BaseRelaySuite) TearDownSuite() {
	s.Server.Close()
	s.cancel()
	<-s.supDone
	_ = s.db.Close()
}

// Step prints a colorized scenario header so failures are easy to place.
func (s *BaseRelaySuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Client is one websocket participant in a scenario.
type Client struct {
	suite *BaseRelaySuite
	name  string
	conn  *websocket.Conn

	SessionID   string
	ResumeToken string
	Recovered   bool
}

// Connect dials the relay and swallows the welcome frame. query carries the
// client's declared state ("offset=2", "resume=TOKEN").
func (s *BaseRelaySuite) Connect(name, query string) *Client {
	url := "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/ws"
	if query != "" {
		url += "?" + query
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "Failed to connect to relay at "+url)

	client := &Client{suite: s, name: name, conn: conn}
	welcome := client.Expect("welcome")
	client.SessionID, _ = welcome["session_id"].(string)
	client.ResumeToken, _ = welcome["resume_token"].(string)
	client.Recovered, _ = welcome["recovered"].(bool)
	return client
}

func (c *Client) Close() {
	_ = c.conn.Close()
}

func (c *Client) Send(frame map[string]any) {
	if c.suite.Config.DebugFrames {
		payload, _ := json.Marshal(frame)
		c.suite.T().Logf("%s >> %s", c.name, payload)
	}
	c.suite.Require().NoError(c.conn.WriteJSON(frame))
}

// Expect reads frames until one of the wanted type arrives, skipping
// presence churn and other noise in between.
func (c *Client) Expect(frameType string) map[string]any {
	c.suite.Require().NoError(c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	for {
		var frame map[string]any
		c.suite.Require().NoError(c.conn.ReadJSON(&frame), "%s waited for a %q frame", c.name, frameType)
		if c.suite.Config.DebugFrames {
			payload, _ := json.Marshal(frame)
			c.suite.T().Logf("%s << %s", c.name, payload)
		}
		if frame["type"] == frameType {
			return frame
		}
	}
}

// ExpectPresenceCount reads presence frames until the set has the wanted
// size, which is how scenarios wait for joins and suspensions to settle.
func (c *Client) ExpectPresenceCount(count int) {
	for {
		frame := c.Expect("presence")
		if entries, _ := frame["entries"].([]any); len(entries) == count {
			return
		}
	}
}
