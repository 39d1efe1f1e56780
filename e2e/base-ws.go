package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"chat-broker/infrastructure/ws"
	"chat-broker/repositories"
	"chat-broker/runtime"
	"chat-broker/search"
	"chat-broker/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

const (
	tokenDuration = time.Hour
	signingKey    = "e2e-signing-key"
	bufferSize    = 32
)

// BaseWsSuite boots the whole broker in-process: BadgerDB and Bluge in
// temporary directories, the runtime wired exactly as in cmd/main.go, and
// an httptest server fronting the router.
type BaseWsSuite struct {
	suite.Suite
	Config      Config
	ReadTimeout time.Duration

	db     *badger.DB
	index  *search.MessageIndex
	server *httptest.Server
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	s.ReadTimeout, err = time.ParseDuration(s.Config.ReadTimeout)
	s.Require().NoError(err)
}

func (s *BaseWsSuite) SetupTest() {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := badger.Open(badger.DefaultOptions(s.T().TempDir()).
		WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	s.db = db

	index, err := search.NewMessageIndex(s.T().TempDir(), log)
	s.Require().NoError(err)
	s.index = index

	messageRepository := repositories.NewMessageRepository(db, log, nil)
	userRepository := repositories.NewUserRepository(db)

	registry := runtime.NewRegistry(log)
	coordinator := runtime.NewCoordinator(log, registry, messageRepository)
	coordinator.AddHooks(index)
	manager := runtime.NewManager(log, coordinator, registry)

	authService := services.NewAuthService(userRepository, []byte(signingKey), tokenDuration)
	chatService := services.NewChatService(manager, coordinator, authService, messageRepository, index)

	s.server = httptest.NewServer(ws.NewServer(log, chatService, authService, bufferSize).Router())
}

func (s *BaseWsSuite) TearDownTest() {
	if s.server != nil {
		s.server.Close()
	}
	if s.index != nil {
		_ = s.index.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// StepHeader prints a colorized banner so each scenario step is easy to
// locate in the logs.
func (s *BaseWsSuite) StepHeader(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// PostJSON sends one REST request and decodes the response body into out.
func (s *BaseWsSuite) PostJSON(path string, body any, out any) *http.Response {
	data, err := json.Marshal(body)
	s.Require().NoError(err)
	if s.Config.DebugJSON {
		s.T().Logf("POST %s %s", path, data)
	}

	resp, err := http.Post(s.server.URL+path, "application/json", bytes.NewReader(data))
	s.Require().NoError(err)
	defer resp.Body.Close()
	if out != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// GetJSON sends one authenticated GET and decodes the response body.
func (s *BaseWsSuite) GetJSON(path, token string, out any) *http.Response {
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	if out != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// Register creates an account over REST and returns its session token.
func (s *BaseWsSuite) Register(username, password string) string {
	var body struct {
		Token string `json:"token"`
	}
	resp := s.PostJSON("/register", map[string]string{
		"username": username,
		"password": password,
	}, &body)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Require().NotEmpty(body.Token)
	return body.Token
}

// wireMessage mirrors the broker's outbound frame shape.
type wireMessage struct {
	Username  string     `json:"username"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// WsClient drives one websocket session during a scenario.
type WsClient struct {
	suite *BaseWsSuite
	conn  *websocket.Conn
	name  string
}

// Dial opens a websocket session authenticated through the token query
// parameter, the same path a browser client takes.
func (s *BaseWsSuite) Dial(name, token string) *WsClient {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err, "Failed to open websocket for "+name)
	return &WsClient{suite: s, conn: conn, name: name}
}

func (c *WsClient) Close() {
	_ = c.conn.Close()
}

func (c *WsClient) send(frame map[string]string) {
	if c.suite.Config.DebugJSON {
		data, _ := json.Marshal(frame)
		c.suite.T().Logf("WS[%s] -> %s", c.name, data)
	}
	c.suite.Require().NoError(c.conn.WriteJSON(frame))
}

func (c *WsClient) Join(room string) {
	c.send(map[string]string{"type": "join", "room": room})
}

func (c *WsClient) Leave(room string) {
	c.send(map[string]string{"type": "leave", "room": room})
}

func (c *WsClient) Send(room, message string) {
	c.send(map[string]string{"type": "send_message", "room": room, "message": message})
}

// NextFrame blocks for the next delivery, bounded by the configured read
// timeout.
func (c *WsClient) NextFrame() wireMessage {
	c.suite.Require().NoError(c.conn.SetReadDeadline(time.Now().Add(c.suite.ReadTimeout)))
	var msg wireMessage
	err := c.conn.ReadJSON(&msg)
	c.suite.Require().NoError(err, "No frame delivered to %s within %s", c.name, c.suite.ReadTimeout)
	if c.suite.Config.DebugJSON {
		data, _ := json.Marshal(msg)
		c.suite.T().Logf("WS[%s] <- %s", c.name, data)
	}
	return msg
}

// ExpectMessage asserts the next delivery's sender and body.
func (c *WsClient) ExpectMessage(username, message string) wireMessage {
	msg := c.NextFrame()
	c.suite.Require().Equal(username, msg.Username, "Unexpected sender for %s", c.name)
	c.suite.Require().Equal(message, msg.Message, "Unexpected body for %s", c.name)
	return msg
}

// ExpectSilence asserts no delivery arrives for a short interval. The
// deadline error poisons the socket, so this must be the client's last
// read.
func (c *WsClient) ExpectSilence(wait time.Duration) {
	c.suite.Require().NoError(c.conn.SetReadDeadline(time.Now().Add(wait)))
	var msg wireMessage
	err := c.conn.ReadJSON(&msg)
	c.suite.Require().Error(err, "Expected silence for %s, got %+v", c.name, msg)
}
