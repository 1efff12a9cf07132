package e2e

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"

	"mentorlink/client"
	"mentorlink/domain"
)

// BaseHTTPSuite wires the e2e config and a client transport against a
// running server. Suites embedding it are skipped when no server answers
// on SERVER_URL.
type BaseHTTPSuite struct {
	suite.Suite
	Config    Config
	Transport *client.Transport
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHTTPSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	resp, err := http.Get(s.Config.ServerURL + "/health")
	if err != nil {
		s.T().Skipf("No server reachable at %s: %v", s.Config.ServerURL, err)
	}
	_ = resp.Body.Close()

	log := logs.GetLoggerFromString("warn")
	s.Transport = client.NewTransport(log, s.Config.ServerURL, 10*time.Second)
}

// Step prints a colorized header so the scenario reads as a story in logs
func (s *BaseHTTPSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// RegisterUser creates a throwaway account. The random email keeps
// repeated runs against the same store from colliding.
func (s *BaseHTTPSuite) RegisterUser(displayName string, role domain.Role) client.Credentials {
	email := fmt.Sprintf("%s-%s@e2e.local", displayName, uuid.NewString()[:8])
	credentials, err := s.Transport.Register(context.Background(), email, "Sup3r-Secret!", displayName, role)
	s.Require().NoError(err, "Failed to register user "+displayName)
	return credentials
}

// OpenSession opens an events channel recording everything it receives.
func (s *BaseHTTPSuite) OpenSession(credentials client.Credentials) (*client.Session, *Recorder) {
	recorder := &Recorder{}
	log := logs.GetLoggerFromString("warn")
	session := client.NewSession(log, s.Transport.DialChannel, s.Transport, client.Hooks{
		OnMessage:        recorder.addMessage,
		OnPresenceChange: recorder.setOnline,
		OnTyping:         recorder.addTyping,
	})
	err := session.Open(context.Background(), credentials.UserID, credentials.Token)
	s.Require().NoError(err, "Failed to open session for "+credentials.UserID)
	return session, recorder
}

// Recorder accumulates hook invocations for later assertions.
type Recorder struct {
	mu       sync.Mutex
	messages []domain.Message
	typing   []string
	online   []string
}

func (r *Recorder) addMessage(m domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

func (r *Recorder) addTyping(userID string, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := "stop"
	if typing {
		state = "start"
	}
	r.typing = append(r.typing, userID+":"+state)
}

func (r *Recorder) setOnline(online []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = online
}

func (r *Recorder) Messages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.messages...)
}

func (r *Recorder) Typing() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.typing...)
}

func (r *Recorder) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.online...)
}
