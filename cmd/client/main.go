package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"mentorlink/client"
	"mentorlink/domain"
	apperrors "mentorlink/errors"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL      string        `env:"MENTORLINK_SERVER_URL,default=http://localhost:8080"`
	Email          string        `env:"MENTORLINK_EMAIL,required=true"`
	Password       string        `env:"MENTORLINK_PASSWORD,required=true"`
	DisplayName    string        `env:"MENTORLINK_DISPLAY_NAME"`
	Role           string        `env:"MENTORLINK_ROLE,default=student"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
	LogLevel       string        `env:"LOG_LEVEL,default=warn"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles the session lifecycle: authentication, events channel,
// and the interactive prompt loop.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Authenticate. An unknown account is registered on the fly when a
	// display name is configured.
	transport := client.NewTransport(log, config.ServerURL, config.RequestTimeout)
	credentials, err := transport.Login(ctx, config.Email, config.Password)
	if errors.Is(err, apperrors.ErrInvalidCredentials) && config.DisplayName != "" {
		credentials, err = transport.Register(ctx, config.Email, config.Password,
			config.DisplayName, domain.Role(config.Role))
	}
	if err != nil {
		return exitRuntime, fmt.Errorf("could not authenticate against %s: %w", config.ServerURL, err)
	}

	// 4. Open the session; hooks print straight to the terminal.
	session := client.NewSession(log, transport.DialChannel, transport, client.Hooks{
		OnMessage: func(m domain.Message) {
			prefix := color.Green.Render(m.SenderID)
			if m.SenderID == credentials.UserID {
				prefix = color.Gray.Render("me")
			}
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), prefix, m.Content)
		},
		OnPresenceChange: func(online []string) {
			color.Cyan.Printf("online now: %s\n", strings.Join(online, ", "))
		},
		OnTyping: func(userID string, typing bool) {
			if typing {
				color.Yellow.Printf("%s is typing...\n", userID)
			}
		},
	})
	if err := session.Open(ctx, credentials.UserID, credentials.Token); err != nil {
		return exitRuntime, err
	}
	defer func() {
		_ = session.Close()
	}()

	header := fmt.Sprintf("  ====== mentorlink — %s (%s) ======", credentials.DisplayName, credentials.UserID)
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(header))
	fmt.Println("Commands: /users  /select <id>  /leave  /find <terms>  /quit")

	printDirectory(ctx, transport, credentials.Token)

	// 5. Prompt loop. Stdin lines arrive on a channel so Ctrl+C still wins.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nBye!")
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if quit := dispatch(ctx, session, transport, credentials, line); quit {
				return exitOK, nil
			}
		}
	}
}

// dispatch executes one prompt line. Returns true when the user quits.
func dispatch(ctx context.Context, session *client.Session, transport *client.Transport,
	credentials client.Credentials, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false

	case line == "/quit":
		return true

	case line == "/users":
		printDirectory(ctx, transport, credentials.Token)

	case strings.HasPrefix(line, "/select "):
		peerID := strings.TrimSpace(strings.TrimPrefix(line, "/select "))
		history, err := session.SelectPeer(ctx, peerID)
		if err != nil {
			color.Red.Printf("cannot select %s: %v\n", peerID, err)
			return false
		}
		color.Cyan.Printf("--- conversation with %s (%d messages) ---\n", peerID, len(history))
		for _, m := range history {
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.SenderID, m.Content)
		}

	case line == "/leave":
		if err := session.ClearPeer(); err != nil {
			color.Red.Printf("cannot leave: %v\n", err)
		}

	case strings.HasPrefix(line, "/find"):
		peerID := session.ActivePeer()
		if peerID == "" {
			color.Red.Println("select a peer first")
			return false
		}
		results, total, err := transport.Search(ctx, credentials.Token, peerID, line)
		if err != nil {
			color.Red.Printf("search failed: %v\n", err)
			return false
		}
		color.Cyan.Printf("--- %d matches ---\n", total)
		for _, r := range results {
			fmt.Printf("[%s] %s: %s\n", r.At.Local().Format(time.TimeOnly), r.SenderID, r.Content)
		}

	default:
		// Plain text goes to the selected peer.
		_ = session.NotifyTyping(true)
		if _, err := session.SendMessage(ctx, line); err != nil {
			color.Red.Printf("not sent: %v\n", err)
		}
		_ = session.NotifyTyping(false)
	}
	return false
}

func printDirectory(ctx context.Context, transport *client.Transport, token string) {
	users, err := transport.Directory(ctx, token)
	if err != nil {
		color.Red.Printf("cannot list users: %v\n", err)
		return
	}
	color.Cyan.Println("--- directory ---")
	for _, u := range users {
		fmt.Printf("  %s  %s (%s)\n", u.ID, u.DisplayName, u.Role)
	}
}
