package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

// Exit codes for the viewer application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress  string        `env:"RELAY_SERVER_ADDR,default=localhost:8080"`
	Name           string        `env:"RELAY_NAME,default="`
	ReconnectDelay time.Duration `env:"RELAY_RECONNECT_DELAY,default=2s"`
}

type frame struct {
	Type         string `json:"type"`
	SessionID    string `json:"session_id,omitempty"`
	ResumeToken  string `json:"resume_token,omitempty"`
	Recovered    bool   `json:"recovered,omitempty"`
	ID           uint64 `json:"id,omitempty"`
	Status       string `json:"status,omitempty"`
	Author       string `json:"author,omitempty"`
	Content      string `json:"content,omitempty"`
	Name         string `json:"name,omitempty"`
	Active       bool   `json:"active,omitempty"`
	ClientOffset string `json:"client_offset,omitempty"`
	Entries      []struct {
		SessionID string `json:"session_id"`
		Name      string `json:"name"`
	} `json:"entries,omitempty"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Viewer error: %v\n", err)
	}
	os.Exit(code)
}

// run drives the connect/reconnect loop. The viewer tracks the last message
// ID it rendered and the resume token from the latest welcome frame, so a
// broken connection comes back either recovered (token redeemed) or caught
// up (replay from the tracked offset).
func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lastOffset atomic.Uint64
	resumeToken := ""

	outbound := make(chan frame, 16)
	go readInput(ctx, outbound)

	for {
		token, err := session(ctx, config, &lastOffset, resumeToken, outbound)
		if err == nil {
			return exitOK, nil
		}
		resumeToken = token

		color.Yellow.Printf("Connection lost (%v), reconnecting in %s...\n", err, config.ReconnectDelay)
		select {
		case <-ctx.Done():
			return exitOK, nil
		case <-time.After(config.ReconnectDelay):
		}
	}
}

// session runs one connection to completion and returns the resume token to
// try on the next attempt. A nil error means the viewer is shutting down.
func session(ctx context.Context, config Config, lastOffset *atomic.Uint64, resumeToken string, outbound <-chan frame) (string, error) {
	url := fmt.Sprintf("ws://%s/ws?offset=%d", config.ServerAddress, lastOffset.Load())
	if resumeToken != "" {
		url += "&resume=" + resumeToken
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return resumeToken, err
	}
	defer conn.Close()

	var welcome frame
	if err := conn.ReadJSON(&welcome); err != nil {
		return resumeToken, err
	}
	if welcome.Recovered {
		color.Green.Println("Session recovered, no replay needed")
	} else {
		color.Green.Printf("Connected as %s (catching up from message %d)\n", welcome.SessionID, lastOffset.Load())
	}

	if config.Name != "" {
		if err := conn.WriteJSON(frame{Type: "identity", Name: config.Name}); err != nil {
			return welcome.ResumeToken, err
		}
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case f := <-outbound:
				if err := conn.WriteJSON(f); err != nil {
					// Closing the connection bounces the read loop into the
					// reconnect path.
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		var incoming frame
		if err := conn.ReadJSON(&incoming); err != nil {
			if ctx.Err() != nil {
				return welcome.ResumeToken, nil
			}
			return welcome.ResumeToken, err
		}
		render(incoming, lastOffset)
	}
}

func render(f frame, lastOffset *atomic.Uint64) {
	switch f.Type {
	case "message":
		lastOffset.Store(f.ID)
		color.Cyan.Printf("[%d] %s: ", f.ID, f.Author)
		fmt.Println(f.Content)
	case "ack":
		if f.Status == "duplicate" {
			color.Yellow.Printf("(retry acknowledged, message %d already stored)\n", f.ID)
			return
		}
		color.Gray.Printf("(sent as message %d)\n", f.ID)
	case "presence":
		renderPresence(f)
	case "typing":
		if f.Active {
			color.Gray.Printf("%s is typing...\n", f.Author)
		}
	}
}

func renderPresence(f frame) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Session"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	for _, entry := range f.Entries {
		table.Append([]string{entry.Name, entry.SessionID})
	}
	color.Green.Printf("Online (%d):\n", len(f.Entries))
	table.Render()
}

// readInput turns stdin lines into frames: "/name x" announces an identity,
// anything else is a submission carrying a fresh idempotency offset.
func readInput(ctx context.Context, outbound chan<- frame) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if name, ok := strings.CutPrefix(line, "/name "); ok {
			outbound <- frame{Type: "identity", Name: strings.TrimSpace(name)}
			continue
		}
		outbound <- frame{Type: "message", Content: line, ClientOffset: uuid.NewString()}
	}
}
