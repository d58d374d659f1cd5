package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/huddle/internal/tui"
	"github.com/matheus3301/huddle/internal/tui/client"
)

func main() {
	serverFlag := flag.String("server", envOr("HUDDLE_SERVER", "http://127.0.0.1:7420"), "huddled base URL")
	tokenFlag := flag.String("token", os.Getenv("HUDDLE_TOKEN"), "client token (see huddlectl token)")
	flag.Parse()

	if *tokenFlag == "" {
		fmt.Fprintln(os.Stderr, "error: a token is required; issue one with `huddlectl token <user-id>`")
		os.Exit(1)
	}
	server := strings.TrimRight(*serverFlag, "/")

	if err := checkServer(server); err != nil {
		fmt.Fprintf(os.Stderr, "server %s not ready: %v\n", server, err)
		os.Exit(1)
	}

	c, err := client.New(server, *tokenFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := tui.NewApp(c, server)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// checkServer checks /healthz so a stopped or draining server fails fast.
func checkServer(server string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %s", resp.Status)
	}
	return nil
}
