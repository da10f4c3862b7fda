package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/namikmesic/promptopt/internal/optimizer"
	"github.com/namikmesic/promptopt/internal/stream"
)

type config struct {
	URL string `env:"PROMPTOPT_URL" envDefault:"http://localhost:8080"`
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "promptoptctl: %v\n", err)
		os.Exit(1)
	}
}

// run sends the prompt from the file named in args, or from stdin, to
// /api/optimize and prints the events as they arrive.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return err
	}

	prompt, err := readInput(args, stdin)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(cfg.URL, "/")+"/api/optimize", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post prompt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	for f, err := range stream.Read(resp.Body) {
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		if err := printFrame(stdout, f); err != nil {
			return err
		}
	}
	return nil
}

func readInput(args []string, stdin io.Reader) (string, error) {
	switch len(args) {
	case 0:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	case 1:
		b, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", errors.New("usage: promptoptctl [prompt-file]")
	}
}

// wireEvent is the union of every event payload.
type wireEvent struct {
	Message     string `json:"message"`
	Content     string `json:"content"`
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Improvement string `json:"improvement"`
	Before      string `json:"before"`
	After       string `json:"after"`
}

func printFrame(w io.Writer, f stream.Frame) error {
	var ev wireEvent
	if err := json.Unmarshal([]byte(f.Data), &ev); err != nil {
		return fmt.Errorf("decode %s event: %w", f.Event, err)
	}

	switch optimizer.Kind(f.Event) {
	case optimizer.KindStatus:
		fmt.Fprintf(w, "-- %s\n", ev.Message)
	case optimizer.KindSuggestedPrompt:
		fmt.Fprintf(w, "\nOptimized prompt:\n%s\n\n", ev.Content)
	case optimizer.KindGuideline:
		fmt.Fprintf(w, "%d. %s\n   %s\n", ev.Index, ev.Name, ev.Improvement)
	case optimizer.KindError:
		return errors.New(ev.Message)
	}
	return nil
}
