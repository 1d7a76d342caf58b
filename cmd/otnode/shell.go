package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// shell reads commands from the terminal and hands them to the loop
// goroutine, which owns the node.
type shell struct {
	rl *readline.Instance
}

func newShell() (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "otnode> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("help"),
			readline.PcItem("state"),
			readline.PcItem("dataset", readline.PcItem("set",
				readline.PcItem("channel"),
				readline.PcItem("panid"),
				readline.PcItem("networkname"),
			)),
			readline.PcItem("ifconfig", readline.PcItem("up"), readline.PcItem("down")),
			readline.PcItem("thread", readline.PcItem("start"), readline.PcItem("stop")),
			readline.PcItem("ipaddr"),
			readline.PcItem("udp", readline.PcItem("open"), readline.PcItem("send"), readline.PcItem("close")),
			readline.PcItem("stats"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &shell{rl: rl}, nil
}

// Stdout coordinates writes with the prompt.
func (s *shell) Stdout() io.Writer { return s.rl.Stdout() }

func (s *shell) Stderr() io.Writer { return s.rl.Stderr() }

func (s *shell) Close() error { return s.rl.Close() }

func (s *shell) run(ctx context.Context, cancel context.CancelFunc, cmds chan<- request) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return
		}

		input := strings.TrimSpace(line)
		switch strings.ToLower(input) {
		case "":
			continue
		case "quit", "exit", "q":
			return
		}

		reply := make(chan string, 1)
		select {
		case cmds <- request{line: input, reply: reply}:
		case <-ctx.Done():
			return
		}
		select {
		case out := <-reply:
			fmt.Fprintln(s.rl.Stdout(), out)
		case <-ctx.Done():
			return
		}
	}
}
