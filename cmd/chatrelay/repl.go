package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/chatrelay/chatrelay/pkg/config"
	"github.com/chatrelay/chatrelay/pkg/memory"
	"github.com/chatrelay/chatrelay/pkg/providers"
)

// runChatREPL drives the same conversation window the webhook path uses, so
// the terminal session behaves like a registered LINE user.
func runChatREPL(client *providers.Client, cfg *config.Config) error {
	conv := memory.NewConversation(cfg.Chat.SystemMessage, cfg.Chat.MemoryCount)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s You: ", appName),
		HistoryFile:     filepath.Join(os.TempDir(), ".chatrelay_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("Chatting with %s. Type /clear to reset, exit to quit.\n\n", cfg.OpenAI.ModelEngine)

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}
		if input == "/clear" {
			conv.Clear()
			fmt.Println("History cleared.")
			continue
		}

		conv.Append(memory.RoleUser, input)
		role, content, err := client.ChatCompletions(context.Background(), providers.FromTurns(conv.Materialize()), cfg.OpenAI.ModelEngine)
		if err != nil {
			conv.Clear()
			fmt.Printf("Error: %v\n", err)
			continue
		}
		conv.Append(role, content)

		fmt.Printf("\n%s %s\n\n", appName, content)
	}
}
