package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/collab-playground/internal/client"
	"github.com/sakif/collab-playground/internal/config"
	"github.com/sakif/collab-playground/internal/protocol"
)

var watchCmd = &cobra.Command{
	Use:   "watch SESSION",
	Short: "Join a session from the terminal and print what happens in it",
	Long: `Join a session as a participant and print roster, language and buffer
changes as they arrive. With --push the contents of a file become this
participant's buffer once joined, which is shared with everyone in the session.

The relay is dialled until it answers or the command is interrupted.

Examples:
  collab watch d1k2m3 --name terminal
  collab watch d1k2m3 --url ws://collab.internal/ws --push Main.java`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var (
	watchURL  string
	watchName string
	watchPush string
)

func init() {
	flags := watchCmd.Flags()
	flags.StringVar(&watchURL, "url", "ws://localhost:8080/ws", "Relay WebSocket URL")
	flags.StringVar(&watchName, "name", "", "Display name (default: $USER)")
	flags.StringVar(&watchPush, "push", "", "File to share as this participant's buffer")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(settings)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	out := cmd.OutOrStdout()

	name := watchName
	if name == "" {
		name = os.Getenv("USER")
	}
	if name == "" {
		name = "terminal"
	}

	var push string
	if watchPush != "" {
		b, err := os.ReadFile(watchPush)
		if err != nil {
			return err
		}
		push = string(b)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := client.DefaultDialOptions()
	opts.Logger = logger
	ws, err := client.Dial(ctx, watchURL, opts)
	if err != nil {
		return err
	}

	p := client.NewParticipant(ws, logger)
	p.OnMembersChange = func(members []protocol.Member) {
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, m.DisplayName)
		}
		fmt.Fprintf(out, "%s  members: %s\n", stamp(), strings.Join(names, ", "))
	}
	p.OnLanguageChange = func(language string, origin client.Origin) {
		fmt.Fprintf(out, "%s  language: %s (%s)\n", stamp(), language, origin)
	}
	p.OnCodeChange = func(code string, origin client.Origin) {
		fmt.Fprintf(out, "%s  buffer (%s, %d bytes):\n%s\n", stamp(), origin, len(code), indent(code))
	}
	p.OnError = func(message string) {
		fmt.Fprintf(out, "%s  relay error: %s\n", stamp(), message)
	}

	if err := p.Join(args[0], name); err != nil {
		return err
	}
	if watchPush != "" {
		if err := p.Edit(push); err != nil {
			return err
		}
	}

	return p.Run(ctx)
}

func stamp() string {
	return time.Now().Format(time.TimeOnly)
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n    ")
}
