package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/tuncenator/ytmpd/internal/shared"
)

var logger *log.Logger

func main() {
	logger = shared.NewLogger(nil)

	app := &cli.Command{
		Name:  "ytmpctl",
		Usage: "Talk to a running ytmpd daemon over its command socket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "socket",
				Aliases: []string{"s"},
				Usage:   "Path to the daemon's command socket",
				Value:   shared.ExpandPath("~/.local/share/ytmpd/ytmpd.sock"),
			},
		},
		Commands: []*cli.Command{
			simpleCommand("sync", "Trigger a sync"),
			simpleCommand("status", "Show the last sync's status"),
			simpleCommand("list", "List catalog playlists"),
			simpleCommand("quit", "Ask the daemon to shut down"),
			{
				Name:      "rate",
				Usage:     "Like or dislike a track by video ID",
				ArgsUsage: "<videoID> <like|dislike>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 2 {
						return fmt.Errorf("usage: ytmpctl rate <videoID> <like|dislike>")
					}
					command := fmt.Sprintf("rate %s %s", cmd.Args().Get(0), cmd.Args().Get(1))
					return sendCommand(cmd.String("socket"), command)
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("ytmpctl error: %v", err)
	}
}

func simpleCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return sendCommand(cmd.String("socket"), name)
		},
	}
}

// sendCommand dials the daemon's command socket, writes one line, and
// prints back the single-line JSON response.
func sendCommand(socketPath, command string) error {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", socketPath, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", command); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read daemon response: %w", err)
	}

	fmt.Fprintln(os.Stdout, line)
	return nil
}
