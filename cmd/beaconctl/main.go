package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pvieira/beacon/internal/client"
	"github.com/pvieira/beacon/internal/delivery"
	"github.com/pvieira/beacon/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := client.New(session.SocketPath(sessionName))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "send":
		cmdSend(ctx, c, args[1:], *jsonFlag)
	case "msg":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: beaconctl msg <id>")
			os.Exit(1)
		}
		cmdMsg(ctx, c, args[1], *jsonFlag)
	case "messages":
		cmdMessages(ctx, c, *jsonFlag)
	case "retry":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: beaconctl retry <id>")
			os.Exit(1)
		}
		cmdRetry(ctx, c, args[1], *jsonFlag)
	case "read":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: beaconctl read <id>")
			os.Exit(1)
		}
		cmdRead(ctx, c, args[1])
	case "cancel":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: beaconctl cancel <id>")
			os.Exit(1)
		}
		cmdCancel(ctx, c, args[1])
	case "quality":
		cmdQuality(ctx, c, *jsonFlag)
	case "watch":
		cmdWatch(c)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: beaconctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                   Show daemon status")
	fmt.Fprintln(os.Stderr, "  send [--emergency] TEXT  Submit a message")
	fmt.Fprintln(os.Stderr, "  messages                 List tracked messages, newest first")
	fmt.Fprintln(os.Stderr, "  msg <id>                 Show one message")
	fmt.Fprintln(os.Stderr, "  retry <id>               Retry a failed or partial message")
	fmt.Fprintln(os.Stderr, "  read <id>                Acknowledge an inbound message")
	fmt.Fprintln(os.Stderr, "  cancel <id>              Cancel pending redundant sends")
	fmt.Fprintln(os.Stderr, "  quality                  Show mesh connection quality")
	fmt.Fprintln(os.Stderr, "  watch                    Stream daemon events")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut bool) {
	st, err := c.Status(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Daemon:    pid %d, up %ds\n", st.PID, st.UptimeSeconds)
	fmt.Printf("Node:      %s\n", st.LocalID)
	fmt.Printf("Mesh:      %d peers, quality %s\n", st.Peers, st.Quality)
	fmt.Printf("Messages:  %d tracked\n", st.Messages)
	if st.DroppedEvents > 0 {
		fmt.Printf("Dropped:   %d bus events\n", st.DroppedEvents)
	}
}

func cmdSend(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	sendFlags := flag.NewFlagSet("send", flag.ExitOnError)
	emergency := sendFlags.Bool("emergency", false, "send as emergency broadcast")
	_ = sendFlags.Parse(args)

	text := strings.Join(sendFlags.Args(), " ")
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "usage: beaconctl send [--emergency] TEXT")
		os.Exit(1)
	}

	res, err := c.Send(ctx, text, *emergency)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(res)
		return
	}
	fmt.Printf("Sent %s\n", res.ID)
	if res.Flagged && !*emergency {
		fmt.Println("Content looks like an emergency. Send with --emergency for redundant delivery.")
	}
}

func cmdMsg(ctx context.Context, c *client.Client, id string, jsonOut bool) {
	msg, err := c.Message(ctx, id)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	printMessage(msg)
}

func cmdMessages(ctx context.Context, c *client.Client, jsonOut bool) {
	msgs, err := c.Messages(ctx, 0)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, msg := range msgs {
		direction := "<-"
		if msg.FromMe {
			direction = "->"
		}
		fmt.Printf("%s %s %-22s %s\n", direction, msg.ID, msg.Status, msg.Body)
	}
}

func cmdRetry(ctx context.Context, c *client.Client, id string, jsonOut bool) {
	msg, err := c.Retry(ctx, id)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("Retrying %s (attempt %d)\n", msg.ID, msg.Attempts)
}

func cmdRead(ctx context.Context, c *client.Client, id string) {
	if err := c.MarkRead(ctx, id); err != nil {
		fatal(err)
	}
	fmt.Printf("Read acknowledgement sent for %s\n", id)
}

func cmdCancel(ctx context.Context, c *client.Client, id string) {
	cancelled, err := c.Cancel(ctx, id)
	if err != nil {
		fatal(err)
	}
	if cancelled {
		fmt.Printf("Cancelled pending sends for %s\n", id)
	} else {
		fmt.Printf("No pending sends for %s\n", id)
	}
}

func cmdQuality(ctx context.Context, c *client.Client, jsonOut bool) {
	q, err := c.Quality(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(q)
		return
	}
	fmt.Printf("Quality:   %s\n", q.Level)
	fmt.Printf("Peers:     %d\n", q.Peers)
	fmt.Printf("Connected: %v\n", q.Connected)
}

// cmdWatch streams events until interrupted; no timeout applies.
func cmdWatch(c *client.Client) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events, err := c.Watch(ctx)
	if err != nil {
		fatal(err)
	}
	for evt := range events {
		line := fmt.Sprintf("%s %s", evt.At.Format(time.RFC3339), evt.Kind)
		if len(evt.Payload) > 0 {
			line += " " + string(evt.Payload)
		}
		fmt.Println(line)
	}
}

func printMessage(msg delivery.Message) {
	fmt.Printf("ID:        %s\n", msg.ID)
	fmt.Printf("Sender:    %s\n", msg.Sender)
	fmt.Printf("Created:   %s\n", msg.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Attempts:  %d\n", msg.Attempts)
	fmt.Printf("Status:    %s\n", msg.Status)
	fmt.Printf("Body:      %s\n", msg.Body)
}
