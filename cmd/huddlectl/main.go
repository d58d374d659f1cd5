package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/lock"
	"github.com/matheus3301/huddle/internal/paths"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Listing instances needs no daemon.
	if args[0] == "instances" {
		cmdInstances(*jsonFlag)
		return
	}

	instance := paths.Resolve(*instanceFlag)
	if err := paths.ValidateName(instance); err != nil {
		fail(err)
	}

	c, err := api.Dial(paths.SocketPath(instance))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for instance %q: %v\n", instance, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		cmdWatch(c, args[1:], *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "user":
		if len(args) < 3 || args[1] != "add" {
			usageError("huddlectl user add <display-name> [avatar-ref]")
		}
		avatar := ""
		if len(args) > 3 {
			avatar = args[3]
		}
		cmdUserAdd(ctx, c, args[2], avatar, *jsonFlag)
	case "token":
		if len(args) < 2 {
			usageError("huddlectl token <user-id>")
		}
		cmdToken(ctx, c, parseID(args[1]), *jsonFlag)
	case "chat":
		cmdChat(ctx, c, args[1:], *jsonFlag)
	case "history":
		if len(args) < 2 {
			usageError("huddlectl history <chat-id>")
		}
		cmdHistory(ctx, c, parseID(args[1]), *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: huddlectl [--instance <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                                  Show daemon status")
	fmt.Fprintln(os.Stderr, "  user add <name> [avatar-ref]            Create a user")
	fmt.Fprintln(os.Stderr, "  token <user-id>                         Issue a client token")
	fmt.Fprintln(os.Stderr, "  chat direct <user-a> <user-b>           Create or find a direct chat")
	fmt.Fprintln(os.Stderr, "  chat group <creator> <name> [ids...]    Create a group chat")
	fmt.Fprintln(os.Stderr, "  history <chat-id>                       Print a chat's messages")
	fmt.Fprintln(os.Stderr, "  watch [chat-id]                         Stream new messages")
	fmt.Fprintln(os.Stderr, "  instances                               List known instances")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func usageError(usage string) {
	fmt.Fprintln(os.Stderr, "usage: "+usage)
	os.Exit(1)
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		fail(fmt.Errorf("invalid id %q", s))
	}
	return id
}

func cmdStatus(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.Status(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Instance: %s\n", resp.Instance)
	fmt.Printf("State:    %s (since %s)\n", resp.State, resp.StateSince.Local().Format(time.DateTime))
	fmt.Printf("Listen:   %s\n", resp.ListenAddr)
	fmt.Printf("Uptime:   %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
	fmt.Printf("Users:    %d  Chats: %d  Messages: %d\n", resp.Users, resp.Chats, resp.Messages)
	fmt.Printf("Rooms:    %d  Subscriptions: %d\n", resp.Rooms, resp.Subscriptions)
	if resp.DroppedEvents > 0 {
		fmt.Printf("Dropped bus events: %d\n", resp.DroppedEvents)
	}
}

func cmdUserAdd(ctx context.Context, c *api.Client, name, avatar string, jsonOut bool) {
	resp, err := c.CreateUser(ctx, &api.CreateUserRequest{DisplayName: name, AvatarRef: avatar})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Created user %d (%s)\n", resp.User.ID, resp.User.DisplayName)
}

func cmdToken(ctx context.Context, c *api.Client, userID int64, jsonOut bool) {
	resp, err := c.IssueToken(ctx, &api.IssueTokenRequest{UserID: userID})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Println(resp.Token)
}

func cmdChat(ctx context.Context, c *api.Client, args []string, jsonOut bool) {
	if len(args) == 0 {
		usageError("huddlectl chat <direct|group> ...")
	}
	var (
		resp *api.ChatReply
		err  error
	)
	switch args[0] {
	case "direct":
		if len(args) != 3 {
			usageError("huddlectl chat direct <user-a> <user-b>")
		}
		resp, err = c.CreateDirectChat(ctx, &api.CreateDirectChatRequest{UserA: parseID(args[1]), UserB: parseID(args[2])})
	case "group":
		if len(args) < 3 {
			usageError("huddlectl chat group <creator> <name> [member-ids...]")
		}
		req := &api.CreateGroupChatRequest{Creator: parseID(args[1]), Name: args[2]}
		for _, a := range args[3:] {
			req.MemberIDs = append(req.MemberIDs, parseID(a))
		}
		resp, err = c.CreateGroupChat(ctx, req)
	default:
		fmt.Fprintf(os.Stderr, "unknown chat subcommand: %s\n", args[0])
		os.Exit(1)
	}
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Chat %d %q (%s), members %v\n", resp.Chat.ID, resp.Chat.Name, resp.Outcome, resp.Chat.Members)
}

func cmdHistory(ctx context.Context, c *api.Client, chatID int64, jsonOut bool) {
	resp, err := c.History(ctx, &api.HistoryRequest{ChatID: chatID})
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Messages) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, m := range resp.Messages {
		printMessage(m)
	}
}

func cmdWatch(c *api.Client, args []string, jsonOut bool) {
	req := &api.WatchRequest{}
	if len(args) > 0 {
		req.ChatID = parseID(args[0])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := c.WatchMessages(ctx, req)
	if err != nil {
		fail(err)
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			fail(err)
		}
		if jsonOut {
			outputJSON(evt)
			continue
		}
		printMessage(evt.Message)
	}
}

func printMessage(m api.Message) {
	text := m.Content
	if m.AttachmentRef != "" {
		text += " [attachment " + m.AttachmentRef + "]"
	}
	fmt.Printf("#%-6d %s chat=%d %s: %s\n", m.ID, m.CreatedAt.Local().Format(time.DateTime), m.ChatID, m.SenderName, text)
}

type instanceInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Addr    string `json:"addr,omitempty"`
}

func cmdInstances(jsonOut bool) {
	entries, err := os.ReadDir(filepath.Join(paths.BaseDir(), "instances"))
	if err != nil && !os.IsNotExist(err) {
		fail(err)
	}
	var list []instanceInfo
	for _, e := range entries {
		if !e.IsDir() || paths.ValidateName(e.Name()) != nil {
			continue
		}
		info := instanceInfo{Name: e.Name(), Path: paths.Dir(e.Name())}
		if h, err := lock.Read(info.Path); err == nil {
			info.Running, info.PID, info.Addr = true, h.PID, h.Addr
		}
		list = append(list, info)
	}
	if jsonOut {
		outputJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No instances found.")
		return
	}
	for _, i := range list {
		state := "stopped"
		if i.Running {
			state = fmt.Sprintf("running pid=%d addr=%s", i.PID, i.Addr)
		}
		fmt.Printf("%-20s %s (%s)\n", i.Name, i.Path, state)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
