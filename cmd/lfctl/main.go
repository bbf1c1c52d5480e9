package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/api"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/chat"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/config"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/profile"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/client"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/tui/views"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// share only needs the config, not the daemon.
	if args[0] == "share" {
		cmdShare(args[1:], *jsonFlag)
		return
	}

	c, err := client.New(profile.SocketPath(name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", name, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := output{json: *jsonFlag}
	switch args[0] {
	case "status":
		cmdStatus(ctx, c, out)
	case "login":
		cmdLogin(ctx, c, args[1:], out)
	case "verify":
		cmdVerify(ctx, c, out)
	case "chats":
		cmdChats(ctx, c, out)
	case "start":
		cmdStart(ctx, c, args[1:], out)
	case "open":
		cmdOpen(ctx, c, args[1:], out)
	case "history":
		cmdHistory(ctx, c, args[1:], out)
	case "send":
		cmdSend(ctx, c, args[1:], out)
	case "read":
		cmdRead(ctx, c, args[1:])
	case "search":
		cmdSearch(ctx, c, args[1:], out)
	case "watch":
		cancel()
		cmdWatch(c, args[1:], out)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: lfctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                 Show channel and session status")
	fmt.Fprintln(os.Stderr, "  login <user>           Log in (password from LF_PASSWORD or stdin)")
	fmt.Fprintln(os.Stderr, "  verify                 Check the stored session")
	fmt.Fprintln(os.Stderr, "  chats                  List chats")
	fmt.Fprintln(os.Stderr, "  start <userId>         Start or find the chat with a user")
	fmt.Fprintln(os.Stderr, "  open <chatId>          Open a chat and print its history")
	fmt.Fprintln(os.Stderr, "  history <chatId> [n]   Print the last n messages of a chat")
	fmt.Fprintln(os.Stderr, "  send <text>            Send text to the open chat")
	fmt.Fprintln(os.Stderr, "  read <chatId>          Mark a chat read")
	fmt.Fprintln(os.Stderr, "  search <query>         Search cached messages")
	fmt.Fprintln(os.Stderr, "  watch [prefix]         Stream daemon events")
	fmt.Fprintln(os.Stderr, "  share <chatId>         Print a QR code of the chat link")
}

type output struct {
	json bool
}

func (o output) print(v any, human func()) {
	if o.json {
		outputJSON(v)
		return
	}
	human()
}

func fail(err error) {
	if api.IsUnauthenticated(err) {
		fmt.Fprintf(os.Stderr, "error: %v\nrun lfctl login <user> to sign in again\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

func needArg(args []string, usage string) string {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		fmt.Fprintf(os.Stderr, "usage: lfctl %s\n", usage)
		os.Exit(1)
	}
	return args[0]
}

func cmdStatus(ctx context.Context, c *client.Client, out output) {
	resp, err := c.Status(ctx)
	if err != nil {
		fail(err)
	}
	out.print(resp, func() {
		fmt.Printf("Profile:  %s\n", resp.Profile)
		fmt.Printf("Channel:  %s\n", resp.State)
		if resp.UserID != "" {
			fmt.Printf("User:     %s (%s)\n", resp.Username, resp.UserID)
		} else {
			fmt.Println("User:     not logged in")
		}
		if resp.ActiveChat != "" {
			fmt.Printf("Room:     %s with %s [%s]\n", resp.ActiveChat, resp.Partner.Username, resp.RoomState)
		}
		if resp.Refreshing {
			fmt.Println("Session:  refreshing")
		}
		fmt.Printf("Cached:   %d chats, %d messages\n", resp.CachedChats, resp.CachedMsgs)
		fmt.Printf("Uptime:   %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
	})
}

func cmdLogin(ctx context.Context, c *client.Client, args []string, out output) {
	username := needArg(args, "login <user>")
	password := os.Getenv("LF_PASSWORD")
	if password == "" {
		var err error
		if password, err = readPassword(); err != nil {
			fail(fmt.Errorf("read password: %w", err))
		}
	}
	resp, err := c.Login(ctx, username, password)
	if err != nil {
		fail(err)
	}
	out.print(resp, func() {
		fmt.Printf("Logged in as %s (%s)\n", resp.Username, resp.UserID)
	})
}

// readPassword prompts on a terminal without echo, or reads one line
// from piped stdin.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func cmdVerify(ctx context.Context, c *client.Client, out output) {
	resp, err := c.Verify(ctx)
	if err != nil {
		fail(err)
	}
	out.print(resp, func() {
		if resp.Valid {
			fmt.Printf("Session valid for %s\n", resp.User)
		} else {
			fmt.Println("Session invalid. Run lfctl login <user>.")
		}
	})
}

func cmdChats(ctx context.Context, c *client.Client, out output) {
	resp, err := c.ListChats(ctx)
	if err != nil {
		fail(err)
	}
	out.print(resp, func() {
		if resp.Cached {
			fmt.Println("(server unreachable, showing cached chats)")
		}
		if len(resp.Chats) == 0 {
			fmt.Println("No chats.")
			return
		}
		for _, s := range resp.Chats {
			unread := ""
			if s.UnreadCount > 0 {
				unread = fmt.Sprintf(" [%d unread]", s.UnreadCount)
			}
			preview := ""
			if s.LastMessage != nil {
				preview = (chat.Message{Text: s.LastMessage.Text}).Preview(50)
			}
			fmt.Printf("%-26s %-16s%s %s\n", s.ChatID, s.WithUser, unread, preview)
		}
	})
}

func cmdStart(ctx context.Context, c *client.Client, args []string, out output) {
	partnerID := needArg(args, "start <userId>")
	chatID, err := c.StartChat(ctx, partnerID)
	if err != nil {
		fail(err)
	}
	out.print(api.ChatRef{ChatID: chatID}, func() {
		fmt.Println(chatID)
	})
}

func cmdOpen(ctx context.Context, c *client.Client, args []string, out output) {
	chatID := needArg(args, "open <chatId>")
	resp, err := c.OpenChat(ctx, chatID)
	if err != nil {
		fail(err)
	}
	out.print(resp, func() {
		fmt.Printf("Chat %s with %s\n\n", resp.ChatID, resp.Partner.Username)
		printMessages(resp.Messages, currentUser(ctx, c))
	})
}

func cmdHistory(ctx context.Context, c *client.Client, args []string, out output) {
	chatID := needArg(args, "history <chatId> [n]")
	req := api.ListMessagesRequest{ChatID: chatID, Limit: 50}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			fmt.Fprintln(os.Stderr, "usage: lfctl history <chatId> [n]")
			os.Exit(1)
		}
		req.Limit = n
	}
	resp, err := c.ListMessages(ctx, req)
	if err != nil {
		fail(err)
	}
	out.print(resp, func() {
		fmt.Printf("(%s)\n", resp.Source)
		printMessages(resp.Messages, currentUser(ctx, c))
	})
}

func cmdSend(ctx context.Context, c *client.Client, args []string, out output) {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "usage: lfctl send <text>")
		os.Exit(1)
	}
	resp, err := c.SendText(ctx, text)
	if err != nil {
		fail(err)
	}
	out.print(resp, func() {
		switch resp.Message.Status {
		case chat.StatusFailed:
			fmt.Println("Not sent: the connection is down.")
			os.Exit(1)
		default:
			fmt.Println("Sent.")
		}
	})
}

func cmdRead(ctx context.Context, c *client.Client, args []string) {
	chatID := needArg(args, "read <chatId>")
	if err := c.MarkRead(ctx, chatID); err != nil {
		fail(err)
	}
}

func cmdSearch(ctx context.Context, c *client.Client, args []string, out output) {
	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "usage: lfctl search <query>")
		os.Exit(1)
	}
	resp, err := c.SearchMessages(ctx, api.SearchRequest{Query: query, Limit: 50})
	if err != nil {
		fail(err)
	}
	out.print(resp, func() {
		if len(resp.Results) == 0 {
			fmt.Println("No matches.")
			return
		}
		for _, r := range resp.Results {
			fmt.Printf("%-26s %-12s %s\n", r.Message.ChatID, r.Message.SenderName, r.Snippet)
		}
	})
}

func cmdWatch(c *client.Client, args []string, out output) {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := c.WatchEvents(ctx, prefix)
	if err != nil {
		fail(err)
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || api.IsStreamEnd(err) {
				return
			}
			fail(err)
		}
		out.print(evt, func() {
			ts := time.UnixMilli(evt.TsMs).Format("15:04:05.000")
			payload := ""
			if evt.Payload != nil {
				raw, _ := json.Marshal(evt.Payload)
				payload = string(raw)
			}
			fmt.Printf("%s %-26s %-14s %s\n", ts, evt.Kind, evt.ChatID, payload)
		})
	}
}

func cmdShare(args []string, jsonOut bool) {
	chatID := needArg(args, "share <chatId>")
	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fail(err)
	}
	cfg.ApplyEnv()
	link, err := cfg.ChatLink(chatID)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(map[string]string{"chat_id": chatID, "link": link})
		return
	}
	fmt.Println(link)
	fmt.Println()
	fmt.Print(views.RenderQR(link))
}

// currentUser returns the logged-in user id, or "" when unknown.
func currentUser(ctx context.Context, c *client.Client) string {
	st, err := c.Status(ctx)
	if err != nil {
		return ""
	}
	return st.UserID
}

func printMessages(msgs []chat.Message, userID string) {
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, m := range msgs {
		sender := m.SenderName
		if m.Mine(userID) {
			sender = "you"
		}
		if sender == "" {
			sender = m.SenderID
		}
		mark := ""
		switch m.Status {
		case chat.StatusPending:
			mark = " (sending…)"
		case chat.StatusFailed:
			mark = " (failed)"
		}
		fmt.Printf("[%s] %s: %s%s\n", m.Timestamp.Local().Format("01/02 15:04"), sender, m.Text, mark)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
