// Cracoe CLI - Command line client for Cracoe direct messaging
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/ssharvesh-steep/cracoe-social-media/clients/go/cracoe"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CRACOE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := cracoe.NewClient(baseURL)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "signup":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: cracoe signup <username> <password> [full name]")
			os.Exit(1)
		}
		fullName := ""
		if len(os.Args) > 4 {
			fullName = os.Args[4]
		}
		user, err := client.SignUp(ctx, os.Args[2], os.Args[3], fullName)
		exitOnError(err)
		fmt.Printf("Signed up as: %s (%s)\n", user.Username, user.ID)

	case "login":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: cracoe login <username> <password>")
			os.Exit(1)
		}
		user, err := client.SignIn(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Signed in as: %s\n", user.Username)

	case "logout":
		exitOnError(client.SignOut())
		fmt.Println("Signed out")

	case "whoami":
		user, err := client.Me(ctx)
		exitOnError(err)
		printJSON(user)

	case "dm":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: cracoe dm <username>")
			os.Exit(1)
		}
		other, err := client.LookupUser(ctx, os.Args[2])
		exitOnError(err)
		convID, err := client.ResolveConversation(ctx, other.ID)
		exitOnError(err)
		fmt.Printf("Conversation: %s\n", convID)

	case "inbox":
		me, err := client.Me(ctx)
		exitOnError(err)
		convs, err := client.ListConversations(ctx)
		exitOnError(err)
		for _, conv := range convs {
			name := "(unknown)"
			if p := conv.Other(me.ID); p != nil {
				name = p.Username
			}
			preview := ""
			if conv.LastMessageContent != nil {
				preview = *conv.LastMessageContent
			}
			ts := conv.LastMessageAt.Local().Format("2006-01-02 15:04")
			fmt.Printf("  %s  [%s] %s: %s\n", conv.ID, ts, name, preview)
		}

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: cracoe read <conversation_id>")
			os.Exit(1)
		}
		msgs, err := client.ListMessages(ctx, os.Args[2])
		exitOnError(err)
		printMessages(msgs)
		_, err = client.MarkRead(ctx, os.Args[2])
		exitOnError(err)

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: cracoe send <conversation_id> <message>")
			os.Exit(1)
		}
		msg, err := client.SendMessage(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Sent: %s\n", msg.ID)

	case "watch":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: cracoe watch <conversation_id>")
			os.Exit(1)
		}
		watch(ctx, client, os.Args[2])

	case "unread":
		count, err := client.UnreadCount(ctx)
		exitOnError(err)
		fmt.Printf("Unread: %d\n", count)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// watch tails a conversation live until interrupted.
func watch(ctx context.Context, client *cracoe.Client, convID string) {
	sub, err := client.Dial(ctx)
	exitOnError(err)
	defer sub.Close()

	thread, err := client.OpenThread(ctx, sub, convID, nil)
	exitOnError(err)
	defer thread.Close()

	printMessages(thread.Messages())

	seen := len(thread.Messages())
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	for {
		select {
		case <-stop:
			return
		case <-sub.Done():
			fmt.Fprintln(os.Stderr, "Connection lost")
			return
		case <-ticker.C:
			msgs := thread.Messages()
			if len(msgs) > seen {
				printMessages(msgs[seen:])
				seen = len(msgs)
			}
		}
	}
}

func printMessages(msgs []cracoe.Message) {
	for _, msg := range msgs {
		from := msg.SenderID
		if msg.Sender != nil {
			from = msg.Sender.Username
		}
		ts := msg.CreatedAt.Local().Format("2006-01-02 15:04:05")
		fmt.Printf("[%s] %s: %s\n", ts, from, msg.Content)
	}
}

func usage() {
	fmt.Println(`Cracoe CLI - direct messaging client

Usage: cracoe <command> [options]

Commands:
  signup <user> <pass> [name]   Create an account
  login <user> <pass>           Sign in
  logout                        Sign out
  whoami                        Show the signed-in user
  dm <username>                 Open (or find) a conversation with a user
  inbox                         List conversations, most recent first
  read <conversation_id>        Read a conversation and mark it read
  send <conversation_id> <msg>  Send a message
  watch <conversation_id>       Tail a conversation live
  unread                        Count unread messages

Environment:
  CRACOE_URL      Server URL (default: http://localhost:8080)
  CRACOE_CONFIG   Config directory (default: ~/.cracoe)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
