package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Doesntmeananything/sashay/internal/client"
	"github.com/Doesntmeananything/sashay/internal/localstore"
	"github.com/Doesntmeananything/sashay/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join the chat: live timeline plus a send prompt",
	RunE: func(cmd *cobra.Command, args []string) error {
		noStore, _ := cmd.Flags().GetBool("no-store")

		api := newAPIClient()

		var local *localstore.Store
		if !noStore {
			path, err := mirrorPath()
			if err == nil {
				local, err = localstore.Open(path)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: local mirror unavailable: %v\n", err)
			}
		}
		if local != nil {
			defer local.Close()
		}

		r := client.NewReconciler(api, local)
		defer r.Disconnect()

		printer := newTimelinePrinter(r.Mirror())
		r.Mirror().OnChange(printer.flush)
		r.OnPresence = func(username string, online bool) {
			verb := "connected"
			if !online {
				verb = "disconnected"
			}
			fmt.Println(ui.RenderMuted(fmt.Sprintf("* %s %s", username, verb)))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := r.Connect(ctx); err != nil {
			return err
		}
		printer.flush()
		fmt.Println(ui.RenderMuted("connected; type a message and press enter (Ctrl-C to quit)"))

		lines := make(chan string)
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- scanner.Text()
			}
			close(lines)
		}()

		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				text := strings.TrimSpace(line)
				if text == "" {
					continue
				}
				if _, err := r.SendChatMessage(ctx, text); err != nil {
					fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
				}
			}
		}
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send a single chat message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")

		api := newAPIClient()
		r := client.NewReconciler(api, nil)
		defer r.Disconnect()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := r.Connect(ctx); err != nil {
			return err
		}
		// Wait for the committed echo so the exit code reflects delivery.
		echoed := make(chan struct{}, 1)
		r.Mirror().OnChange(func() {
			select {
			case echoed <- struct{}{}:
			default:
			}
		})
		before := r.Mirror().Watermark()

		sent, err := r.SendChatMessage(ctx, text)
		if err != nil {
			return err
		}
		for r.Mirror().Watermark() == before {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-echoed:
			}
		}

		fmt.Printf("sent %s\n", sent.ID)
		return nil
	},
}

// timelinePrinter prints mirror messages exactly once, in timeline order.
type timelinePrinter struct {
	mu      sync.Mutex
	mirror  *client.Mirror
	printed map[string]string // message id -> last printed content
}

func newTimelinePrinter(m *client.Mirror) *timelinePrinter {
	return &timelinePrinter{mirror: m, printed: make(map[string]string)}
}

// flush prints any messages not yet shown, and notes edits to shown ones.
func (p *timelinePrinter) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()

	me := p.mirror.Me()
	for _, msg := range p.mirror.Messages() {
		prev, seen := p.printed[msg.ID]
		if seen && prev == msg.Content {
			continue
		}
		p.printed[msg.ID] = msg.Content

		name := p.mirror.Username(msg.UserID)
		rendered := ui.RenderAccent(name)
		if me != nil && msg.UserID == me.ID {
			rendered = ui.RenderOwn(name)
		}
		stamp := ui.RenderMuted(msg.CreatedAt.Local().Format("15:04"))
		if seen {
			fmt.Printf("%s %s %s %s\n", stamp, rendered, msg.Content, ui.RenderMuted("(edited)"))
			continue
		}
		fmt.Printf("%s %s %s\n", stamp, rendered, msg.Content)
	}
}

func init() {
	chatCmd.Flags().Bool("no-store", false, "skip the on-disk mirror")
}
