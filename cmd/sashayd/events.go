package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Doesntmeananything/sashay/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail the event firehose over NATS",
	Long: `Subscribes to the NATS event mirror and prints every committed
event as a JSON line. Requires SASHAY_NATS_URL to point at the same NATS
server the daemon publishes to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL := os.Getenv("SASHAY_NATS_URL")
		if natsURL == "" {
			return fmt.Errorf("SASHAY_NATS_URL is required")
		}
		subject, _ := cmd.Flags().GetString("subject")

		sub, err := events.NewNATSSubscriber(natsURL)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(subject)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", subject, err)
		}
		defer cancel()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Fprintf(os.Stderr, "tailing %s (Ctrl-C to stop)\n", subject)
		for {
			select {
			case <-ctx.Done():
				return nil
			case data, ok := <-ch:
				if !ok {
					return nil
				}
				fmt.Println(string(data))
			}
		}
	},
}

func init() {
	eventsCmd.Flags().String("subject", events.FirehoseSubject, "NATS subject to tail")
}
