package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/pkg/bus"
	"github.com/agentdeck/agentdeck/pkg/log"
	"github.com/agentdeck/agentdeck/pkg/session"
	"github.com/agentdeck/agentdeck/pkg/stream"
)

var attachURL string

var attachCmd = &cobra.Command{
	Use:   "attach <session-id>",
	Short: "Follow a session running on a remote agent host",
	Long: `Follow a session running on a remote agent host.

Events are bridged from the host's websocket endpoint (events.websocket_url
in the configuration, or --url) onto the local event channels and printed
as they arrive, until the run completes or you interrupt.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		url := attachURL
		if url == "" {
			url = loadedConfig.Events.WebSocketURL
		}
		if url == "" {
			return fmt.Errorf("no websocket url: set events.websocket_url or --url")
		}

		b := bus.NewMemoryBus()
		source := bus.NewWebSocketSource(bus.WebSocketSourceConfig{URL: url, Target: b})
		if err := source.Start(cmd.Context()); err != nil {
			return err
		}
		defer func() { _ = source.Stop() }()

		done := make(chan bool, 1)
		p := &printer{}
		subs := []struct {
			channel string
			handler bus.Handler
		}{
			{bus.Scoped(bus.ChannelOutput, sessionID), func(payload []byte) {
				msg, err := stream.Parse(payload)
				if err != nil {
					log.Warn("dropping malformed remote event", "error", err)
					return
				}
				p.OnEvent(session.EventMessageAppended, msg)
			}},
			{bus.Scoped(bus.ChannelError, sessionID), func(payload []byte) {
				fmt.Fprintf(os.Stderr, "remote: %s\n", payload)
			}},
			{bus.Scoped(bus.ChannelComplete, sessionID), func(payload []byte) {
				select {
				case done <- string(payload) == "true":
				default:
				}
			}},
		}
		for _, s := range subs {
			sub, err := b.Subscribe(s.channel, s.handler)
			if err != nil {
				return err
			}
			defer sub.Close()
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt)
		defer signal.Stop(sigs)

		select {
		case success := <-done:
			if !success {
				return fmt.Errorf("remote run failed")
			}
			return nil
		case <-sigs:
			return nil
		}
	},
}

func init() {
	attachCmd.Flags().StringVar(&attachURL, "url", "", "Websocket URL of the remote agent host")
	rootCmd.AddCommand(attachCmd)
}
