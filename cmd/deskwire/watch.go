package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskwire/deskwire/internal/broker"
	"github.com/deskwire/deskwire/internal/conversation"
)

func newWatchCommand() *cobra.Command {
	var userID, userName string
	cmd := &cobra.Command{
		Use:   "watch <conversation-id>",
		Short: "Subscribe to a conversation and print its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, tokens, err := bootstrap()
			if err != nil {
				return err
			}
			authorizer := broker.NewHTTPAuthorizer(cfg.API.Origin, tokens)
			provider := broker.NewProvider(logger, broker.Config{
				Key:    cfg.Broker.Key,
				Host:   cfg.Broker.Host,
				Port:   cfg.Broker.Port,
				Scheme: cfg.Broker.Scheme,
			}, authorizer)
			manager := conversation.NewManager(logger, provider, userID, userName)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = manager.Subscribe(ctx, args[0], func(ev conversation.Event) {
				switch ev.Kind {
				case conversation.KindSubscribed:
					fmt.Printf("-- joined conversation %s\n", ev.ConversationID)
				case conversation.KindMessage:
					printMessage(ev.Message)
				case conversation.KindTyping:
					fmt.Printf("-- %s is typing...\n", ev.Typing.UserName)
				case conversation.KindError:
					fmt.Fprintf(os.Stderr, "-- channel error: %v\n", ev.Err)
				}
			})
			if err != nil {
				return err
			}

			// Pressing enter whispers a typing signal to the other
			// participants.
			go func() {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					manager.SendTyping(args[0])
				}
			}()

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			manager.Shutdown(shutdownCtx)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "local user id for typing signals")
	cmd.Flags().StringVar(&userName, "user-name", "", "local user name for typing signals")
	return cmd
}

func printMessage(msg *conversation.Message) {
	stamp := msg.CreatedAt.Local().Format("15:04:05")
	fmt.Printf("[%s] %s: %s\n", stamp, msg.Sender.Name, msg.Body)
	for _, ref := range msg.Attachments {
		fmt.Printf("        attachment: %s (%s)\n", ref.Filename, ref.Mime)
	}
}
