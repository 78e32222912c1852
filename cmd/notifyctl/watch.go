package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phrazzld/tasknotify/internal/client"
	"github.com/phrazzld/tasknotify/internal/domain"
)

func newWatchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a user's notifications live",
		Long: `Connect to the realtime endpoint as a user and print every push and the
unread count until interrupted.

Examples:
  notifyctl watch --url http://localhost:8080 --user u1 --token "$(notifyctl token --user u1)"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			token, _ := cmd.Flags().GetString("token")
			retries, _ := cmd.Flags().GetInt("retries")

			out := &syncWriter{w: cmd.OutOrStdout()}
			adapter, err := client.New(client.Options{
				ServerURL:  v.GetString("watch.url"),
				SocketPath: v.GetString("realtime.path"),
				UserID:     userID,
				Token:      token,
				MaxRetries: retries,
				OnWarning: func(err error) {
					out.printf("warning: %v\n", err)
				},
				Logger: cliLogger(cmd, v),
			})
			if err != nil {
				return err
			}
			defer func() { _ = adapter.Close() }()

			watched := []string{domain.PushNotificationRead, domain.PushNotificationsReadAll, client.EventNotification}
			for event := range client.Mapping {
				watched = append(watched, event)
			}
			for _, event := range watched {
				adapter.On(event, func(data json.RawMessage) {
					out.printf("%s %s\n", event, data)
				})
			}

			state := adapter.State()
			state.Subscribe(func() {
				out.printf("unread: %d\n", state.UnreadCount())
			})

			if err := adapter.Start(cmd.Context()); err != nil {
				return err
			}

			select {
			case <-cmd.Context().Done():
				return nil
			case <-adapter.Done():
				err := adapter.Err()
				if errors.Is(err, client.ErrAuthenticationFailed) || errors.Is(err, client.ErrRetriesExhausted) {
					return err
				}
				return nil
			}
		},
	}

	cmd.Flags().String("url", "http://localhost:8080", "Base URL of the notification service")
	cmd.Flags().String("path", "/ws/notifications", "Realtime endpoint path")
	cmd.Flags().String("user", "", "User ID to watch as (required)")
	cmd.Flags().String("token", "", "Access token for the user (required)")
	cmd.Flags().Int("retries", 5, "Reconnect attempts before giving up")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("token")
	_ = v.BindPFlag("watch.url", cmd.Flags().Lookup("url"))
	_ = v.BindPFlag("realtime.path", cmd.Flags().Lookup("path"))
	return cmd
}

// syncWriter serializes output from listener callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, format, args...)
}
