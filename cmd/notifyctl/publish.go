package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phrazzld/tasknotify/internal/broker"
	"github.com/phrazzld/tasknotify/internal/config"
	"github.com/phrazzld/tasknotify/internal/domain"
	"github.com/phrazzld/tasknotify/internal/platform/redis"
)

func newPublishCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one notification event to the broker",
		Long: `Publish one notification event to the Redis stream the service consumes.

Examples:
  notifyctl publish --type TASK_ASSIGNED --user u1 --task t1 \
    --title "Task assigned" --message "You were assigned to Write docs"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName, _ := cmd.Flags().GetString("type")
			userID, _ := cmd.Flags().GetString("user")
			taskID, _ := cmd.Flags().GetString("task")
			title, _ := cmd.Flags().GetString("title")
			message, _ := cmd.Flags().GetString("message")
			data, _ := cmd.Flags().GetString("data")

			eventType, err := domain.ParseEventType(typeName)
			if err != nil {
				return err
			}
			var raw json.RawMessage
			if data != "" {
				raw = json.RawMessage(data)
			}
			evt, err := domain.NewNotificationEvent(eventType, userID, taskID, title, message, raw)
			if err != nil {
				return err
			}
			body, err := evt.Encode()
			if err != nil {
				return err
			}

			log := cliLogger(cmd, v)
			client, err := redis.NewClient(cmd.Context(), config.RedisConfig{URL: v.GetString("redis.url")}, log)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			publisher, err := broker.NewRedisStreams(client, broker.StreamConfig{
				Stream:   v.GetString("broker.stream"),
				Group:    "notifyctl",
				Consumer: "notifyctl",
			}, log)
			if err != nil {
				return err
			}
			if err := publisher.Publish(cmd.Context(), body); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), evt.ID)
			return err
		},
	}

	cmd.Flags().String("type", "", "Event type: TASK_CREATED, TASK_ASSIGNED, TASK_UPDATED or COMMENT_CREATED (required)")
	cmd.Flags().String("user", "", "Recipient user ID (required)")
	cmd.Flags().String("task", "", "Task ID (required)")
	cmd.Flags().String("title", "", "Notification title (required)")
	cmd.Flags().String("message", "", "Notification message (required)")
	cmd.Flags().String("data", "", "Optional JSON object attached to the notification")
	cmd.Flags().String("redis-url", "redis://localhost:6379/0", "Redis URL")
	cmd.Flags().String("stream", "notifications:events", "Stream the service consumes")
	for _, name := range []string{"type", "user", "task", "title", "message"} {
		_ = cmd.MarkFlagRequired(name)
	}
	_ = v.BindPFlag("redis.url", cmd.Flags().Lookup("redis-url"))
	_ = v.BindPFlag("broker.stream", cmd.Flags().Lookup("stream"))
	return cmd
}
