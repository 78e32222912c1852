// Command notifyctl is the operator and developer tool for the notification
// service: it mints dev tokens, publishes events, watches a user's live
// notifications and runs schema migrations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phrazzld/tasknotify/internal/config"
	"github.com/phrazzld/tasknotify/internal/platform/logger"
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Every flag can also be set through
// the service's NOTIFY_ environment variables, e.g. NOTIFY_AUTH_JWT_SECRET
// for --secret.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "notifyctl",
		Short:         "Operate the task notification service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	_ = v.BindPFlag("server.log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newTokenCmd(v),
		newPublishCmd(v),
		newWatchCmd(v),
		newMigrateCmd(v),
	)
	return root
}

// cliLogger writes JSON logs to the command's error stream.
func cliLogger(cmd *cobra.Command, v *viper.Viper) *slog.Logger {
	return logger.SetupWithWriter(config.ServerConfig{LogLevel: v.GetString("server.log_level")}, cmd.ErrOrStderr())
}
