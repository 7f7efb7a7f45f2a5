package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/gradebridge-backend/internal/platform/redisbus"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print import and sweep completion events from the redis bus",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.Clients.Bus == nil {
			return fmt.Errorf("REDIS_ADDR is not configured")
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		err = a.Clients.Bus.StartForwarder(ctx, func(ev redisbus.Event) {
			_ = printJSON(cmd, ev)
		})
		if err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	},
}
