/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/realtime-gateway/internal/bootstrap"
	"github.com/spf13/cobra"
)

// gatewayCmd represents the gateway command
var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the realtime websocket gateway",
	Long: `The gateway accepts authenticated websocket sessions, manages channel
subscriptions and heartbeats, and delivers backend events to connected
clients. It also serves the ops http api and the grpc event ingestion api.`,
	Run: bootstrap.StartGateway,
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}
