/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/realtime-gateway/internal/bootstrap"
	"github.com/spf13/cobra"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "connect to a gateway as a client and log received frames",
	Long:  `connect to a gateway as a client, subscribe to channels and log every received frame`,
	Run:   bootstrap.StartProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().String("url", "ws://localhost:8080/ws", "gateway websocket url")
	probeCmd.Flags().String("token", "", "bearer token, signed from config when empty")
	probeCmd.Flags().String("user", "", "user id used to sign a token when --token is empty")
	probeCmd.Flags().StringSlice("channels", []string{"bot-status", "notifications"}, "channels to subscribe")
	probeCmd.Flags().Duration("duration", 0, "stop after this long, 0 runs until interrupted")
}
