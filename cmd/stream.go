/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/realtime-gateway/internal/bootstrap"
	"github.com/spf13/cobra"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "create or update the gateway event stream",
	Long:  `create or update the jetstream stream that carries gateway events between instances`,
	Run:   bootstrap.StartStreamInit,
}

func init() {
	rootCmd.AddCommand(streamCmd)
}
