package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that a running service is up and report its model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		health, err := newClient(cmd).Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(health)
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().String("url", "", "Service base URL (defaults to FACE_SERVICE_URL)")
}
