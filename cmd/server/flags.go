package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Flags are registered in init, so a lookup error is a programming mistake.

func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("%s: --%s: %v", cmd.Name(), name, err))
	}
	return val
}

func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("%s: --%s: %v", cmd.Name(), name, err))
	}
	return val
}
