package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-embed",
	Short: "Face embedding service",
	Long: `face-embed detects faces in uploaded images and returns the embedding
vector of the first detected face. Run "face-embed serve" to start the HTTP
service, or use "embed" and "compare" to query a running instance.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadDotEnv)
}

// loadDotEnv fills unset FACE_* variables from ./.env when the file exists.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: ignoring .env: %v
", err)
	}
}
