package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/face-embed/internal/config"
	"github.com/Brownie44l1/face-embed/internal/handlers"
	"github.com/Brownie44l1/face-embed/internal/model"
	"github.com/Brownie44l1/face-embed/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the embedding HTTP service",
	Long: `Load the face detector and recognizer once and serve POST /embed.
Flags override the FACE_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", config.DefaultHost, "Host to bind to")
	serveCmd.Flags().Int("port", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().String("manifest", config.DefaultManifestPath, "Path to the model manifest")
	serveCmd.Flags().String("onnxruntime-lib", "", "Path to the ONNX Runtime shared library")
	serveCmd.Flags().Int("engines", 1, "Number of inference engines (1 serializes requests)")
}

// applyServeFlags lets explicitly set flags win over environment values.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = mustGetString(cmd, "host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("manifest") {
		cfg.Model.ManifestPath = mustGetString(cmd, "manifest")
	}
	if cmd.Flags().Changed("onnxruntime-lib") {
		cfg.Model.SharedLibrary = mustGetString(cmd, "onnxruntime-lib")
	}
	if cmd.Flags().Changed("engines") {
		cfg.Model.Engines = mustGetInt(cmd, "engines")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	log.Printf("Loading model manifest from: %s", cfg.Model.ManifestPath)
	manifest, err := config.LoadManifest(cfg.Model.ManifestPath)
	if err != nil {
		return err
	}

	analyzer, err := model.NewAnalyzer(manifest, model.Options{
		SharedLibrary:  cfg.Model.SharedLibrary,
		Engines:        cfg.Model.Engines,
		IntraOpThreads: cfg.Model.IntraOpThreads,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize face analyzer: %w", err)
	}
	defer analyzer.Close()

	srv := server.New(cfg.Server, handlers.NewHandler(analyzer, cfg.Server.MaxUploadBytes, cfg.Server.MaxPixels))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("Embedding dimension: %d, engines: %d", analyzer.EmbeddingDim(), analyzer.Engines())
	log.Println("Endpoints:")
	log.Println("  GET  /health - Health check")
	log.Println("  POST /embed  - Face embedding from image upload")
	log.Printf("Upload test: curl -X POST -F \"file=@face.jpg\" http://%s/embed", cfg.Server.Addr())

	return srv.Start()
}
