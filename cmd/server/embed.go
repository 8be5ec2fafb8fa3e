package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/face-embed/internal/client"
	"github.com/Brownie44l1/face-embed/internal/config"
	"github.com/Brownie44l1/face-embed/internal/model"
)

var embedCmd = &cobra.Command{
	Use:   "embed <image>",
	Short: "Print the face embedding of an image using a running service",
	Args:  cobra.ExactArgs(1),
	RunE:  runEmbed,
}

var compareCmd = &cobra.Command{
	Use:   "compare <image-a> <image-b>",
	Short: "Compare the first faces of two images",
	Long: `Embed both images through a running service and print the cosine
similarity of their first faces together with a verdict:
match (> 0.5), possible (> 0.4) or unknown.`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(compareCmd)

	for _, c := range []*cobra.Command{embedCmd, compareCmd} {
		c.Flags().String("url", "", "Service base URL (defaults to FACE_SERVICE_URL)")
	}
}

// newClient builds a client from the environment, honouring --url.
func newClient(cmd *cobra.Command) *client.Client {
	cfg := config.Load()
	if url := mustGetString(cmd, "url"); url != "" {
		cfg.Client.ServiceURL = url
	}
	return client.New(cfg.Client.ServiceURL, cfg.Client.Timeout)
}

func embedFile(cmd *cobra.Command, c *client.Client, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	emb, err := c.GetFaceEmbedding(cmd.Context(), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return emb, nil
}

func runEmbed(cmd *cobra.Command, args []string) error {
	emb, err := embedFile(cmd, newClient(cmd), args[0])
	if err != nil {
		return err
	}
	return json.NewEncoder(cmd.OutOrStdout()).Encode(model.EmbeddingResponse{Embedding: emb})
}

type compareResult struct {
	Similarity float64        `json:"similarity"`
	Verdict    client.Verdict `json:"verdict"`
}

func runCompare(cmd *cobra.Command, args []string) error {
	c := newClient(cmd)

	a, err := embedFile(cmd, c, args[0])
	if err != nil {
		return err
	}
	b, err := embedFile(cmd, c, args[1])
	if err != nil {
		return err
	}

	score := client.CosineSimilarity(a, b)
	return json.NewEncoder(cmd.OutOrStdout()).Encode(compareResult{
		Similarity: score,
		Verdict:    client.Classify(score),
	})
}
