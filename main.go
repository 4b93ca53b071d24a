package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagPort       int
	flagAPIKey     string
	flagApifyToken string
	flagSettings   string
	flagDebug      bool
)

var rootCmd = &cobra.Command{
	Use:   "newslens",
	Short: "News bias detection API server",
	Long: `newslens searches news coverage of a topic, fetches and parses the
articles, and analyzes a target article's claims against them sentence
by sentence using an LLM. Results are served over a JSON HTTP API with
an optional streaming mode.`,
	RunE: runServer,
}

func init() {
	rootCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "HTTP port (overrides settings)")
	rootCmd.Flags().StringVar(&flagAPIKey, "api-key", "", "Anthropic API key (or ANTHROPIC_API_KEY)")
	rootCmd.Flags().StringVar(&flagApifyToken, "apify-token", "", "Apify API token (or APIFY_API_TOKEN)")
	rootCmd.Flags().StringVarP(&flagSettings, "settings", "s", "", "Path to settings file")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
}

func runServer(cmd *cobra.Command, args []string) error {
	SetDebugMode(flagDebug)

	if err := ensureConfigExists(); err != nil {
		return fmt.Errorf("preparing config: %w", err)
	}

	settings, err := LoadSettings(flagSettings)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if flagPort != 0 {
		settings.Server.Port = flagPort
	}

	apiKey := flagAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("Anthropic API key required: set --api-key or ANTHROPIC_API_KEY")
	}

	apifyToken := flagApifyToken
	if apifyToken == "" {
		apifyToken = os.Getenv("APIFY_API_TOKEN")
	}
	if apifyToken == "" {
		return fmt.Errorf("Apify token required: set --apify-token or APIFY_API_TOKEN")
	}

	search := NewSearchClient(apifyToken, settings.Search)
	fetcher := NewArticleFetcher(settings.Fetcher)
	analyzer := NewClaimsAnalyzer(apiKey, settings.Analyzer)
	pipeline := NewPipeline(search, fetcher, analyzer, settings)
	server := NewServer(search, fetcher, analyzer, pipeline)

	addr := fmt.Sprintf(":%d", settings.Server.Port)
	log.Printf("→ News Bias Detector API listening on %s", addr)
	log.Printf("→ Output directory: %s", settings.Server.OutputDirectory)

	return http.ListenAndServe(addr, server.Handler())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("✗ %v", err)
		os.Exit(1)
	}
}
