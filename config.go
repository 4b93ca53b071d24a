package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".newslens/"

//go:embed config/settings.yaml
var defaultSettings string

// ServerSettings configures the HTTP surface and result persistence.
type ServerSettings struct {
	Port                 int    `yaml:"port"`
	OutputDirectory      string `yaml:"output_directory"`
	ReputableSourcesPath string `yaml:"reputable_sources_path"`
}

// SearchSettings configures the scrape-actor client.
type SearchSettings struct {
	ActorID        string `yaml:"actor_id"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// FetcherSettings configures article downloads.
type FetcherSettings struct {
	UserAgent      string `yaml:"user_agent"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Language       string `yaml:"language"`
}

// AnalyzerSettings configures the completion-API calls. ChunkMaxChars is
// the character budget of one streaming chunk; ChunkMaxTokens is the
// smaller per-chunk output ceiling.
type AnalyzerSettings struct {
	Model             string  `yaml:"model"`
	AnalysisMaxTokens int     `yaml:"analysis_max_tokens"`
	ChunkMaxTokens    int     `yaml:"chunk_max_tokens"`
	SummaryMaxTokens  int     `yaml:"summary_max_tokens"`
	ChunkMaxChars     int     `yaml:"chunk_max_chars"`
	Temperature       float64 `yaml:"temperature"`
}

// Settings is the YAML configuration structure.
type Settings struct {
	Server   ServerSettings   `yaml:"server"`
	Search   SearchSettings   `yaml:"search"`
	Fetcher  FetcherSettings  `yaml:"fetcher"`
	Analyzer AnalyzerSettings `yaml:"analyzer"`
}

// GetConfigPath returns the path to a config file in the .newslens directory.
func GetConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// LoadSettings loads settings from the given path, or from the default
// location when path is empty. A missing default file falls back to the
// embedded settings; an explicit path must exist.
func LoadSettings(path string) (*Settings, error) {
	explicit := path != ""
	if path == "" {
		path = GetConfigPath("settings.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if explicit {
			return nil, fmt.Errorf("reading settings file %s: %w", path, err)
		}
		data = []byte(defaultSettings)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	applySettingsFloors(&settings)

	return &settings, nil
}

// applySettingsFloors fills zero values so a sparse settings file still
// yields a usable configuration.
func applySettingsFloors(s *Settings) {
	if s.Server.Port == 0 {
		s.Server.Port = 3000
	}
	if s.Server.OutputDirectory == "" {
		s.Server.OutputDirectory = "output"
	}
	if s.Server.ReputableSourcesPath == "" {
		s.Server.ReputableSourcesPath = "reputable_sources.json"
	}
	if s.Search.ActorID == "" {
		s.Search.ActorID = "nFJndFXA5zjCTuudP"
	}
	if s.Search.BaseURL == "" {
		s.Search.BaseURL = "https://api.apify.com"
	}
	if s.Search.TimeoutSeconds == 0 {
		s.Search.TimeoutSeconds = 180
	}
	if s.Fetcher.UserAgent == "" {
		s.Fetcher.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	if s.Fetcher.TimeoutSeconds == 0 {
		s.Fetcher.TimeoutSeconds = 10
	}
	if s.Fetcher.Language == "" {
		s.Fetcher.Language = "en"
	}
	if s.Analyzer.Model == "" {
		s.Analyzer.Model = "claude-sonnet-4-20250514"
	}
	if s.Analyzer.AnalysisMaxTokens == 0 {
		s.Analyzer.AnalysisMaxTokens = 16000
	}
	if s.Analyzer.ChunkMaxTokens == 0 {
		s.Analyzer.ChunkMaxTokens = 8192
	}
	if s.Analyzer.SummaryMaxTokens == 0 {
		s.Analyzer.SummaryMaxTokens = 512
	}
	if s.Analyzer.ChunkMaxChars == 0 {
		s.Analyzer.ChunkMaxChars = 800
	}
	if s.Analyzer.Temperature == 0 {
		s.Analyzer.Temperature = 0.2
	}
}

// ensureConfigExists writes the embedded settings to .newslens/ on first
// run so users have a file to customize.
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	settingsPath := GetConfigPath("settings.yaml")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		if err := os.WriteFile(settingsPath, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("writing settings.yaml: %w", err)
		}
	}

	return nil
}

// LoadReputableSources reads the optional {websites: [...]} file used to
// restrict searches to trusted domains. Callers treat a ConfigLoadError
// as a degrade-to-default signal, never a hard failure.
func LoadReputableSources(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}

	var doc struct {
		Websites []string `json:"websites"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}

	return doc.Websites, nil
}
