package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Embedding struct {
		Provider   string `yaml:"provider"`
		BaseURL    string `yaml:"base_url"`
		Model      string `yaml:"model"`
		Dimensions int    `yaml:"dimensions"`
		// Settings field holding the sealed provider key, openai only.
		APIKeyName string `yaml:"api_key_name"`
	} `yaml:"embedding"`

	Database struct {
		URL           string        `yaml:"url"`
		ChunkTable    string        `yaml:"chunk_table"`
		DocumentTable string        `yaml:"document_table"`
		VectorDim     int           `yaml:"vector_dim"`
		MetaCacheTTL  time.Duration `yaml:"meta_cache_ttl"`
		AutoMigrate   bool          `yaml:"auto_migrate"`
	} `yaml:"database"`

	LawAPI struct {
		BaseURL        string        `yaml:"base_url"`
		SearchPath     string        `yaml:"search_path"`
		FetchPath      string        `yaml:"fetch_path"`
		CredentialName string        `yaml:"credential_name"`
		CallTimeout    time.Duration `yaml:"call_timeout"`
		Workers        int           `yaml:"workers"`
		RateLimit      float64       `yaml:"rate_limit"`
		SourceTypes    []string      `yaml:"source_types"`
	} `yaml:"law_api"`

	Secrets struct {
		KeyPath      string `yaml:"key_path"`
		SettingsPath string `yaml:"settings_path"`
	} `yaml:"secrets"`

	Retrieval struct {
		Budget            int `yaml:"budget"`
		TopK              int `yaml:"top_k"`
		ResultCap         int `yaml:"result_cap"`
		MaxSearchKeywords int `yaml:"max_search_keywords"`
		ExcerptRunes      int `yaml:"excerpt_runes"`
	} `yaml:"retrieval"`

	Classifier struct {
		KeywordsPath string `yaml:"keywords_path"`
	} `yaml:"classifier"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	UI struct {
		Streaming bool `yaml:"streaming"`
	} `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/cpla/config.yaml"),
			"/etc/cpla/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "mistral"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.3
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "ollama"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "nomic-embed-text:latest"
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == "ollama" {
		config.Embedding.BaseURL = config.LLM.BaseURL
	}
	if config.Embedding.Dimensions == 0 {
		config.Embedding.Dimensions = 768
	}
	if config.Embedding.APIKeyName == "" {
		config.Embedding.APIKeyName = "openai_api_key"
	}

	if config.Database.ChunkTable == "" {
		config.Database.ChunkTable = "document_chunks"
	}
	if config.Database.DocumentTable == "" {
		config.Database.DocumentTable = "documents"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = config.Embedding.Dimensions
	}
	if config.Database.MetaCacheTTL == 0 {
		config.Database.MetaCacheTTL = 10 * time.Minute
	}

	if config.LawAPI.BaseURL == "" {
		config.LawAPI.BaseURL = "https://www.law.go.kr"
	}
	if config.LawAPI.SearchPath == "" {
		config.LawAPI.SearchPath = "/DRF/lawSearch.do"
	}
	if config.LawAPI.FetchPath == "" {
		config.LawAPI.FetchPath = "/DRF/lawService.do"
	}
	if config.LawAPI.CredentialName == "" {
		config.LawAPI.CredentialName = "law_api_oc"
	}
	if config.LawAPI.CallTimeout == 0 {
		config.LawAPI.CallTimeout = 8 * time.Second
	}
	if config.LawAPI.Workers == 0 {
		config.LawAPI.Workers = 4
	}
	if config.LawAPI.RateLimit == 0 {
		config.LawAPI.RateLimit = 5.0
	}
	if len(config.LawAPI.SourceTypes) == 0 {
		config.LawAPI.SourceTypes = []string{"prec"}
	}

	if config.Secrets.KeyPath == "" {
		config.Secrets.KeyPath = "secrets/master.key"
	}
	if config.Secrets.SettingsPath == "" {
		config.Secrets.SettingsPath = "secrets/settings.json"
	}

	if config.Retrieval.Budget == 0 {
		config.Retrieval.Budget = 6000
	}
	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 5
	}
	if config.Retrieval.ResultCap == 0 {
		config.Retrieval.ResultCap = 5
	}
	if config.Retrieval.MaxSearchKeywords == 0 {
		config.Retrieval.MaxSearchKeywords = 1
	}
	if config.Retrieval.ExcerptRunes == 0 {
		config.Retrieval.ExcerptRunes = 1200
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if lawURL := os.Getenv("LAW_API_BASE_URL"); lawURL != "" {
		config.LawAPI.BaseURL = lawURL
	}
	if keyPath := os.Getenv("SECRETS_KEY_PATH"); keyPath != "" {
		config.Secrets.KeyPath = keyPath
	}
	if settingsPath := os.Getenv("SECRETS_SETTINGS_PATH"); settingsPath != "" {
		config.Secrets.SettingsPath = settingsPath
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
}
