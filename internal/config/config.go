package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Chain struct {
		RPC             string `yaml:"rpc"`
		RegistryAddress string `yaml:"registry_address"`
		FaithToken      string `yaml:"faith_token_address"`
	} `yaml:"chain"`
	Moltbook struct {
		BaseURL      string   `yaml:"base_url"`
		APIKey       string   `yaml:"api_key"`
		Submolts     []string `yaml:"submolts"`
		PinnedPostID string   `yaml:"pinned_post_id"`
	} `yaml:"moltbook"`
	Agent struct {
		PostingEnabled         bool     `yaml:"posting_enabled"`
		DailyCommentLimit      int      `yaml:"daily_comment_limit"`
		CommentCooldownSeconds int      `yaml:"comment_cooldown_seconds"`
		GenCooldownSeconds     int      `yaml:"generation_cooldown_seconds"`
		PostIntervalMinutes    int      `yaml:"post_interval_minutes"`
		EngageIntervalMinutes  int      `yaml:"engage_interval_minutes"`
		ResetCheckSeconds      int      `yaml:"reset_check_seconds"`
		FeedScanLimit          int      `yaml:"feed_scan_limit"`
		CommentsPerCycle       int      `yaml:"comments_per_cycle"`
		SweepDelaySeconds      int      `yaml:"sweep_delay_seconds"`
		Titles                 []string `yaml:"titles"`
	} `yaml:"agent"`
	Persona struct {
		Prompt     string `yaml:"prompt"`
		PromptPath string `yaml:"prompt_path"`
		Narrative  string `yaml:"narrative"`
	} `yaml:"persona"`
	LLM struct {
		Provider        string  `yaml:"provider"`
		Model           string  `yaml:"model"`
		BaseURL         string  `yaml:"base_url"`
		APIKey          string  `yaml:"api_key"`
		Temperature     float64 `yaml:"temperature"`
		MaxOutputTokens int     `yaml:"max_output_tokens"`
		TimeoutSeconds  int     `yaml:"timeout_seconds"`
	} `yaml:"llm"`
}

func Default() Config {
	cfg := Config{}
	cfg.Chain.RPC = "wss://testnet-rpc.monad.xyz"
	cfg.Chain.RegistryAddress = ""
	cfg.Chain.FaithToken = ""
	cfg.Moltbook.BaseURL = "https://www.moltbook.com/api/v1"
	cfg.Moltbook.Submolts = []string{"prophecy", "agents"}
	cfg.Agent.PostingEnabled = true
	cfg.Agent.DailyCommentLimit = 18
	cfg.Agent.CommentCooldownSeconds = 65
	cfg.Agent.GenCooldownSeconds = 5
	cfg.Agent.PostIntervalMinutes = 120
	cfg.Agent.EngageIntervalMinutes = 5
	cfg.Agent.ResetCheckSeconds = 60
	cfg.Agent.FeedScanLimit = 10
	cfg.Agent.CommentsPerCycle = 3
	cfg.Agent.SweepDelaySeconds = 70
	cfg.Agent.Titles = []string{
		"The Ledger Remembers",
		"A Word for the Unconverted",
		"On the Stillness Between Blocks",
		"The Congregation Grows",
	}
	cfg.LLM.Provider = "gemini"
	cfg.LLM.Temperature = 0.8
	cfg.LLM.MaxOutputTokens = 512
	cfg.LLM.TimeoutSeconds = 30
	return cfg
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Write(path string, cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".prophet", "config.yaml"), nil
}

// LoadDotenv pulls a .env file from the working directory into the process
// environment before overrides run. A missing file is not an error.
func LoadDotenv() {
	_ = godotenv.Load()
}

func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MONAD_RPC_URL")); v != "" {
		cfg.Chain.RPC = v
	}
	if v := strings.TrimSpace(os.Getenv("BELIEF_REGISTRY_ADDRESS")); v != "" {
		cfg.Chain.RegistryAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("FAITH_TOKEN_ADDRESS")); v != "" {
		cfg.Chain.FaithToken = v
	}
	if v := strings.TrimSpace(os.Getenv("MOLTBOOK_BASE_URL")); v != "" {
		cfg.Moltbook.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MOLTBOOK_API_KEY")); v != "" {
		cfg.Moltbook.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("MOLTBOOK_PINNED_POST_ID")); v != "" {
		cfg.Moltbook.PinnedPostID = v
	}
	if v := strings.TrimSpace(os.Getenv("PROPHET_POSTING_ENABLED")); v != "" {
		if value, err := strconv.ParseBool(v); err == nil {
			cfg.Agent.PostingEnabled = value
		}
	}
	if v := strings.TrimSpace(os.Getenv("PROPHET_PROMPT_PATH")); v != "" {
		cfg.Persona.PromptPath = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_PROVIDER")); v != "" {
		cfg.LLM.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_MODEL")); v != "" {
		cfg.LLM.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_BASE_URL")); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_API_KEY")); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_TEMPERATURE")); v != "" {
		if value, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.Temperature = value
		}
	}
	if v := strings.TrimSpace(os.Getenv("LLM_MAX_TOKENS")); v != "" {
		if value, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxOutputTokens = value
		}
	}
	if v := strings.TrimSpace(os.Getenv("LLM_TIMEOUT_SECONDS")); v != "" {
		if value, err := strconv.Atoi(v); err == nil {
			cfg.LLM.TimeoutSeconds = value
		}
	}
}

// PersonaPrompt resolves the persona text, preferring the inline prompt and
// falling back to prompt_path.
func (c Config) PersonaPrompt() (string, error) {
	if text := strings.TrimSpace(c.Persona.Prompt); text != "" {
		return text, nil
	}
	path := strings.TrimSpace(c.Persona.PromptPath)
	if path == "" {
		return "", fmt.Errorf("persona prompt missing: set persona.prompt or persona.prompt_path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("persona prompt unreadable: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", fmt.Errorf("persona prompt file %s is empty", path)
	}
	return text, nil
}

// Validate checks the values the agent cannot run without. Errors name the
// specific missing key so startup failures are actionable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Chain.RPC) == "" {
		return fmt.Errorf("chain.rpc is required (MONAD_RPC_URL)")
	}
	if strings.TrimSpace(c.Chain.RegistryAddress) == "" {
		return fmt.Errorf("chain.registry_address is required (BELIEF_REGISTRY_ADDRESS)")
	}
	if strings.TrimSpace(c.Moltbook.APIKey) == "" {
		return fmt.Errorf("moltbook.api_key is required (MOLTBOOK_API_KEY)")
	}
	if len(c.Moltbook.Submolts) == 0 {
		return fmt.Errorf("moltbook.submolts must list at least one channel")
	}
	if _, err := c.PersonaPrompt(); err != nil {
		return err
	}
	if c.Agent.DailyCommentLimit <= 0 {
		return fmt.Errorf("agent.daily_comment_limit must be positive")
	}
	return nil
}
