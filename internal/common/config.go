package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Storage  StorageConfig  `toml:"storage"`
	Logging  LoggingConfig  `toml:"logging"`
	Gemini   GeminiConfig   `toml:"gemini"`
	Prompts  PromptsConfig  `toml:"prompts"`
	Download DownloadConfig `toml:"download"`
	S3       S3Config       `toml:"s3"`
	Drive    DriveConfig    `toml:"drive"`
	Audio    AudioConfig    `toml:"audio"`
}

type ServerConfig struct {
	Name                 string   `toml:"name"`
	Environment          string   `toml:"environment"`
	Host                 string   `toml:"host"`
	Port                 int      `toml:"port"`
	ReadTimeout          int      `toml:"read_timeout"`
	WriteTimeout         int      `toml:"write_timeout"`
	AllowedOrigins       []string `toml:"allowed_origins"`
	RedactInternalErrors bool     `toml:"redact_internal_errors"`
}

type AuthConfig struct {
	HeaderName string   `toml:"header_name"`
	APIKeys    []string `toml:"api_keys"`
}

type StorageConfig struct {
	DatabasePath  string `toml:"database_path"`
	RetentionDays int    `toml:"retention_days"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Output     string `toml:"output"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
}

type GeminiConfig struct {
	APIKey              string `toml:"api_key"`
	AnalysisModel       string `toml:"analysis_model"`
	TranscriptionModel  string `toml:"transcription_model"`
	TranscriptionPrompt string `toml:"transcription_prompt"`
	Timeout             int    `toml:"timeout"`
}

// PromptsConfig points at optional template overrides. Empty paths use the
// embedded defaults.
type PromptsConfig struct {
	SystemPromptFile   string `toml:"system_prompt_file"`
	SprintTemplateFile string `toml:"sprint_template_file"`
}

type DownloadConfig struct {
	TranscriptTimeout int   `toml:"transcript_timeout"`
	AudioTimeout      int   `toml:"audio_timeout"`
	MaxBytes          int64 `toml:"max_bytes"`
}

type S3Config struct {
	Region           string `toml:"region"`
	Bucket           string `toml:"bucket"`
	AccessKeyID      string `toml:"access_key_id"`
	SecretAccessKey  string `toml:"secret_access_key"`
	Endpoint         string `toml:"endpoint"`
	TranscriptPrefix string `toml:"transcript_prefix"`
	PresignExpiry    int    `toml:"presign_expiry_hours"`
}

type DriveConfig struct {
	CredentialsFile  string `toml:"credentials_file"`
	TokenFile        string `toml:"token_file"`
	DownloadDir      string `toml:"download_dir"`
	RecordingsFolder string `toml:"recordings_folder"`
	Timeout          int    `toml:"timeout"`
}

type AudioConfig struct {
	FFmpegPath string `toml:"ffmpeg_path"`
	Bitrate    string `toml:"bitrate"`
}

const defaultTranscriptionPrompt = "The given audio is in hinglish with a mix of hindi and english. " +
	"Your task it to write everything in Hinglish format with latin script."

func DefaultConfig() *Config {
	execPath, _ := os.Executable()
	execDir := filepath.Dir(execPath)
	execName := filepath.Base(execPath)
	execName = execName[:len(execName)-len(filepath.Ext(execName))]

	return &Config{
		Server: ServerConfig{
			Name:           execName,
			Environment:    "development",
			Port:           8080,
			ReadTimeout:    30,
			WriteTimeout:   300,
			AllowedOrigins: []string{"*"},
		},
		Auth: AuthConfig{
			HeaderName: "x-api-key",
		},
		Storage: StorageConfig{
			DatabasePath:  filepath.Join(execDir, "data", execName+".db"),
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "both",
			MaxSize:    100,
			MaxBackups: 3,
		},
		Gemini: GeminiConfig{
			AnalysisModel:       "gemini-2.5-pro",
			TranscriptionModel:  "gemini-2.0-flash",
			TranscriptionPrompt: defaultTranscriptionPrompt,
			Timeout:             300,
		},
		Download: DownloadConfig{
			TranscriptTimeout: 30,
			AudioTimeout:      60,
			MaxBytes:          50 * 1024 * 1024,
		},
		S3: S3Config{
			Region:           "us-west-2",
			TranscriptPrefix: "transcripts/",
			PresignExpiry:    7 * 24,
		},
		Drive: DriveConfig{
			CredentialsFile:  "credentials.json",
			TokenFile:        "token.json",
			DownloadDir:      "downloads",
			RecordingsFolder: "Meet Recordings",
			Timeout:          300,
		},
		Audio: AudioConfig{
			FFmpegPath: "ffmpeg",
			Bitrate:    "320k",
		},
	}
}

// LoadConfig applies, in order: defaults, the TOML file, a .env file and the
// process environment.
func LoadConfig(configFile string) (*Config, error) {
	config := DefaultConfig()

	if configFile == "" {
		configFile = detectConfigFile()
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// A missing .env is normal in production.
	_ = godotenv.Load()

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func detectConfigFile() string {
	execPath, _ := os.Executable()
	execDir := filepath.Dir(execPath)
	execName := filepath.Base(execPath)
	execName = execName[:len(execName)-len(filepath.Ext(execName))]

	possiblePaths := []string{
		filepath.Join(execDir, execName+".toml"),
		filepath.Join(execDir, "config.toml"),
		"config.toml",
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func applyEnvOverrides(config *Config) {
	if keys := os.Getenv("VALID_API_KEYS"); keys != "" {
		config.Auth.APIKeys = SplitList(keys)
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		config.Storage.DatabasePath = dbPath
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}
	if logOutput := os.Getenv("LOG_OUTPUT"); logOutput != "" {
		config.Logging.Output = logOutput
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		if portNum, err := strconv.Atoi(port); err == nil {
			config.Server.Port = portNum
		}
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if key := os.Getenv("GOOGLE_GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if model := os.Getenv("GEMINI_ANALYSIS_MODEL"); model != "" {
		config.Gemini.AnalysisModel = model
	}
	if model := os.Getenv("GEMINI_TRANSCRIPTION_MODEL"); model != "" {
		config.Gemini.TranscriptionModel = model
	}

	if id := os.Getenv("AWS_ACCESS_KEY_ID"); id != "" {
		config.S3.AccessKeyID = id
	}
	if secret := os.Getenv("AWS_SECRET_ACCESS_KEY"); secret != "" {
		config.S3.SecretAccessKey = secret
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.S3.Region = region
	}
	if bucket := os.Getenv("S3_BUCKET_NAME"); bucket != "" {
		config.S3.Bucket = bucket
	}
	if endpoint := os.Getenv("S3_ENDPOINT"); endpoint != "" {
		config.S3.Endpoint = endpoint
	}

	if creds := os.Getenv("GOOGLE_DRIVE_CREDENTIALS_FILE"); creds != "" {
		config.Drive.CredentialsFile = creds
	}
	if ffmpeg, ok := os.LookupEnv("FFMPEG_PATH"); ok {
		config.Audio.FFmpegPath = ffmpeg
	}
}

func (c *Config) Validate() error {
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database_path is required")
	}

	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Auth.HeaderName == "" {
		c.Auth.HeaderName = "x-api-key"
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal", "panic"}
	if !contains(validLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validOutputs := []string{"console", "file", "both"}
	if !contains(validOutputs, c.Logging.Output) {
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	if c.Download.TranscriptTimeout <= 0 || c.Download.AudioTimeout <= 0 {
		return fmt.Errorf("download timeouts must be positive")
	}
	if c.S3.PresignExpiry <= 0 {
		return fmt.Errorf("s3 presign_expiry_hours must be positive")
	}

	return nil
}

// HasAPIKeys reports whether at least one non-empty key is configured.
func (c *Config) HasAPIKeys() bool {
	for _, k := range c.Auth.APIKeys {
		if strings.TrimSpace(k) != "" {
			return true
		}
	}
	return false
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// SplitList splits a comma separated value, dropping blanks.
func SplitList(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
