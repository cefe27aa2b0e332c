package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProviderFields holds the ManyChat account settings for one provider.
type ProviderFields struct {
	APIKey              string
	ReplyFieldIDs       [4]string
	EventIDField        string
	ConfirmationField   string
	AssignmentField     string
	ProcedureImageField string
}

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	OpenAIAPIKey             string
	OpenAIAssistantID        string
	OpenAITranscriptionModel string

	QuietPeriod     time.Duration
	FlushTimeout    time.Duration
	RunPollInterval time.Duration
	RunMaxPolls     int

	StepStore     string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleTokenFile    string
	GoogleCalendarIDs  []string
	GoogleSheetID      string
	ClinicEmail        string
	ClinicAddress      string
	Timezone           string

	ManyChatBaseURL        string
	ManyChatReplyFlow      string
	ManyChatImageFlow      string
	ManyChatAssignmentFlow string
	Marilia                ProviderFields
	Marina                 ProviderFields

	MediaDir            string
	MediaBucket         string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	AdminJWTSecret string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	imageField := getEnv("IMG_FLOW", "")
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		OpenAIAPIKey:             getEnv("OPENAI_API_KEY", getEnv("API_KEY", "")),
		OpenAIAssistantID:        getEnv("OPENAI_ASSISTANT_ID", getEnv("ASSISTANT", "")),
		OpenAITranscriptionModel: getEnv("OPENAI_TRANSCRIPTION_MODEL", "whisper-1"),

		QuietPeriod:     getEnvAsDuration("QUIET_PERIOD", 12*time.Second),
		FlushTimeout:    getEnvAsDuration("FLUSH_TIMEOUT", 5*time.Minute),
		RunPollInterval: getEnvAsDuration("RUN_POLL_INTERVAL", time.Second),
		RunMaxPolls:     getEnvAsInt("RUN_MAX_POLLS", 120),

		StepStore:     strings.ToLower(strings.TrimSpace(getEnv("STEP_STORE", "memory"))),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", getEnv("GGClient_ID", "")),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", getEnv("GGClient_KEY", "")),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", getEnv("GG_redirect", "")),
		GoogleTokenFile:    getEnv("GOOGLE_TOKEN_FILE", "token.json"),
		GoogleCalendarIDs:  getEnvAsList("GOOGLE_CALENDAR_IDS", []string{"primary"}),
		GoogleSheetID:      getEnv("GOOGLE_SHEET_ID", ""),
		ClinicEmail:        getEnv("CLINIC_EMAIL", "espacozaneti@gmail.com"),
		ClinicAddress:      getEnv("CLINIC_ADDRESS", "Presencialmente no Espaço Zaneti: Av Angélica, 688, São Paulo - SP."),
		Timezone:           getEnv("CLINIC_TIMEZONE", "America/Sao_Paulo"),

		ManyChatBaseURL:        getEnv("MANYCHAT_BASE_URL", "https://api.manychat.com"),
		ManyChatReplyFlow:      getEnv("MANYCHAT_REPLY_FLOW", "content20240914122016_929535"),
		ManyChatImageFlow:      getEnv("MANYCHAT_IMAGE_FLOW", "content20241123213917_598771"),
		ManyChatAssignmentFlow: getEnv("MANYCHAT_ASSIGNMENT_FLOW", "content20250114182302_569306"),
		Marilia: ProviderFields{
			APIKey:              getEnv("MC_KEY_1", ""),
			ReplyFieldIDs:       [4]string{getEnv("R1_ID_1", ""), getEnv("R2_ID_1", ""), getEnv("R3_ID_1", ""), getEnv("R4_ID_1", "")},
			EventIDField:        getEnv("MARILIA_EVENT_ID_FIELD", "12279897"),
			ConfirmationField:   getEnv("MARILIA_CONFIRMATION_FIELD", "12441777"),
			AssignmentField:     getEnv("ASSINGMENT2", ""),
			ProcedureImageField: getEnv("MARILIA_IMAGE_FIELD", imageField),
		},
		Marina: ProviderFields{
			APIKey:              getEnv("MC_KEY_2", ""),
			ReplyFieldIDs:       [4]string{getEnv("R1_ID_2", ""), getEnv("R2_ID_2", ""), getEnv("R3_ID_2", ""), getEnv("R4_ID_2", "")},
			EventIDField:        getEnv("MARINA_EVENT_ID_FIELD", "12213807"),
			ConfirmationField:   getEnv("MARINA_CONFIRMATION_FIELD", "12279844"),
			AssignmentField:     getEnv("ASSINGMENT", ""),
			ProcedureImageField: getEnv("MARINA_IMAGE_FIELD", imageField),
		},

		MediaDir:            getEnv("MEDIA_DIR", os.TempDir()),
		MediaBucket:         getEnv("MEDIA_BUCKET", ""),
		AWSRegion:           getEnv("AWS_REGION", "sa-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
