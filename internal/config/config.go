package config

import (
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	Port        string
	Environment string
	MongoURI    string
	FrontendURL string
	UploadDir   string

	// Local JWT auth
	JWTSecret string

	// Understanding provider (any OpenAI-compatible endpoint)
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string // text reasoning + ranking + article generation
	LLMVisionModel string // image understanding

	// Web search
	SearchProvider string // "tavily" or "serper"
	TavilyAPIKey   string
	SerperAPIKey   string

	// Pipeline tuning
	RecommendationCount int
	MaxAnalysisChars    int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8000"),
		Environment: getEnv("ENVIRONMENT", "development"),
		MongoURI:    getEnv("MONGODB_URI", ""),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		UploadDir:   getEnv("UPLOAD_DIR", "./uploads"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		LLMBaseURL:     getEnv("LLM_BASE_URL", "https://api.siliconflow.cn/v1"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "deepseek-ai/DeepSeek-V3"),
		LLMVisionModel: getEnv("LLM_VISION_MODEL", "deepseek-ai/DeepSeek-OCR"),

		SearchProvider: getEnv("SEARCH_PROVIDER", "tavily"),
		TavilyAPIKey:   getEnv("TAVILY_API_KEY", ""),
		SerperAPIKey:   getEnv("SERPER_API_KEY", ""),

		RecommendationCount: getIntEnv("RECOMMENDATION_COUNT", 10),
		MaxAnalysisChars:    getIntEnv("MAX_ANALYSIS_CHARS", 30000),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
