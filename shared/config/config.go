package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	// Application
	AppEnv string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret      string
	JWTExpireHours int

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Access Gate
	AttemptStore          string
	SecurityMaxAttempts   int
	SecurityBlockMinutes  int
	LoginMaxAttempts      int
	LoginBlockMinutes     int
	PortalSessionMinutes  int
	PortalCookieName      string
	CookieSecure          bool
	AttemptCleanupMinutes int

	// Email Configuration
	EmailFrom     string
	EmailFromName string
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SMTPUseTLS    bool

	// Web Push
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	PushTTLSeconds  int

	// Digest
	DigestEnabled     bool
	DigestCron        string
	DigestWindowHours int

	// Frontend URL
	FrontendURL string

	// API Gateway
	APIGatewayURL        string
	GatewayMaxRequests   int
	GatewayWindowSeconds int
	GatewayBlockMinutes  int
	GatewayLimiterStore  string

	// Service URLs
	AuthServiceURL         string
	NotificationServiceURL string
	InternalAPIToken       string

	// Seed admin
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

var cfg *Config

// LoadConfig loads configuration from environment variables
func LoadConfig() {
	envPaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	envLoaded := false
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			zap.L().Info("environment loaded", zap.String("path", path))
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		zap.L().Warn(".env file not found, using system environment variables")
	}

	cfg = &Config{
		AppEnv: getEnv("APP_ENV", "development"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "familyportal"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// JWT
		JWTSecret:      getEnv("JWT_SECRET", "change-this-secret"),
		JWTExpireHours: getEnvAsInt("JWT_EXPIRE_HOURS", 72),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Access Gate
		AttemptStore:          strings.ToLower(getEnv("ATTEMPT_STORE", "redis")),
		SecurityMaxAttempts:   getEnvAsInt("SECURITY_MAX_ATTEMPTS", 3),
		SecurityBlockMinutes:  getEnvAsInt("SECURITY_BLOCK_MINUTES", 15),
		LoginMaxAttempts:      getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginBlockMinutes:     getEnvAsInt("LOGIN_BLOCK_MINUTES", 15),
		PortalSessionMinutes:  getEnvAsInt("PORTAL_SESSION_MINUTES", 30),
		PortalCookieName:      getEnv("PORTAL_COOKIE_NAME", "portal_verified"),
		CookieSecure:          getEnvAsBool("COOKIE_SECURE", false),
		AttemptCleanupMinutes: getEnvAsInt("ATTEMPT_CLEANUP_MINUTES", 30),

		// Email Configuration
		EmailFrom:     getEnv("EMAIL_FROM", "noreply@familyportal.local"),
		EmailFromName: getEnv("EMAIL_FROM_NAME", "Family Portal"),
		SMTPHost:      getEnv("SMTP_HOST", "smtp.example.com"),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:    getEnvAsBool("SMTP_USE_TLS", false),

		// Web Push
		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@familyportal.local"),
		PushTTLSeconds:  getEnvAsInt("PUSH_TTL_SECONDS", 86400),

		// Digest
		DigestEnabled:     getEnvAsBool("DIGEST_ENABLED", true),
		DigestCron:        getEnv("DIGEST_CRON", "0 7 * * *"),
		DigestWindowHours: getEnvAsInt("DIGEST_WINDOW_HOURS", 24),

		// Frontend URL
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),

		// API Gateway
		APIGatewayURL:        getEnv("API_GATEWAY_URL", "http://localhost:8000"),
		GatewayMaxRequests:   getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 300),
		GatewayWindowSeconds: getEnvAsInt("RATE_LIMIT_TIME_WINDOW_SECONDS", 60),
		GatewayBlockMinutes:  getEnvAsInt("RATE_LIMIT_BLOCK_DURATION_MINUTES", 5),
		GatewayLimiterStore:  strings.ToLower(getEnv("RATE_LIMIT_STORE", "memory")),

		// Service URLs
		AuthServiceURL:         getEnv("AUTH_SERVICE_URL", "http://localhost:8001"),
		NotificationServiceURL: getEnv("NOTIFICATION_SERVICE_URL", "http://localhost:8004"),
		InternalAPIToken:       getEnv("INTERNAL_API_TOKEN", ""),

		// Seed admin
		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@familyportal.local"),
		AdminPassword: getEnv("ADMIN_PASSWORD", "change-me-please"),
		AdminName:     getEnv("ADMIN_NAME", "Portal Admin"),
	}

	zap.L().Info("configuration loaded", zap.String("env", cfg.AppEnv))
}

// GetConfig returns the current configuration
func GetConfig() *Config {
	if cfg == nil {
		LoadConfig()
	}
	return cfg
}

// SetConfig replaces the current configuration. Used by tests and tools that
// build a Config by hand.
func SetConfig(c *Config) {
	cfg = c
}

// ServicePort returns the port component of a service URL such as
// "http://localhost:8001".
func ServicePort(serviceURL, fallback string) string {
	idx := strings.LastIndex(serviceURL, ":")
	if idx < 0 || idx == len(serviceURL)-1 {
		return fallback
	}
	port := strings.TrimRight(serviceURL[idx+1:], "/")
	if _, err := strconv.Atoi(port); err != nil {
		return fallback
	}
	return port
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer with default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		zap.L().Warn("invalid integer in environment, using default",
			zap.String("key", key), zap.String("value", value), zap.Int("default", defaultValue))
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
