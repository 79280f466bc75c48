package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env             string
	ServerAddress   string
	PublicBaseURL   string
	DataDir         string
	UploadDir       string
	StagingDir      string
	MaxUploadSizeMB int64

	// STORE_BACKEND: file | mongo | firestore
	StoreBackend string
	MongoURI     string
	MongoDB      string

	// AUTH_MODE: firebase | local
	AuthMode                string
	FirebaseProjectID       string
	FirebaseCredentialsJSON string
	JWTSecret               string
	JWTExpiration           time.Duration

	// PHOTO_BACKEND: local | gcs
	PhotoBackend string
	GCSBucket    string

	// CLASSIFIER: stub | gemini
	Classifier   string
	GeminiAPIKey string
	GeminiModel  string
	// PHOTO_SCREENING runs Vision SafeSearch before classification.
	PhotoScreening bool

	SendGridAPIKey  string
	NotifyFromEmail string
	AdminEmail      string
	RecaptchaSecret string

	SubmitRatePerSec int
	SubmitBurst      int
	RequestTimeout   time.Duration
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn(".env load warning", slog.Any("error", err))
	}

	cfg := &Config{
		Env:                     getEnv("ENV", "local"),
		ServerAddress:           getEnv("SERVER_ADDRESS", ":8000"),
		PublicBaseURL:           strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8000"), "/"),
		DataDir:                 getEnv("DATA_DIR", "./data"),
		UploadDir:               getEnv("UPLOAD_DIR", "./uploads"),
		StagingDir:              getEnv("STAGING_DIR", os.TempDir()),
		MaxUploadSizeMB:         int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 10)),
		StoreBackend:            getEnv("STORE_BACKEND", "file"),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDB:                 getEnv("MONGO_DB", "civichub"),
		AuthMode:                getEnv("AUTH_MODE", "firebase"),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),
		JWTSecret:               getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTExpiration:           getEnvDuration("JWT_EXPIRATION", 24*time.Hour),
		PhotoBackend:            getEnv("PHOTO_BACKEND", "local"),
		GCSBucket:               getEnv("GCS_BUCKET", ""),
		Classifier:              getEnv("CLASSIFIER", "stub"),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiModel:             getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		PhotoScreening:          getEnvBool("PHOTO_SCREENING", false),
		SendGridAPIKey:          getEnv("SENDGRID_API_KEY", ""),
		NotifyFromEmail:         getEnv("NOTIFY_FROM_EMAIL", ""),
		AdminEmail:              getEnv("ADMIN_EMAIL", ""),
		RecaptchaSecret:         getEnv("RECAPTCHA_SECRET", ""),
		SubmitRatePerSec:        getEnvInt("SUBMIT_RATE_PER_SEC", 1),
		SubmitBurst:             getEnvInt("SUBMIT_BURST", 5),
		RequestTimeout:          getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "file":
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("MONGO_URI required when STORE_BACKEND=mongo")
		}
	case "firestore":
		if c.AuthMode != "firebase" {
			return errors.New("STORE_BACKEND=firestore requires AUTH_MODE=firebase")
		}
	default:
		return errors.New("STORE_BACKEND must be one of file, mongo, firestore")
	}

	switch c.AuthMode {
	case "firebase", "local":
	default:
		return errors.New("AUTH_MODE must be firebase or local")
	}

	switch c.PhotoBackend {
	case "local":
	case "gcs":
		if c.GCSBucket == "" {
			return errors.New("GCS_BUCKET required when PHOTO_BACKEND=gcs")
		}
	default:
		return errors.New("PHOTO_BACKEND must be local or gcs")
	}

	switch c.Classifier {
	case "stub":
	case "gemini":
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY required when CLASSIFIER=gemini")
		}
	default:
		return errors.New("CLASSIFIER must be stub or gemini")
	}

	if c.AuthMode == "local" && len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters when AUTH_MODE=local")
	}

	if c.MaxUploadSizeMB <= 0 {
		return errors.New("MAX_UPLOAD_SIZE_MB must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
