package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	DBDriver string
	DBDSN    string

	BlobBasePath string

	// Admin seed endpoint secret: bcrypt hash preferred, plain value
	// accepted for local development.
	AdminSecretHash string
	AdminSecret     string

	CORSOrigins []string

	Institution    string
	OCRLang        string
	BannerTimeout  time.Duration
	MaxUploadBytes int64
}

func FromEnv() Config {
	return Config{
		HTTPAddr:        envOr("HTTP_ADDR", ":4001"),
		DBDriver:        envOr("DB_DRIVER", "sqlite"),
		DBDSN:           envOr("DB_DSN", ""),
		BlobBasePath:    envOr("BLOB_BASE_PATH", "./data"),
		AdminSecretHash: os.Getenv("ADMIN_SECRET_HASH"),
		AdminSecret:     envOr("ADMIN_SECRET", "dev-secret"),
		CORSOrigins:     csvOr("CORS_ORIGINS", "*"),
		Institution:     envOr("INSTITUTION", "K. RAMAKRISHNAN COLLEGE OF ENGINEERING"),
		OCRLang:         envOr("OCR_LANG", "eng"),
		BannerTimeout:   msOr("BANNER_FETCH_TIMEOUT_MS", 5000),
		MaxUploadBytes:  int64Or("MAX_UPLOAD_BYTES", 32<<20),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func msOr(k string, def int) time.Duration {
	if v, err := strconv.Atoi(os.Getenv(k)); err == nil && v > 0 {
		return time.Duration(v) * time.Millisecond
	}
	return time.Duration(def) * time.Millisecond
}

func int64Or(k string, def int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(k), 10, 64); err == nil && v > 0 {
		return v
	}
	return def
}
