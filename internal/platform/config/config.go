package config

import (
	"os"
	"strconv"
	"strings"
)

// Config captures everything the server needs at construction time. Paths and
// limits are resolved here once; components receive them explicitly instead of
// reading process-wide settings at call time.
type Config struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  []string
	KafkaTopic    string
	JWTSigningKey string

	// DataDir holds templates, signatures, QR codes and generated documents.
	DataDir            string
	DefaultTemplateDir string

	VerifyBaseURL string

	TemplateMaxBytes  int64
	SignatureMaxBytes int64

	Office Office
}

// Office is the fixed metadata rendered onto every certificate.
type Office struct {
	Barangay string
	City     string
	Captain  string
	Postal   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:               getenv("BRGYCERT_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		KafkaTopic:         getenv("KAFKA_AUDIT_TOPIC", "brgycert.audit"),
		JWTSigningKey:      getenv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		DataDir:            getenv("BRGYCERT_DATA_DIR", "data"),
		DefaultTemplateDir: getenv("BRGYCERT_DEFAULT_TEMPLATE_DIR", "templates/defaults"),
		VerifyBaseURL:      getenv("BRGYCERT_VERIFY_BASE_URL", "http://localhost:8080"),
		TemplateMaxBytes:   getenvInt64("BRGYCERT_TEMPLATE_MAX_BYTES", 5<<20),
		SignatureMaxBytes:  getenvInt64("BRGYCERT_SIGNATURE_MAX_BYTES", 2<<20),
		Office: Office{
			Barangay: getenv("BRGYCERT_BARANGAY", "Longos"),
			City:     getenv("BRGYCERT_CITY", "Malabon City"),
			Captain:  getenv("BRGYCERT_CAPTAIN", "Maria Lourdes Casareo"),
			Postal:   getenv("BRGYCERT_POSTAL", "1472"),
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
