package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	StoreID                 string
	AuthSecret              string
	AccessTokenTTLMinutes   int
	ApprovalThresholdCents  int64
	OverdueDaysThreshold    int
	DefaultCreditLimitCents int64
	CreditReportTTLSeconds  int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	approvalThreshold, err := strconv.ParseInt(getEnv("APPROVAL_THRESHOLD_CENTS", "500000"), 10, 64)
	if err != nil || approvalThreshold < 1 {
		approvalThreshold = 500000
	}
	overdueDays, err := strconv.Atoi(getEnv("OVERDUE_DAYS_THRESHOLD", "90"))
	if err != nil || overdueDays < 1 {
		overdueDays = 90
	}
	// Zero means no house limit: clients without an explicit ceiling buy on
	// credit until an admin blocks them.
	defaultCreditLimit, err := strconv.ParseInt(getEnv("DEFAULT_CREDIT_LIMIT_CENTS", "0"), 10, 64)
	if err != nil || defaultCreditLimit < 0 {
		defaultCreditLimit = 0
	}
	reportTTL, err := strconv.Atoi(getEnv("CREDIT_REPORT_TTL_SECONDS", "300"))
	if err != nil || reportTTL < 1 {
		reportTTL = 300
	}

	cfg := Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		StoreID:                 getEnv("DEFAULT_STORE_ID", "main-store"),
		AuthSecret:              strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:   tokenTTL,
		ApprovalThresholdCents:  approvalThreshold,
		OverdueDaysThreshold:    overdueDays,
		DefaultCreditLimitCents: defaultCreditLimit,
		CreditReportTTLSeconds:  reportTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
