package env

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadEnv loads the given dotenv files (".env" when none are given) into the
// process environment. Existing variables are never overridden. It reports
// whether any file was loaded.
func LoadEnv(files ...string) bool {
	if err := godotenv.Load(files...); err != nil {
		return false
	}
	return true
}

func GetEnv(key string, fallback string) string {
	if value, exist := os.LookupEnv(key); exist {
		return value
	}
	return fallback
}

func GetBool(key string, fallback bool) bool {
	value, exist := os.LookupEnv(key)
	if !exist {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}
