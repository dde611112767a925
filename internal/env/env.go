package env

import (
	"os"
	"time"
)

const (
	ListenAddr        = "PRESENCE_LISTEN_ADDR"
	HeartbeatInterval = "PRESENCE_HEARTBEAT_INTERVAL"
	RedisURL          = "PRESENCE_REDIS_URL"
	RedisPass         = "PRESENCE_REDIS_PASS"
	DynamoTable       = "PRESENCE_DYNAMO_TABLE"
	AWSRegion         = "AWS_REGION"
	AWSID             = "AWS_ID"
	AWSSecret         = "AWS_SECRET"
	AWSToken          = "AWS_TOKEN"
	DynamoDBEndpoint  = "DYNAMODB_ENDPOINT"
)

func Get(key string) string {
	return os.Getenv(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}

// Duration parses key as a time.Duration, falling back to defaultVal when the
// variable is unset or malformed.
func Duration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
