package config

import (
	"os"
	"strconv"
	"time"
)

const DATABASE_TYPE = "SFLOW_DATABASE_TYPE"
const DATABASE_URL = "SFLOW_DATABASE_URL"
const DATABASE_SQLLITE_FILE_NAME = "SFLOW_DATABASE_SQLLITE_FILE_NAME"
const SERVER_WEB_PORT = "SFLOW_SERVER_WEB_PORT"
const QUEUE_TYPE = "SFLOW_QUEUE_TYPE"
const QUEUE_NAME = "SFLOW_QUEUE_NAME"
const REDIS_URL = "SFLOW_REDIS_URL"
const QUEUE_POLL_INTERVAL = "SFLOW_QUEUE_POLL_INTERVAL"
const QUEUE_VISIBILITY_TIMEOUT = "SFLOW_QUEUE_VISIBILITY_TIMEOUT" //how long a received message stays hidden before redelivery
const QUEUE_MAX_RECEIVE_COUNT = "SFLOW_QUEUE_MAX_RECEIVE_COUNT"   //receives before a message is dead lettered
const QUEUE_BATCH_SIZE = "SFLOW_QUEUE_BATCH_SIZE"                 //number of messages to pull from the queue at a time
const CONSUMER_SIZE = "SFLOW_CONSUMER_SIZE"                       //number of workers to run ie the parallel nature of the steps
const RETRY_INTERVAL_MIN = "SFLOW_RETRY_INTERVAL_MIN"
const RETRY_INTERVAL_MAX = "SFLOW_RETRY_INTERVAL_MAX"
const REPAIR_INTERVAL = "SFLOW_REPAIR_INTERVAL"
const REPAIR_AFTER = "SFLOW_REPAIR_AFTER"
const WORKFLOWS_FILE = "SFLOW_WORKFLOWS_FILE"
const LOG_STEP_DELAY = "SFLOW_LOG_STEP_DELAY"
const EXECUTOR_NAME = "SFLOW_EXECUTOR_NAME"
const LOG_LEVEL = "SFLOW_LOG_LEVEL"

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLLITE = "SQLLITE"

const QUEUE_TYPE_DATABASE = "DATABASE"
const QUEUE_TYPE_REDIS = "REDIS"
const QUEUE_TYPE_MEMORY = "MEMORY"

func GetSystemSettingInteger(settingKey string) int {
	val := GetSystemSettingString(settingKey)
	if val != "" {
		intValue, _ := strconv.Atoi(val)
		return intValue
	}
	return 0
}

// GetSystemSettingDuration parses the setting as a time.Duration, returning 0 when unset or invalid.
func GetSystemSettingDuration(settingKey string) time.Duration {
	val := GetSystemSettingString(settingKey)
	if val == "" {
		return 0
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0
	}
	return d
}

func GetSystemSettingString(settingKey string) string {
	val := os.Getenv(settingKey)
	if val != "" {
		return val
	}
	switch settingKey {
	case SERVER_WEB_PORT:
		return "8080"
	case DATABASE_SQLLITE_FILE_NAME:
		return "./sflow.db"
	case QUEUE_TYPE:
		return QUEUE_TYPE_DATABASE
	case QUEUE_NAME:
		return "steps"
	case REDIS_URL:
		return "redis://localhost:6379/0"
	case QUEUE_POLL_INTERVAL:
		return "1s"
	case QUEUE_VISIBILITY_TIMEOUT:
		return "30s"
	case QUEUE_MAX_RECEIVE_COUNT:
		return "5"
	case QUEUE_BATCH_SIZE:
		return "10"
	case CONSUMER_SIZE:
		return "5"
	case RETRY_INTERVAL_MIN:
		return "1s"
	case RETRY_INTERVAL_MAX:
		return "30s"
	case REPAIR_INTERVAL:
		return "60s"
	case REPAIR_AFTER:
		return "5m"
	case LOG_STEP_DELAY:
		return "200ms"
	case LOG_LEVEL:
		return "INFO"
	}
	return ""
}
