package logger

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

type level string

const (
	levelInfo  level = "info"
	levelWarn  level = "warn"
	levelError level = "error"
)

var (
	mu  sync.Mutex
	out = os.Stdout
)

// Init routes the stdlib logger through the same stream so third-party
// log output does not interleave mid-line with our JSON events.
func Init() {
	log.SetOutput(out)
	log.SetFlags(0)
}

func emit(lvl level, event string, fields map[string]interface{}) {
	entry := make(map[string]interface{}, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = string(lvl)
	entry["event"] = event

	encoded, err := json.Marshal(entry)
	if err != nil {
		log.Printf(`{"level":"error","event":"log_encode_failed","source_event":%q}`, event)
		return
	}

	mu.Lock()
	defer mu.Unlock()
	_, _ = out.Write(append(encoded, '\n'))
}

func Info(event string, fields map[string]interface{}) {
	emit(levelInfo, event, fields)
}

func Warn(event string, fields map[string]interface{}) {
	emit(levelWarn, event, fields)
}

func Error(event string, err error, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	if err != nil {
		merged["error"] = err.Error()
	}
	emit(levelError, event, merged)
}

func withUser(userID string, fields map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["user_id"] = userID
	return merged
}

func InfoWithUser(userID, event string, fields map[string]interface{}) {
	emit(levelInfo, event, withUser(userID, fields))
}

func WarnWithUser(userID, event string, fields map[string]interface{}) {
	emit(levelWarn, event, withUser(userID, fields))
}
