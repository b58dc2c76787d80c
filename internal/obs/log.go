package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// Log emits a structured JSON line with a timestamp and message.
func Log(msg string, fields map[string]any) {
	entry := map[string]any{
		"ts":  time.Now().UTC().Format(time.RFC3339Nano),
		"msg": msg,
	}
	for k, v := range fields {
		entry[k] = v
	}
	Emit(entry)
}

// LogError emits a structured JSON error line.
func LogError(msg string, err error, fields map[string]any) {
	merged := map[string]any{"level": "error"}
	for k, v := range fields {
		merged[k] = v
	}
	if err != nil {
		merged["error"] = err.Error()
	}
	Log(msg, merged)
}

// Emit writes an arbitrary structured JSON log line.
func Emit(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
