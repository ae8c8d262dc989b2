package log

import (
	"github.com/hashicorp/go-retryablehttp"
)

var _ retryablehttp.LeveledLogger = retryableHTTPLogger{}

// retryableHTTPLogger adapts our JSON logger to retryablehttp's leveled
// logger interface so the Fetcher's HTTP retry attempts show up as regular
// structured log lines instead of retryablehttp's own stdlib-log output.
type retryableHTTPLogger struct {
	traceID string
}

func NewRetryableHTTPLogger(traceID string) retryablehttp.LeveledLogger {
	return retryableHTTPLogger{traceID: traceID}
}

func (r retryableHTTPLogger) Error(msg string, keysAndValues ...interface{}) {
	_ = kitLogWith(r.traceID, "ERROR", msg, keysAndValues...)
}

func (r retryableHTTPLogger) Warn(msg string, keysAndValues ...interface{}) {
	_ = kitLogWith(r.traceID, "WARN", msg, keysAndValues...)
}

func (r retryableHTTPLogger) Info(msg string, keysAndValues ...interface{}) {
	_ = kitLogWith(r.traceID, "INFO", msg, keysAndValues...)
}

func (r retryableHTTPLogger) Debug(msg string, keysAndValues ...interface{}) {
	_ = kitLogWith(r.traceID, "DEBUG", msg, keysAndValues...)
}

func kitLogWith(traceID, level, msg string, keyvals ...interface{}) error {
	if traceID == "" {
		LogNoRequestID(msg, keyvals...)
		return nil
	}
	switch level {
	case "ERROR":
		Log(traceID, msg, keyvals...)
	case "WARN":
		LogWarn(traceID, msg, keyvals...)
	default:
		LogDebug(traceID, msg, keyvals...)
	}
	return nil
}
