package log

import (
	"net/url"
	"os"
	"strings"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/patrickmn/go-cache"
)

var loggerCache *cache.Cache
var default_logger_cache_expiry = 6 * time.Hour

func init() {
	loggerCache = cache.New(default_logger_cache_expiry, 10*time.Minute)
}

// AddContext permanently adds fields (job_id, stage, ...) to the logger for a
// trace id. Any future logging for this trace id will include this context.
func AddContext(traceID string, keyvals ...interface{}) {
	logger := kitlog.With(getLogger(traceID), redactKeyvals(keyvals...)...)

	err := loggerCache.Replace(traceID, logger, default_logger_cache_expiry)
	if err != nil {
		_ = logger.Log("msg", "error replacing logger in cache: "+err.Error())
	}
}

func Log(traceID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(traceID), "level", "INFO", "msg", message).Log(redactKeyvals(keyvals...)...)
}

func LogDebug(traceID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(traceID), "level", "DEBUG", "msg", message).Log(redactKeyvals(keyvals...)...)
}

func LogWarn(traceID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(traceID), "level", "WARN", "msg", message).Log(redactKeyvals(keyvals...)...)
}

// LogNoRequestID logs in situations where we don't have a trace id to hand.
// Should be used sparingly and with as much context inserted into the message as possible.
func LogNoRequestID(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "level", "INFO", "msg", message).Log(redactKeyvals(keyvals...)...)
}

func LogError(traceID string, message string, err error, keyvals ...interface{}) {
	msgLogger := kitlog.With(getLogger(traceID), "level", "ERROR", "msg", message)
	errLogger := kitlog.With(msgLogger, "err", err.Error())
	_ = errLogger.Log(redactKeyvals(keyvals...)...)
}

func getLogger(traceID string) kitlog.Logger {
	logger, found := loggerCache.Get(traceID)
	if found {
		return logger.(kitlog.Logger)
	}

	newLogger := kitlog.With(newLogger(), "trace_id", traceID)
	err := loggerCache.Add(traceID, newLogger, default_logger_cache_expiry)
	if err != nil {
		_ = newLogger.Log("msg", "error adding logger to cache", "trace_id", traceID, "err", err.Error())
	}
	return newLogger
}

// newLogger builds the base logger emitting one JSON object per line, per §6:
// ts, level, trace_id, job_id, stage, msg and an optional meta object.
func newLogger() kitlog.Logger {
	newLogger := kitlog.NewJSONLogger(kitlog.NewSyncWriter(os.Stdout))
	return kitlog.With(newLogger, "ts", kitlog.TimestampFormat(time.Now, "2006-01-02T15:04:05.000Z07:00"))
}

func redactKeyvals(keyvals ...interface{}) []interface{} {
	var res []interface{}
	for i := range keyvals {
		if i%2 == 1 {
			k, v := keyvals[i-1], keyvals[i]
			res = append(res, k)
			switch s := v.(type) {
			case string:
				res = append(res, RedactURL(s))
			case url.URL:
				res = append(res, s.Redacted())
			case *url.URL:
				if s != nil {
					res = append(res, s.Redacted())
				}
			default:
				res = append(res, v)
			}
		}
	}
	return res
}

func RedactLogs(str, delim string) string {
	if delim == "" {
		return str
	}

	splitstr := strings.Split(str, delim)
	if len(splitstr) == 1 {
		return str
	}

	redactedstr := []string{}
	for _, v := range splitstr {
		r := RedactURL(v)
		redactedstr = append(redactedstr, r)
	}
	return strings.Join(redactedstr[:], delim)
}

func RedactURL(str string) string {
	strLower := strings.ToLower(str)
	if !strings.HasPrefix(strLower, "http") && !strings.HasPrefix(strLower, "s3") {
		return str
	}

	u, err := url.Parse(str)
	if err != nil {
		return "REDACTED"
	}
	return u.Redacted()
}
