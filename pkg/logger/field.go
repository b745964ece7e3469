package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// Field is one structured key/value pair. The value's dynamic type picks
// the zerolog encoder.
type Field struct {
	Key   string
	Value any
}

func (f Field) apply(ev *zerolog.Event) {
	switch v := f.Value.(type) {
	case string:
		ev.Str(f.Key, v)
	case int:
		ev.Int(f.Key, v)
	case int64:
		ev.Int64(f.Key, v)
	case float64:
		ev.Float64(f.Key, v)
	case bool:
		ev.Bool(f.Key, v)
	case time.Duration:
		ev.Dur(f.Key, v)
	case []string:
		ev.Strs(f.Key, v)
	case error:
		ev.AnErr(f.Key, v)
	case nil:
		// Error(nil) and friends log nothing
	default:
		ev.Interface(f.Key, v)
	}
}

// plain is the JSON-friendly form shipped by the collector.
func (f Field) plain() any {
	switch v := f.Value.(type) {
	case error:
		return v.Error()
	case time.Duration:
		return v.Milliseconds()
	}
	return f.Value
}

func String(key, value string) Field { return Field{key, value} }
func Strings(key string, value []string) Field { return Field{key, value} }
func Int(key string, value int) Field { return Field{key, value} }
func Int64(key string, value int64) Field { return Field{key, value} }
func Float64(key string, value float64) Field { return Field{key, value} }
func Bool(key string, value bool) Field { return Field{key, value} }
func Any(key string, value any) Field { return Field{key, value} }

// Duration logs in milliseconds.
func Duration(key string, value time.Duration) Field { return Field{key, value} }

// Error logs err under "error". A nil err adds nothing.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error"}
	}
	return Field{"error", err}
}
