package logs

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
	DEBUG Level = "DEBUG"
)

// higher value = more severe
var levelPriority = map[Level]int{
	DEBUG: 1,
	INFO:  2,
	WARN:  3,
	ERROR: 4,
}

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	lvl := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelPriority[lvl]; ok {
		return lvl
	}
	return INFO
}

type Entry struct {
	TimeStamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Logger keeps the last maxSize entries in memory and, when out is set,
// mirrors each entry to it as a single key=value line.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
	level   Level
	out     io.Writer
}

// NewLogger returns an in-memory logger.
//
// level: minimum level to record
// maxSize: maximum number of entries kept in memory
func NewLogger(maxSize int, level Level) *Logger {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Logger{
		entries: make([]Entry, 0, maxSize),
		maxSize: maxSize,
		level:   level,
	}
}

// WithOutput sets the writer entries are mirrored to.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	l.mu.Lock()
	l.out = w
	l.mu.Unlock()
	return l
}

func (l *Logger) log(level Level, msg string, kv []any) {
	if levelPriority[level] < levelPriority[l.level] {
		return
	}

	entry := Entry{
		TimeStamp: time.Now(),
		Level:     level,
		Message:   msg,
		Fields:    fields(kv),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.maxSize {
		// drop oldest
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)

	if l.out != nil {
		_, _ = io.WriteString(l.out, format(entry, kv))
	}
}

func (l *Logger) Debug(msg string, kv ...any) {
	l.log(DEBUG, msg, kv)
}

func (l *Logger) Info(msg string, kv ...any) {
	l.log(INFO, msg, kv)
}

func (l *Logger) Warn(msg string, kv ...any) {
	l.log(WARN, msg, kv)
}

func (l *Logger) Error(msg string, kv ...any) {
	l.log(ERROR, msg, kv)
}

// GetLast returns a copy of the newest n entries, oldest first.
func (l *Logger) GetLast(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n > len(l.entries) {
		n = len(l.entries)
	}

	start := len(l.entries) - n
	out := make([]Entry, n)
	for i, e := range l.entries[start:] {
		out[i] = e
		if e.Fields != nil {
			out[i].Fields = make(map[string]string, len(e.Fields))
			for k, v := range e.Fields {
				out[i].Fields[k] = v
			}
		}
	}
	return out
}

// fields turns alternating key/value pairs into a map. A trailing key
// without a value is recorded under "!BADKEY".
func fields(kv []any) map[string]string {
	if len(kv) == 0 {
		return nil
	}
	m := make(map[string]string, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			m["!BADKEY"] = fmt.Sprint(kv[i])
			break
		}
		m[fmt.Sprint(kv[i])] = fmt.Sprint(kv[i+1])
	}
	return m
}

func format(e Entry, kv []any) string {
	var b strings.Builder
	b.WriteString(e.TimeStamp.UTC().Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(string(e.Level))
	b.WriteByte(' ')
	b.WriteString(e.Message)
	// keep call-site order rather than map order
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%q", kv[i], fmt.Sprint(kv[i+1]))
	}
	if len(kv)%2 == 1 {
		fmt.Fprintf(&b, " !BADKEY=%q", fmt.Sprint(kv[len(kv)-1]))
	}
	b.WriteByte('\n')
	return b.String()
}
