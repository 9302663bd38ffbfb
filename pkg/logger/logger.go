package logger

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sing3demons/oryfm/pkg/logAction"
)

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

type LogType string

const (
	TypeDetail  LogType = "detail"
	TypeSummary LogType = "summary"
)

type ctxKey string

// LoggerKey is the request context key holding the request-scoped *Logger.
const LoggerKey ctxKey = "logger"

type DetailLog struct {
	Timestamp         string         `json:"timestamp"`
	Level             LogLevel       `json:"level"`
	Type              LogType        `json:"type"`
	Service           string         `json:"service"`
	Version           string         `json:"version"`
	TransactionID     string         `json:"transactionId,omitempty"`
	SessionID         string         `json:"sessionId,omitempty"`
	UseCase           string         `json:"useCase,omitempty"`
	Action            string         `json:"action,omitempty"`
	ActionDescription string         `json:"actionDescription,omitempty"`
	SubAction         string         `json:"subAction,omitempty"`
	Dependency        string         `json:"dependency,omitempty"`
	ResponseTime      int64          `json:"responseTime,omitempty"`
	Message           string         `json:"message,omitempty"`
	Duration          int64          `json:"duration,omitempty"`
	StatusCode        int            `json:"statusCode,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

type LogOutputConfig struct {
	Path    string
	Console bool
	File    bool
}

type LoggerConfig struct {
	Summary LogOutputConfig
	Detail  LogOutputConfig
	// Writer replaces stdout for console output when set.
	Writer io.Writer `json:"-"`
}

// DependencyMetadata describes the upstream a detail line talks about.
type DependencyMetadata struct {
	Dependency   string
	ResponseTime int64
}

type core struct {
	mu            sync.Mutex
	service       string
	version       string
	config        *LoggerConfig
	transactionID string
	sessionID     string
	useCase       string
	startTime     time.Time
	metadata      map[string]any
}

// Logger accumulates one transaction: detail lines are written as they happen and
// a single summary line is written by Flush or FlushError.
type Logger struct {
	core       *core
	dependency *DependencyMetadata
}

func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Summary: LogOutputConfig{Path: "./logs/summary/", Console: true},
		Detail:  LogOutputConfig{Path: "./logs/detail/", Console: true},
	}
}

func NewLogger(service, version string) *Logger {
	return NewLoggerWithConfig(service, version, DefaultConfig())
}

func NewLoggerWithConfig(service, version string, config *LoggerConfig) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	return &Logger{core: &core{
		service:   service,
		version:   version,
		config:    config,
		startTime: time.Now(),
		metadata:  make(map[string]any),
	}}
}

func (l *Logger) SetSessionID(sessionID string) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.sessionID = sessionID
}

func (l *Logger) SessionID() string {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return l.core.sessionID
}

func (l *Logger) SetTransactionID(transactionID string) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.transactionID = transactionID
}

func (l *Logger) TransactionID() string {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return l.core.transactionID
}

func (l *Logger) SetUseCase(useCase string) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.useCase = useCase
}

// SetDependencyMetadata returns a logger sharing this transaction whose detail
// lines are tagged with the given dependency.
func (l *Logger) SetDependencyMetadata(dm DependencyMetadata) *Logger {
	return &Logger{core: l.core, dependency: &dm}
}

// StartTransaction initializes a new transaction with IDs
func (l *Logger) StartTransaction(transactionID, sessionID string) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.transactionID = transactionID
	l.core.sessionID = sessionID
	l.core.startTime = time.Now()
	l.core.metadata = make(map[string]any)
}

// AddMetadata adds or overwrites a summary metadata key-value pair
func (l *Logger) AddMetadata(key string, value any) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.metadata[key] = value
}

// AddSuccess appends value under key, turning the entry into a slice on the second call.
func (l *Logger) AddSuccess(key string, value any) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()

	existing, exists := l.core.metadata[key]
	if !exists {
		l.core.metadata[key] = value
		return
	}
	if arr, isArray := existing.([]any); isArray {
		l.core.metadata[key] = append(arr, value)
		return
	}
	l.core.metadata[key] = []any{existing, value}
}

func (l *Logger) Debug(action logAction.LoggerAction, data any, maskingRules ...MaskingRule) {
	l.Detail(LevelDebug, action, data, maskingRules...)
}

func (l *Logger) Info(action logAction.LoggerAction, data any, maskingRules ...MaskingRule) {
	l.Detail(LevelInfo, action, data, maskingRules...)
}

func (l *Logger) Warn(action logAction.LoggerAction, data any, maskingRules ...MaskingRule) {
	l.Detail(LevelWarn, action, data, maskingRules...)
}

func (l *Logger) Error(action logAction.LoggerAction, data any, maskingRules ...MaskingRule) {
	l.Detail(LevelError, action, data, maskingRules...)
}

// Detail logs detailed information with optional data masking
func (l *Logger) Detail(level LogLevel, action logAction.LoggerAction, data any, maskingRules ...MaskingRule) {
	maskedData := data
	if len(maskingRules) > 0 {
		maskedData = MaskData(data, maskingRules)
	}

	l.core.mu.Lock()
	log := DetailLog{
		Level:             level,
		Type:              TypeDetail,
		Action:            action.Action,
		ActionDescription: action.ActionDescription,
		SubAction:         action.SubAction,
		Message:           dataToString(maskedData),
		TransactionID:     l.core.transactionID,
		SessionID:         l.core.sessionID,
		UseCase:           l.core.useCase,
	}
	l.core.mu.Unlock()

	if l.dependency != nil {
		log.Dependency = l.dependency.Dependency
		log.ResponseTime = l.dependency.ResponseTime
	}

	l.write(log)
}

// Flush writes a summary log with success status and resets the transaction state.
func (l *Logger) Flush(statusCode int, message string) {
	l.summary(LevelInfo, statusCode, message)
}

// FlushError writes a summary log with error status and resets the transaction state.
func (l *Logger) FlushError(statusCode int, message string) {
	l.summary(LevelError, statusCode, message)
}

func (l *Logger) summary(level LogLevel, statusCode int, message string) {
	l.core.mu.Lock()
	log := DetailLog{
		Level:         level,
		Type:          TypeSummary,
		Message:       message,
		TransactionID: l.core.transactionID,
		SessionID:     l.core.sessionID,
		UseCase:       l.core.useCase,
		StatusCode:    statusCode,
		Duration:      time.Since(l.core.startTime).Milliseconds(),
		Metadata:      l.core.metadata,
	}
	l.core.metadata = make(map[string]any)
	l.core.startTime = time.Now()
	l.core.mu.Unlock()

	l.write(log)
}

func (l *Logger) write(log DetailLog) {
	log.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	log.Service = l.core.service
	log.Version = l.core.version

	jsonLog, err := json.Marshal(log)
	if err != nil {
		return
	}
	jsonLog = append(jsonLog, '\n')

	outputConfig := l.core.config.Detail
	if log.Type == TypeSummary {
		outputConfig = l.core.config.Summary
	}

	l.core.mu.Lock()
	defer l.core.mu.Unlock()

	if outputConfig.Console {
		var out io.Writer = os.Stdout
		if l.core.config.Writer != nil {
			out = l.core.config.Writer
		}
		out.Write(jsonLog)
	}
	if outputConfig.File {
		writeToFile(outputConfig.Path, log.Timestamp, jsonLog)
	}
}

// writeToFile appends to <basePath>/<YYYY-MM-DD>.log
func writeToFile(basePath, timestamp string, data []byte) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return
	}

	filename := filepath.Join(basePath, timestamp[:10]) + ".log"
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	f.Write(data)
}

func dataToString(data any) string {
	if data == nil {
		return ""
	}
	if str, ok := data.(string); ok {
		return str
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(jsonBytes)
}
