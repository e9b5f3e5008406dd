package observability

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Audit event types.
const (
	AuditSignup             = "signup"
	AuditLogin              = "login"
	AuditPreferencesUpdated = "preferences_updated"
	AuditPortalCredentials  = "portal_credentials_updated"
	AuditManualTrigger      = "manual_trigger"
	AuditSweepTriggered     = "sweep_triggered"
)

type AuditLogger struct {
	logger      *Logger
	file        *os.File
	mu          sync.Mutex
	isDedicated bool
}

type SecurityEvent struct {
	Type      string
	Action    string
	UserID    uint64
	Resource  string
	Success   bool
	IPAddress string
	Reason    string
}

func NewAuditLogger(logger *Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// NewDedicatedAuditLogger creates an audit logger that appends to filePath.
func NewDedicatedAuditLogger(filePath, format string) (*AuditLogger, error) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	if format == "console" {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		encoderConfig.MessageKey = "message"
		encoderConfig.StacktraceKey = "stack"
		encoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(file), zapcore.InfoLevel)
	zapLogger := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return &AuditLogger{
		logger:      &Logger{zap: zapLogger},
		file:        file,
		isDedicated: true,
	}, nil
}

func (a *AuditLogger) IsDedicated() bool {
	return a.isDedicated
}

func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}

// LogSecurityEvent writes one AUDIT line. Callers must never put portal
// secrets or vault tokens into any field.
func (a *AuditLogger) LogSecurityEvent(ctx context.Context, event SecurityEvent) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	fields := []zap.Field{
		zap.String("event_type", event.Type),
		zap.Uint64("user_id", event.UserID),
		zap.String("action", event.Action),
		zap.String("resource", event.Resource),
		zap.Bool("success", event.Success),
		zap.String("ip_address", event.IPAddress),
		zap.Time("event_time", time.Now().UTC()),
		zap.String("audit_version", "1.0"),
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	a.logger.Info(ctx, "AUDIT", fields...)
}
