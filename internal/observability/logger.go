package observability

import (
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rl1809/nexus-shop/internal/config"
)

// NewLogger builds the JSON console logger. With exportToOtel set, records
// are also forwarded to the global OpenTelemetry LoggerProvider.
func NewLogger(cfg *config.Config, exportToOtel bool) *zap.Logger {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if lvl, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
		level.SetLevel(lvl)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(os.Stdout),
		level,
	)

	if exportToOtel {
		otelCore := otelzap.NewCore(cfg.Service.Name,
			otelzap.WithLoggerProvider(global.GetLoggerProvider()),
		)
		core = zapcore.NewTee(core, otelCore)
	}

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", cfg.Service.Name)),
	)
}
