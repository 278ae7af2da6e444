package avatar

import "go.uber.org/zap"

// LogDriver records commands in the log when no renderer is attached.
type LogDriver struct {
	logger *zap.Logger
}

func NewLogDriver(logger *zap.Logger) *LogDriver {
	return &LogDriver{logger: logger.Named("avatar")}
}

func (d *LogDriver) ShowExpression(cmd Command) {
	d.logger.Info("show expression",
		zap.String("expression", string(cmd.ExpressionID)),
		zap.Float64("intensity", cmd.Intensity))
}

func (d *LogDriver) SetTracking(enabled bool) {
	d.logger.Info("tracking toggled", zap.Bool("enabled", enabled))
}
