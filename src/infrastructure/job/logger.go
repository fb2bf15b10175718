package job

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-logr/logr"
)

// LogrAdapter routes watermill logs to a logr.Logger.
type LogrAdapter struct {
	logger logr.Logger
	fields watermill.LogFields
}

var _ watermill.LoggerAdapter = (*LogrAdapter)(nil)

func NewLogrAdapter(logger logr.Logger) *LogrAdapter {
	return &LogrAdapter{logger: logger.WithName("watermill")}
}

func (a *LogrAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error(err, msg, a.keysAndValues(fields)...)
}

func (a *LogrAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info(msg, a.keysAndValues(fields)...)
}

func (a *LogrAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.V(1).Info(msg, a.keysAndValues(fields)...)
}

func (a *LogrAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.V(2).Info(msg, a.keysAndValues(fields)...)
}

func (a *LogrAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LogrAdapter{logger: a.logger, fields: a.fields.Add(fields)}
}

func (a *LogrAdapter) keysAndValues(fields watermill.LogFields) []interface{} {
	all := a.fields.Add(fields)
	kv := make([]interface{}, 0, len(all)*2)
	for k, v := range all {
		kv = append(kv, k, v)
	}
	return kv
}
