package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/coachline/coachline/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg       config.LogConfig
		level     logrus.Level
		formatter logrus.Formatter
	}{
		{config.LogConfig{Level: "debug", Format: "json"}, logrus.DebugLevel, &logrus.JSONFormatter{}},
		{config.LogConfig{Level: "warn"}, logrus.WarnLevel, &logrus.TextFormatter{}},
		{config.LogConfig{Level: "loud"}, logrus.InfoLevel, &logrus.TextFormatter{}},
	}
	for _, tt := range tests {
		logger := New(tt.cfg)
		assert.Equal(t, tt.level, logger.GetLevel())
		assert.IsType(t, tt.formatter, logger.Formatter)
	}
}

func TestOrDiscard(t *testing.T) {
	assert.NotNil(t, OrDiscard(nil))

	logger := logrus.New()
	assert.Same(t, logger, OrDiscard(logger))
}
