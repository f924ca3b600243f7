package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{name: "debug level", level: "debug"},
		{name: "info level", level: "info"},
		{name: "warn level", level: "warn"},
		{name: "error level", level: "error"},
		{name: "unknown level falls back to info", level: "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			assert.NotNil(t, logger)
			assert.NotNil(t, logger.Logger)
		})
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	assert.NotNil(t, logger)
}

func TestComponent(t *testing.T) {
	logger := Default().Component("classifier")
	assert.NotNil(t, logger)

	var nilLogger *Logger
	assert.NotNil(t, nilLogger.Component("classifier"))
}
