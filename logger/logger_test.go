package logger

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		verbosity  int
		wantLevel  zapcore.Level
	}{
		{"JSON output, quiet", true, VerbosityUser, zapcore.WarnLevel},
		{"Console output, -v", false, VerbosityInfo, zapcore.InfoLevel},
		{"Console output, -vvv", false, VerbosityTrace, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(func() {
				Logger = zap.NewNop().Sugar()
				JSONOutput = false
			})

			require.NoError(t, Initialize(tt.jsonOutput, tt.verbosity))
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)
			assert.True(t, Logger.Desugar().Core().Enabled(tt.wantLevel))
			if tt.wantLevel > zapcore.DebugLevel {
				assert.False(t, Logger.Desugar().Core().Enabled(tt.wantLevel-1))
			}
		})
	}
}

func TestIsProductionEnvironment(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    bool
	}{
		{"ENVIRONMENT=production", map[string]string{"ENVIRONMENT": "production"}, true},
		{"ENVIRONMENT=Prod", map[string]string{"ENVIRONMENT": "Prod"}, true},
		{"LOG_LEVEL=warn", map[string]string{"LOG_LEVEL": "warn"}, true},
		{"LOG_LEVEL=ERROR", map[string]string{"LOG_LEVEL": "ERROR"}, true},
		{"no env vars", map[string]string{}, false},
		{"ENVIRONMENT=dev", map[string]string{"ENVIRONMENT": "dev"}, false},
		{"LOG_LEVEL=DEBUG", map[string]string{"LOG_LEVEL": "DEBUG"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("ENVIRONMENT")
			os.Unsetenv("LOG_LEVEL")
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			assert.Equal(t, tt.want, isProductionEnvironment())
			if tt.want {
				assert.Equal(t, "production", getEnvironmentType())
			} else {
				assert.Equal(t, "development", getEnvironmentType())
			}
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(-1))
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(VerbosityUser))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(VerbosityInfo))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(VerbosityDebug))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))

	assert.False(t, ShouldLogTrace(VerbosityDebug))
	assert.True(t, ShouldLogTrace(VerbosityTrace))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithRequestID(ctx, "req-9")

	FromContext(ctx, base).Infow("saved", FieldPage, "Wikipedia:Database reports/Foo")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "run-1", fields[FieldRunID])
	assert.Equal(t, "req-9", fields[FieldRequestID])
	assert.Equal(t, "Wikipedia:Database reports/Foo", fields[FieldPage])
}

func TestFromContextWithoutFields(t *testing.T) {
	base := zap.NewNop().Sugar()
	assert.Same(t, base, FromContext(context.Background(), base))
	assert.Empty(t, FieldsFromContext(context.Background()))
}

func TestComponentLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Logger = zap.New(core).Sugar()
	t.Cleanup(func() { Logger = zap.NewNop().Sugar() })

	ComponentLogger("pipeline").Infow("run finished", FieldOutcome, "completed")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "pipeline", logs.All()[0].LoggerName)
}

func TestPackageHelpersWithNilLogger(t *testing.T) {
	Logger = nil
	t.Cleanup(func() { Logger = zap.NewNop().Sugar() })

	assert.NotPanics(t, func() {
		Infow("test", "key", "value")
		Warnw("test", "key", "value")
		Errorw("test", "key", "value")
		Debugw("test", "key", "value")
		Cleanup()
	})
}
