package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/user"
)

func TestRollbarLogger(t *testing.T) {
	obs, logs := observer.New(zap.DebugLevel)
	conf := testConfig()
	logger := NewRollbarLogger(zap.New(obs), conf)

	usr := user.User{ID: "42", Username: "jane"}
	logger.Error("sending email", errors.New("boom"), usr, map[string]interface{}{"to": "jane@kluniversity.in"})
	logger.Info("server started")

	entries := logs.AllUntimed()
	if assert.Len(t, entries, 2) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "sending email", entries[0].Message)
		assert.Equal(t, "boom", ctx["error"])
		assert.Equal(t, "jane", ctx["username"])
		assert.Equal(t, "jane@kluniversity.in", ctx["to"])
		assert.Equal(t, zap.InfoLevel, entries[1].Level)
	}

	args := logger.prepare("msg", []interface{}{usr, "extra"})
	assert.Equal(t, []interface{}{"msg", "extra"}, args)
}

func testConfig() *core.Config {
	return core.NewTestConfig()
}
