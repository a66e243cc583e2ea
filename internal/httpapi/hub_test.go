package httpapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hybscloud/spiral/internal/httpapi"
	"github.com/hybscloud/spiral/pkg/config"
	"github.com/hybscloud/spiral/pkg/efflog"
	"github.com/hybscloud/spiral/pkg/logging"
)

func TestHubStartsWithNoClients(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text"})
	h := httpapi.NewHub(log)
	assert.Equal(t, 0, h.ClientCount())
}

func TestHubPublishEffectWithNoSubscribersDoesNotBlock(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text"})
	h := httpapi.NewHub(log)
	h.PublishEffect("exec-1", efflog.Entry{SeqNum: 1, TaskID: "t1", Op: "core:add"})
	assert.Equal(t, 0, h.ClientCount())
}
