package httpapi_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybscloud/spiral/internal/httpapi"
	"github.com/hybscloud/spiral/pkg/config"
	"github.com/hybscloud/spiral/pkg/ir"
	"github.com/hybscloud/spiral/pkg/logging"
)

func noopRun(ctx context.Context, doc *ir.Document) (any, error) { return nil, nil }

func testDoc(t *testing.T) *ir.Document {
	doc, err := ir.DecodeDocument([]byte(`{
		"version": "1",
		"nodes": [{"id": "x", "kind": "lit", "type": {"kind": "int"}, "literal": 1}],
		"result": "x"
	}`))
	require.NoError(t, err)
	return doc
}

func TestCronSchedulerScheduleAndUnschedule(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text"})
	cs := httpapi.NewCronScheduler(10, noopRun, nil, log)
	defer cs.Stop()

	require.NoError(t, cs.Schedule("job-1", "@every 1h", testDoc(t)))
	assert.True(t, cs.Unschedule("job-1"))
	assert.False(t, cs.Unschedule("job-1"))
}

func TestCronSchedulerRejectsInvalidExpression(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text"})
	cs := httpapi.NewCronScheduler(10, noopRun, nil, log)
	defer cs.Stop()

	err := cs.Schedule("job-1", "not a cron expression", testDoc(t))
	assert.Error(t, err)
}

func TestCronSchedulerEnforcesMaxJobs(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text"})
	cs := httpapi.NewCronScheduler(1, noopRun, nil, log)
	defer cs.Stop()

	require.NoError(t, cs.Schedule("job-1", "@every 1h", testDoc(t)))
	err := cs.Schedule("job-2", "@every 1h", testDoc(t))
	assert.Error(t, err)
}

func TestCronSchedulerReplacesExistingJobWithoutCountingAgainstCap(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text"})
	cs := httpapi.NewCronScheduler(1, noopRun, nil, log)
	defer cs.Stop()

	require.NoError(t, cs.Schedule("job-1", "@every 1h", testDoc(t)))
	require.NoError(t, cs.Schedule("job-1", "@every 2h", testDoc(t)))
}
