package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

type fakeBackend struct {
	name   models.SyncBackend
	report *BackendReport
	err    error
	calls  int
}

func (f *fakeBackend) Name() models.SyncBackend { return f.name }

func (f *fakeBackend) Sync(ctx context.Context) (*BackendReport, error) {
	f.calls++
	return f.report, f.err
}

type captureSink struct {
	report *Report
}

func (c *captureSink) SyncReportCompleted(ctx context.Context, report *Report) {
	c.report = report
}

func TestSyncAllPartialFailure(t *testing.T) {
	svc := newTestService(t)
	good := &fakeBackend{
		name:   models.BackendQRZ,
		report: &BackendReport{Backend: models.BackendQRZ, Uploaded: 3},
	}
	bad := &fakeBackend{
		name: models.BackendPOTA,
		err:  utils.NewAppError(utils.ErrCodeConnection, "dial failed"),
	}
	svc.backends = []Backend{good, bad}

	sink := &captureSink{}
	svc.SetReportSink(sink)

	report, err := svc.SyncAll(context.Background())
	require.NoError(t, err)

	// One backend failing never aborts the other
	assert.Equal(t, 1, good.calls)
	assert.Equal(t, 1, bad.calls)

	assert.False(t, report.Succeeded())
	assert.Equal(t, 3, report.TotalUploaded())
	assert.Equal(t, 3, report.Backends[models.BackendQRZ].Uploaded)
	assert.NotEmpty(t, report.Backends[models.BackendPOTA].Error)

	// Sink saw the same report, and it is retrievable afterwards
	assert.Same(t, report, sink.report)
	assert.Same(t, report, svc.LastReport())
}

func TestSyncAllNoBackends(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.SyncAll(context.Background())
	require.Error(t, err)
	assert.True(t, utils.IsAppErrorCode(err, utils.ErrCodeConfiguration))
}

func TestSyncBackendByName(t *testing.T) {
	svc := newTestService(t)
	backend := &fakeBackend{
		name:   models.BackendHAMRS,
		report: &BackendReport{Backend: models.BackendHAMRS, Uploaded: 2},
	}
	svc.backends = []Backend{backend}

	report, err := svc.SyncBackend(context.Background(), models.BackendHAMRS)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Uploaded)

	_, err = svc.SyncBackend(context.Background(), models.BackendLoTW)
	require.Error(t, err)
	assert.True(t, utils.IsAppErrorCode(err, utils.ErrCodeNotFound))
}
