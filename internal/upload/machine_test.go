package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
)

var allEvents = []Event{
	EventProcessPDF, EventCompress, EventUpload, EventExtract, EventComplete, EventFail, EventRetry,
}

func TestNext_TableIsExhaustive(t *testing.T) {
	allowed := map[constants.UploadStatus]map[Event]constants.UploadStatus{
		constants.StatusNotUploaded: {
			EventProcessPDF: constants.StatusProcessingPDF,
			EventCompress:   constants.StatusCompressingImage,
			EventUpload:     constants.StatusUploadingToS3,
			EventFail:       constants.StatusFailed,
		},
		constants.StatusProcessingPDF: {
			EventCompress: constants.StatusCompressingImage,
			EventFail:     constants.StatusFailed,
		},
		constants.StatusCompressingImage: {
			EventUpload: constants.StatusUploadingToS3,
			EventFail:   constants.StatusFailed,
		},
		constants.StatusUploadingToS3: {
			EventExtract: constants.StatusAIProcessing,
			EventFail:    constants.StatusFailed,
		},
		constants.StatusAIProcessing: {
			EventComplete: constants.StatusCompleted,
			EventFail:     constants.StatusFailed,
		},
		constants.StatusFailed: {
			EventRetry: constants.StatusNotUploaded,
		},
	}

	for _, s := range constants.AllStatuses() {
		for _, e := range allEvents {
			to, err := Next(s, e)
			want, ok := allowed[s][e]
			if ok {
				require.NoError(t, err, "%s on %s should be allowed", s, e)
				assert.Equal(t, want, to)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition, "%s on %s should be rejected", s, e)
				assert.Equal(t, s, to, "rejected transition must not change state")
			}
		}
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(constants.StatusNotUploaded, constants.StatusCompressingImage))
	assert.True(t, CanTransition(constants.StatusFailed, constants.StatusNotUploaded))
	assert.False(t, CanTransition(constants.StatusCompleted, constants.StatusFailed))
	assert.False(t, CanTransition(constants.StatusProcessingPDF, constants.StatusUploadingToS3))
	assert.False(t, CanTransition(constants.StatusFailed, constants.StatusAIProcessing))

	for _, s := range constants.AllStatuses() {
		if s == constants.StatusCompleted || s == constants.StatusFailed {
			continue
		}
		assert.True(t, CanTransition(s, constants.StatusFailed), "FAILED reachable from %s", s)
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	assert.Empty(t, Events(constants.StatusCompleted))
	assert.True(t, constants.StatusCompleted.Terminal())
}
