// Package upload holds the state machine every ingested file moves through.
package upload

import (
	"errors"
	"fmt"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
)

// Event drives a transition between upload states.
type Event string

const (
	EventProcessPDF Event = "process_pdf"
	EventCompress   Event = "compress"
	EventUpload     Event = "upload"
	EventExtract    Event = "extract"
	EventComplete   Event = "complete"
	EventFail       Event = "fail"
	EventRetry      Event = "retry"
)

// ErrInvalidTransition is returned for any (state, event) pair missing from the table.
var ErrInvalidTransition = errors.New("invalid upload state transition")

// transitions is the complete table. Anything not listed is rejected.
var transitions = map[constants.UploadStatus]map[Event]constants.UploadStatus{
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
	constants.StatusCompleted: {},
}

// stageProgress is the progress recorded on entering each state.
var stageProgress = map[constants.UploadStatus]int{
	constants.StatusNotUploaded:      0,
	constants.StatusProcessingPDF:    10,
	constants.StatusCompressingImage: 30,
	constants.StatusUploadingToS3:    50,
	constants.StatusAIProcessing:     70,
	constants.StatusCompleted:        100,
}

// Next looks up the state reached from s on e.
func Next(s constants.UploadStatus, e Event) (constants.UploadStatus, error) {
	if to, ok := transitions[s][e]; ok {
		return to, nil
	}
	return s, fmt.Errorf("%w: %s --%s-->", ErrInvalidTransition, s, e)
}

// CanTransition reports whether some event moves from into to.
func CanTransition(from, to constants.UploadStatus) bool {
	for _, dst := range transitions[from] {
		if dst == to {
			return true
		}
	}
	return false
}

// Events lists the events accepted in state s.
func Events(s constants.UploadStatus) []Event {
	out := make([]Event, 0, len(transitions[s]))
	for e := range transitions[s] {
		out = append(out, e)
	}
	return out
}

// StageProgress returns the progress value associated with entering s.
func StageProgress(s constants.UploadStatus) (int, bool) {
	p, ok := stageProgress[s]
	return p, ok
}
