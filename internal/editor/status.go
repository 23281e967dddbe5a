package editor

// Phase is the state of a submission or deletion controller.
type Phase string

// Submission phases.
const (
	PhaseIdle      Phase = "idle"
	PhaseUploading Phase = "uploading"
	PhaseSuccess   Phase = "success"
	PhaseError     Phase = "error"
)

// Deletion phases. Idle and error are shared with submission.
const (
	PhaseConfirming Phase = "confirming"
	PhaseDeleting   Phase = "deleting"
)

// Status is the tagged state of one controller.
type Status struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message,omitempty"`
	// Target is the record key the phase refers to: the key being saved or
	// the deletion target.
	Target string `json:"target,omitempty"`
}

// InProgress reports whether the controller is waiting on a backend call.
func (s Status) InProgress() bool {
	return s.Phase == PhaseUploading || s.Phase == PhaseDeleting
}

func idle() Status { return Status{Phase: PhaseIdle} }

// offer delivers v on a buffer-one channel, replacing any value the receiver
// has not taken yet.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
