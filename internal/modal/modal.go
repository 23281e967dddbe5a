// Package modal derives the status overlay shown for a controller phase.
package modal

import (
	"fmt"
	"strings"

	"github.com/jonathan/portfolio-admin/internal/editor"
	"github.com/jonathan/portfolio-admin/internal/types"
)

// View is the rendered overlay. A zero View is hidden.
type View struct {
	Visible     bool   `json:"visible"`
	Title       string `json:"title,omitempty"`
	Message     string `json:"message,omitempty"`
	Confirm     string `json:"confirm,omitempty"`
	Cancel      string `json:"cancel,omitempty"`
	Dismissible bool   `json:"dismissible"`
	// Phase echoes the controller phase the view was derived from.
	Phase editor.Phase `json:"phase"`
}

// ForSubmission returns the overlay for a submission status.
func ForSubmission(kind types.Kind, st editor.Status) View {
	switch st.Phase {
	case editor.PhaseUploading:
		return View{
			Visible: true,
			Title:   "Uploading...",
			Message: fmt.Sprintf("Please wait while the %s is being uploaded.", kind.Title),
			Phase:   st.Phase,
		}
	case editor.PhaseSuccess:
		return View{
			Visible:     true,
			Title:       "Upload Successful!",
			Message:     fmt.Sprintf("The %s has been saved successfully.", kind.Title),
			Confirm:     "OK",
			Dismissible: true,
			Phase:       st.Phase,
		}
	case editor.PhaseError:
		return View{
			Visible:     true,
			Title:       "Upload Failed",
			Message:     failure(st, fmt.Sprintf("The %s could not be saved.", kind.Title)),
			Confirm:     "Close",
			Dismissible: true,
			Phase:       st.Phase,
		}
	default:
		return View{Phase: editor.PhaseIdle}
	}
}

// ForDeletion returns the overlay for a deletion status.
func ForDeletion(kind types.Kind, st editor.Status) View {
	noun := strings.ToLower(kind.Title)
	switch st.Phase {
	case editor.PhaseConfirming:
		return View{
			Visible:     true,
			Title:       "Confirm Deletion",
			Message:     fmt.Sprintf("Are you sure you want to delete this %s?", noun),
			Confirm:     "Delete",
			Cancel:      "Cancel",
			Dismissible: true,
			Phase:       st.Phase,
		}
	case editor.PhaseDeleting:
		return View{
			Visible: true,
			Title:   "Deleting...",
			Message: fmt.Sprintf("Please wait while the %s is being deleted.", noun),
			Phase:   st.Phase,
		}
	case editor.PhaseError:
		return View{
			Visible:     true,
			Title:       "Deletion Failed",
			Message:     failure(st, fmt.Sprintf("The %s could not be deleted.", noun)),
			Confirm:     "Close",
			Dismissible: true,
			Phase:       st.Phase,
		}
	default:
		return View{Phase: editor.PhaseIdle}
	}
}

// Dismiss reports whether a click outside the overlay closes it. In-progress
// views stay open until the controller leaves its phase.
func Dismiss(v View) bool {
	return v.Visible && v.Dismissible
}

func failure(st editor.Status, fallback string) string {
	if st.Message != "" {
		return st.Message
	}
	return fallback
}
