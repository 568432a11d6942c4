package domain

import "strings"

// transitions is the allowed status change matrix. completed is terminal.
var transitions = map[UploadStatus]map[UploadStatus]bool{
	StatusPending:    {StatusProcessing: true},
	StatusProcessing: {StatusCompleted: true, StatusFailed: true},
	StatusFailed:     {StatusPending: true},
	StatusCompleted:  {},
}

// ParseStatus normalizes a client-supplied status.
func ParseStatus(raw string) (UploadStatus, bool) {
	s := UploadStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := transitions[s]; !ok {
		return "", false
	}
	return s, true
}

// Valid reports whether s is one of the four known statuses.
func (s UploadStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to UploadStatus) bool {
	return transitions[from][to]
}

// Transition validates from -> to and returns the patch that applies it.
// Entering failed requires errMsg; leaving failed clears the stored message.
func Transition(from, to UploadStatus, errMsg string) (UploadPatch, error) {
	if !CanTransition(from, to) {
		return UploadPatch{}, &InvalidTransitionError{From: from, To: to}
	}
	patch := UploadPatch{Status: Some(to)}
	switch {
	case to == StatusFailed:
		errMsg = strings.TrimSpace(errMsg)
		if errMsg == "" {
			return UploadPatch{}, Validation("errorMessage is required when entering failed")
		}
		patch.ErrorMessage = Some(errMsg)
	case from == StatusFailed:
		patch.ErrorMessage = Some("")
	}
	return patch, nil
}
