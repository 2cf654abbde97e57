package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"hls-recorder/internal/recorder"
)

// Prompter asks whoever owns the device for record access.
type Prompter func(ctx context.Context) (bool, error)

// Permissions is a process-local record permission store. An undetermined
// status is resolved by the prompter on the first request.
type Permissions struct {
	mu     sync.Mutex
	status recorder.PermissionStatus
	prompt Prompter
}

// NewPermissions returns a store starting at status. A nil prompter answers
// every request with a grant.
func NewPermissions(status recorder.PermissionStatus, prompt Prompter) *Permissions {
	if prompt == nil {
		prompt = func(context.Context) (bool, error) { return true, nil }
	}
	return &Permissions{status: status, prompt: prompt}
}

// ParsePermission maps "granted", "denied" or "prompt" to a status.
func ParsePermission(s string) (recorder.PermissionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "granted":
		return recorder.PermissionGranted, nil
	case "denied":
		return recorder.PermissionDenied, nil
	case "prompt", "":
		return recorder.PermissionUndetermined, nil
	default:
		return recorder.PermissionUndetermined, fmt.Errorf("unknown record permission %q", s)
	}
}

func (p *Permissions) RecordPermission() recorder.PermissionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Permissions) RequestRecordPermission(ctx context.Context) (bool, error) {
	p.mu.Lock()
	switch p.status {
	case recorder.PermissionGranted:
		p.mu.Unlock()
		return true, nil
	case recorder.PermissionDenied:
		p.mu.Unlock()
		return false, nil
	}
	p.mu.Unlock()

	granted, err := p.prompt(ctx)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == recorder.PermissionUndetermined {
		if granted {
			p.status = recorder.PermissionGranted
		} else {
			p.status = recorder.PermissionDenied
		}
	}
	return p.status == recorder.PermissionGranted, nil
}
