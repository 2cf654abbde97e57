package recorder

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// PermissionGate guards Start behind the record permission and coalesces
// concurrent prompts into one.
type PermissionGate struct {
	perms Permissions
	group singleflight.Group
}

// NewPermissionGate returns a gate backed by perms.
func NewPermissionGate(perms Permissions) *PermissionGate {
	return &PermissionGate{perms: perms}
}

// Check returns the current permission status without prompting.
func (g *PermissionGate) Check() PermissionStatus {
	return g.perms.RecordPermission()
}

// Request prompts for access when the status is undetermined. When access was
// already decided the existing answer is returned and no prompt is shown.
func (g *PermissionGate) Request(ctx context.Context) (bool, error) {
	switch g.perms.RecordPermission() {
	case PermissionGranted:
		return true, nil
	case PermissionDenied:
		return false, nil
	}

	v, err, _ := g.group.Do("record", func() (any, error) {
		return g.perms.RequestRecordPermission(ctx)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// authorize never prompts; callers must request permission first.
func (g *PermissionGate) authorize() error {
	switch g.perms.RecordPermission() {
	case PermissionGranted:
		return nil
	case PermissionDenied:
		return ErrRecordPermissionIsDenied
	default:
		return ErrShouldRequestRecordPermission
	}
}
