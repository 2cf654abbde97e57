package recorder

import "errors"

// Session errors are returned synchronously from Start.
var (
	ErrShouldRequestRecordPermission = errors.New("record permission has not been requested")
	ErrRecordPermissionIsDenied      = errors.New("record permission is denied")
	ErrMicrophoneDeviceNotFound      = errors.New("microphone device not found")
	ErrCannotAddMicrophoneInput      = errors.New("cannot add microphone input")
	ErrCannotAddAudioDataOutput      = errors.New("cannot add audio data output")

	// ErrAlreadyRunning is returned by Start while a session is recording.
	ErrAlreadyRunning = errors.New("recording session already running")

	// ErrInvalidConfiguration is returned by Start for a configuration that fails Validate.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Writer errors. ErrRuntime is only ever delivered through Delegate.OnError;
// ErrFinishWritingWithError is returned from Stop.
var (
	ErrCannotAddWriterInput   = errors.New("cannot add writer input")
	ErrCannotStartWriting     = errors.New("cannot start writing")
	ErrRuntime                = errors.New("runtime error while appending audio")
	ErrFinishWritingWithError = errors.New("finish writing failed")
)

// IsPermissionError reports whether err is one of the permission errors.
func IsPermissionError(err error) bool {
	return errors.Is(err, ErrShouldRequestRecordPermission) || errors.Is(err, ErrRecordPermissionIsDenied)
}
