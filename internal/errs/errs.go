package errs

import "errors"

// Доменные сентинель-ошибки: контроллеры и handlers маппят их в поведение/HTTP коды.
var (
	ErrExhibitionNotFound   = errors.New("exhibition not found")
	ErrExhibitionArchived   = errors.New("exhibition is archived")
	ErrInvalidToken         = errors.New("invalid media token format")
	ErrDeviceAccessDenied   = errors.New("camera/microphone access denied")
	ErrNotConnected         = errors.New("signaling not connected")
	ErrReconnectFailed      = errors.New("signaling reconnect attempts exhausted")
	ErrChatUnavailable      = errors.New("chat unavailable until stream is connected")
	ErrMessageTooLong       = errors.New("chat message exceeds length limit")
	ErrAlreadyLive          = errors.New("broadcast already in progress")
	ErrRecordingUnsupported = errors.New("local recording not supported")
)
