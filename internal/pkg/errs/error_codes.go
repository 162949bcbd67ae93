/*
Package errs provides custom error types and application-level error code constants.

The codes identify business and system failures both inside the server and on the wire:
HTTP responses carry them in the JSON envelope, websocket failures carry the message text
in the "error" event.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnsupportedEvent indicates a websocket event name the server does not handle.
	ErrUnsupportedEvent = 1008
)

// 2xxx: Room and Game Errors
const (
	// ErrRoomOptionsInvalid indicates maxPlayers or maxRounds outside the allowed sets.
	ErrRoomOptionsInvalid = 2101

	// ErrRoomCodeExists indicates that the generated room code is already taken.
	ErrRoomCodeExists = 2102

	// ErrRoomNotFound indicates that no active room has the requested code.
	ErrRoomNotFound = 2103

	// ErrRoomIsFull indicates that the room has reached maxPlayers.
	ErrRoomIsFull = 2104

	// ErrNotInRoom indicates a room-scoped event from a session that has not joined a room.
	ErrNotInRoom = 2105

	// ErrMessageContentTooLong indicates that a chat message exceeded the maximum length.
	ErrMessageContentTooLong = 2201

	// ErrStrokeInvalid indicates a drawing stroke that failed validation.
	ErrStrokeInvalid = 2202
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates a missing or invalid session token.
	ErrUnauthorized = 3001

	// ErrHostMismatch indicates a room:create whose hostId is not the authenticated user.
	ErrHostMismatch = 3002

	// ErrInvalidUsername indicates a username outside the accepted pattern.
	ErrInvalidUsername = 3003
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrArchiveFailed indicates that a room's drawing history could not be archived.
	ErrArchiveFailed = 5001
)
