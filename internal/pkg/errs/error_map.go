package errs

import "net/http"

// errorMap holds the template CustomError for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters."},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format."},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format."},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data."},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnsupportedEvent:     {Code: ErrUnsupportedEvent, Message: "Unsupported event %q."},

	// 2xxx
	ErrRoomOptionsInvalid:    {Code: ErrRoomOptionsInvalid, Message: "Invalid room settings."},
	ErrRoomCodeExists:        {Code: ErrRoomCodeExists, Message: "Room code already exists."},
	ErrRoomNotFound:          {Code: ErrRoomNotFound, Message: "Room not found."},
	ErrRoomIsFull:            {Code: ErrRoomIsFull, Message: "Room is full."},
	ErrNotInRoom:             {Code: ErrNotInRoom, Message: "Join a room first."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrStrokeInvalid:         {Code: ErrStrokeInvalid, Message: "Invalid stroke."},

	// 3xxx
	ErrUnauthorized:    {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrHostMismatch:    {Code: ErrHostMismatch, Message: "You can only create rooms for yourself."},
	ErrInvalidUsername: {Code: ErrInvalidUsername, Message: "Invalid username."},

	// 5xxx
	ErrUnknown:       {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrArchiveFailed: {Code: ErrArchiveFailed, Message: "Drawing archive failed."},
}
