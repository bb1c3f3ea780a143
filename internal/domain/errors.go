package domain

import (
	"errors"
	"fmt"
)

// Классы ошибок. Конкретные ошибки оборачивают один из них,
// транспорт маппит по errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
)

var (
	ErrChatNotFound    = kindError{kind: ErrNotFound, msg: "chat not found"}
	ErrMessageNotFound = kindError{kind: ErrNotFound, msg: "message not found"}
	ErrNotParticipant  = kindError{kind: ErrForbidden, msg: "sender is not a participant of the chat"}
	ErrEmptyContent    = kindError{kind: ErrInvalidArgument, msg: "message content is empty"}
	ErrInvalidCursor   = kindError{kind: ErrInvalidArgument, msg: "invalid cursor"}
	ErrChatExists      = kindError{kind: ErrConflict, msg: "chat already exists"}
)

type kindError struct {
	kind error
	msg  string
}

func (e kindError) Error() string { return e.msg }
func (e kindError) Unwrap() error { return e.kind }

// Invalidf собирает InvalidArgument с подробностями по полю.
func Invalidf(format string, args ...any) error {
	return kindError{kind: ErrInvalidArgument, msg: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...any) error {
	return kindError{kind: ErrForbidden, msg: fmt.Sprintf(format, args...)}
}

func Unauthenticatedf(format string, args ...any) error {
	return kindError{kind: ErrUnauthenticated, msg: fmt.Sprintf(format, args...)}
}

// IsPublic: ошибка из таксономии, её текст можно отдавать клиенту.
func IsPublic(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnauthenticated)
}

// PublicMessage: текст для клиента; внутренние ошибки не раскрываются.
func PublicMessage(err error) string {
	if IsPublic(err) {
		return err.Error()
	}
	return "internal error"
}
