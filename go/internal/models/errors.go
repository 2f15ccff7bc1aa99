package models

import "errors"

var (
	// ErrInvalidInput is returned for malformed or missing request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRoomNotFound is returned when no room matches an id or join code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when a new player would exceed the room cap.
	ErrRoomFull = errors.New("room full")
	// ErrTeamFull is returned in strict mode when a team already has two players.
	ErrTeamFull = errors.New("team full")
	// ErrNotEnoughTeams is returned in strict mode when fewer than two teams are complete.
	ErrNotEnoughTeams = errors.New("not enough complete teams")
	// ErrIllegalAction marks stale or out-of-turn game actions. It never reaches callers.
	ErrIllegalAction = errors.New("illegal action")
	// ErrRoomClosed is returned when a room was closed while a request was in flight.
	ErrRoomClosed = errors.New("room closed")
)

// Code is a machine-readable error code for API responses.
type Code string

const (
	CodeUnknown        Code = "UNKNOWN"
	CodeInvalidInput   Code = "INVALID_INPUT"
	CodeRoomNotFound   Code = "ROOM_NOT_FOUND"
	CodeRoomFull       Code = "ROOM_FULL"
	CodeTeamFull       Code = "TEAM_FULL"
	CodeNotEnoughTeams Code = "NOT_ENOUGH_TEAMS"
)

// CodeOf maps an error chain to its API code.
func CodeOf(err error) Code {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrRoomClosed):
		return CodeRoomNotFound
	case errors.Is(err, ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, ErrTeamFull):
		return CodeTeamFull
	case errors.Is(err, ErrNotEnoughTeams):
		return CodeNotEnoughTeams
	default:
		return CodeUnknown
	}
}
