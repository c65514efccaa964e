package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound = errors.New("resource not found") // General not found

	// Generation Errors
	ErrGenerationInProgress = errors.New("generation is already in progress for this subject")
	ErrStateConflict        = errors.New("illegal generation status transition")
	ErrRemoteRejected       = errors.New("remote gamemaster service rejected the request")
	ErrTransient            = errors.New("transient error talking to gamemaster service")

	// Location Errors
	ErrLocationUnknown = errors.New("character location is not known locally or remotely")

	// Session Errors
	ErrEmptyIntroduction = errors.New("introduction message content is empty")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrInvalidInput   = errors.New("invalid input data")
)
