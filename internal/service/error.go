package service

import "errors"

// Error definitions for the service package.
var (
	ErrNoAudio     = errors.New("no audio uploaded")
	ErrNoSpeech    = errors.New("whisper could not detect speech")
	ErrEmptyPrompt = errors.New("prompt is empty")
)
