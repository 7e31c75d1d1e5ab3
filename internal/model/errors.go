package model

import "errors"

var (
	ErrNotFound         = errors.New("resource not found")
	ErrAlreadyInstalled = errors.New("resource already installed")
	ErrDownloadFailed   = errors.New("download failed")
	ErrArchiveMalformed = errors.New("archive malformed")
	ErrNoMapEntry       = errors.New("archive contains no map file entry")
	ErrNoVoiceConfig    = errors.New("archive contains no voice pack config")
	ErrProbeFailed      = errors.New("map file probe failed")
	ErrUnknownType      = errors.New("unknown resource type")
	ErrInvalidResource  = errors.New("invalid resource")
)
