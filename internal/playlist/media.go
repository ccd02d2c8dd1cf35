// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playlist scans media directories into ordered playlists and renders
// the concat manifest consumed by the decode stage.
package playlist

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrEmptyDirectory means the directory holds no recognized media. Callers wait
// and rescan; it is never a hard failure.
var ErrEmptyDirectory = errors.New("no recognized media in directory")

// Kind selects the recognized extension set.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

var videoExts = map[string]struct{}{
	".mp4": {}, ".avi": {}, ".mkv": {}, ".mov": {}, ".wmv": {},
	".flv": {}, ".webm": {}, ".m4v": {}, ".mpg": {}, ".mpeg": {},
}

var audioExts = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".flac": {}, ".ogg": {}, ".m4a": {},
	".aac": {}, ".wma": {}, ".opus": {}, ".aiff": {}, ".alac": {},
}

// ParseKind accepts "video" or "audio".
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindVideo:
		return KindVideo, nil
	case KindAudio:
		return KindAudio, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", s)
	}
}

// Recognized reports whether name carries an extension of kind k.
// Matching is case-insensitive.
func (k Kind) Recognized(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch k {
	case KindVideo:
		_, ok := videoExts[ext]
		return ok
	case KindAudio:
		_, ok := audioExts[ext]
		return ok
	default:
		return false
	}
}

// IsVideo is shorthand for KindVideo.Recognized.
func IsVideo(name string) bool { return KindVideo.Recognized(name) }

// MediaItem is one file found by Scan. Identity is Path.
type MediaItem struct {
	Path         string
	Ext          string
	Size         int64
	DiscoveredAt time.Time
}

// Name returns the base file name.
func (m MediaItem) Name() string { return filepath.Base(m.Path) }
