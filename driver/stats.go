package driver

import (
	"time"

	"go.uber.org/atomic"
)

// Stats describes what a capture driver has done since it was created.
type Stats struct {
	SessionID string       `json:"session_id"`
	State     WorkerState  `json:"state"`
	Capture   CaptureState `json:"capture"`

	FramesRead    uint64 `json:"frames_read"`
	FramesSkipped uint64 `json:"frames_skipped"`
	ReadErrors    uint64 `json:"read_errors"`
	PosesFound    uint64 `json:"poses_found"`
	PosesMissed   uint64 `json:"poses_missed"`

	Frames       FrameSlotStats `json:"frames"`
	Orientations uint64         `json:"orientations"`
	LastFrameAt  time.Time      `json:"last_frame_at"`
}

type captureStats struct {
	read        atomic.Uint64
	skipped     atomic.Uint64
	readErrors  atomic.Uint64
	posesFound  atomic.Uint64
	posesMissed atomic.Uint64
	lastFrame   atomic.Time
}
