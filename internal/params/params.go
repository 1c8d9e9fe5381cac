// Package params holds the process-wide depth tuning state shared
// between the pipeline and the control channel.
package params

import "sync"

// minClampGap keeps the clamp interval non-empty when a write would
// collapse or invert it.
const minClampGap = 0.001

// Set is one consistent view of the tunables. EMAAlpha of 0 is accepted
// and freezes the smoothed surface; 1 disables smoothing entirely.
type Set struct {
	EMAAlpha  float64 `json:"ema_alpha"`
	ClampNear float64 `json:"clamp_near"`
	ClampFar  float64 `json:"clamp_far"`
}

// Store is a single-writer store with copy-snapshot reads. The pipeline
// takes one Snapshot per iteration so a frame never mixes old and new
// clamp bounds mid-computation.
type Store struct {
	mu  sync.RWMutex
	cur Set
}

func NewStore(initial Set) *Store {
	return &Store{cur: correct(initial)}
}

// Snapshot returns the current Set by value.
func (s *Store) Snapshot() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies the provided fields (nil means keep), corrects the
// result and returns the stored Set.
func (s *Store) Update(alpha, near, far *float64) Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cur
	if alpha != nil {
		next.EMAAlpha = *alpha
	}
	if near != nil {
		next.ClampNear = *near
	}
	if far != nil {
		next.ClampFar = *far
	}
	s.cur = correct(next)
	return s.cur
}

func correct(p Set) Set {
	if p.EMAAlpha < 0 {
		p.EMAAlpha = 0
	}
	if p.EMAAlpha > 1 {
		p.EMAAlpha = 1
	}
	if p.ClampFar <= p.ClampNear {
		p.ClampFar = p.ClampNear + minClampGap
	}
	return p
}
