package transfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// ProgressTracker tracks the progress of running transfers for display.
type ProgressTracker struct {
	transfers map[string]*TransferProgress
	interval  time.Duration
	log       *logrus.Entry
	now       func() time.Time
	mu        sync.RWMutex
}

// TransferProgress represents the progress of a single transfer
type TransferProgress struct {
	TransferID     string
	FileName       string
	Status         TransferStatus
	BytesLoaded    int64
	TotalBytes     int64
	StartTime      time.Time
	LastUpdateTime time.Time
	Speed          float64 // bytes per second
	EstimatedTime  time.Duration

	lastLogged time.Time
}

// Percent returns the completed share in [0, 100].
func (p TransferProgress) Percent() float64 {
	if p.TotalBytes <= 0 {
		if p.Status == StatusCompleted {
			return 100
		}
		return 0
	}
	return float64(p.BytesLoaded) / float64(p.TotalBytes) * 100.0
}

// String renders a one-line summary.
func (p TransferProgress) String() string {
	s := fmt.Sprintf("%s %s: %s/%s (%.1f%%)", p.Status, p.FileName,
		humanize.IBytes(uint64(p.BytesLoaded)), humanize.IBytes(uint64(p.TotalBytes)), p.Percent())
	if p.Speed > 0 {
		s += fmt.Sprintf(" %s/s", humanize.IBytes(uint64(p.Speed)))
	}
	if p.EstimatedTime > 0 {
		s += fmt.Sprintf(" ETA %s", p.EstimatedTime.Round(time.Second))
	}
	return s
}

// NewProgressTracker creates a tracker that logs each transfer at most once per
// interval, plus its final state.
func NewProgressTracker(log *logrus.Entry, interval time.Duration) *ProgressTracker {
	return &ProgressTracker{
		transfers: make(map[string]*TransferProgress),
		interval:  interval,
		log:       log,
		now:       time.Now,
	}
}

// StartTracking starts tracking a new transfer
func (pt *ProgressTracker) StartTracking(transferID, fileName string, totalBytes int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	now := pt.now()
	pt.transfers[transferID] = &TransferProgress{
		TransferID:     transferID,
		FileName:       fileName,
		Status:         StatusActive,
		TotalBytes:     totalBytes,
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// UpdateProgress records the bytes observed by the puller.
func (pt *ProgressTracker) UpdateProgress(transferID string, loaded, total int64) {
	pt.mu.Lock()
	progress, exists := pt.transfers[transferID]
	if !exists {
		pt.mu.Unlock()
		return
	}

	now := pt.now()
	progress.BytesLoaded = loaded
	progress.TotalBytes = total
	progress.LastUpdateTime = now

	// Calculate speed
	if elapsed := now.Sub(progress.StartTime).Seconds(); elapsed > 0 {
		progress.Speed = float64(loaded) / elapsed
	}

	// Calculate estimated time remaining
	progress.EstimatedTime = 0
	if progress.Speed > 0 && total > loaded {
		progress.EstimatedTime = time.Duration(float64(total-loaded) / progress.Speed * float64(time.Second))
	}

	shouldLog := pt.log != nil && (now.Sub(progress.lastLogged) >= pt.interval || loaded == total)
	if shouldLog {
		progress.lastLogged = now
	}
	snapshot := *progress
	pt.mu.Unlock()

	if shouldLog {
		pt.log.WithField("transfer_id", transferID).Info("📦 " + snapshot.String())
	}
}

// Func returns a ProgressFunc feeding this tracker.
func (pt *ProgressTracker) Func(transferID string) ProgressFunc {
	return func(loaded, total int64) {
		pt.UpdateProgress(transferID, loaded, total)
	}
}

// FinishTracking records the terminal status and stops tracking the transfer.
func (pt *ProgressTracker) FinishTracking(transferID string, status TransferStatus) (TransferProgress, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	progress, exists := pt.transfers[transferID]
	if !exists {
		return TransferProgress{}, false
	}
	progress.Status = status
	progress.EstimatedTime = 0
	delete(pt.transfers, transferID)
	return *progress, true
}

// GetProgress returns a snapshot of a transfer's progress.
func (pt *ProgressTracker) GetProgress(transferID string) (TransferProgress, bool) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	progress, exists := pt.transfers[transferID]
	if !exists {
		return TransferProgress{}, false
	}
	return *progress, true
}

// GetAllProgress gets progress for all active transfers
func (pt *ProgressTracker) GetAllProgress() map[string]TransferProgress {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	result := make(map[string]TransferProgress, len(pt.transfers))
	for id, progress := range pt.transfers {
		result[id] = *progress
	}
	return result
}
