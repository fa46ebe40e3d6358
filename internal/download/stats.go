package download

import "sync"

// Stats holds the batch counters.
//
// total counts (song, playlist) pairs. skipped and private count pairs too;
// downloaded and errors count jobs, and every finished job settles as many
// pairs as it has targets.
type Stats struct {
	mu         sync.Mutex
	downloaded int64
	skipped    int64
	private    int64
	errors     int64
	total      int64
	settled    int64
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	Downloaded int64 `json:"downloaded"`
	Skipped    int64 `json:"skipped"`
	Private    int64 `json:"private"`
	Errors     int64 `json:"errors"`
	Total      int64 `json:"total"`
	Settled    int64 `json:"settled"`
}

// Remaining is the number of pairs not yet accounted for
func (s Snapshot) Remaining() int64 {
	return s.Total - s.Settled
}

// Stored counts pairs whose file is on disk
func (s Snapshot) Stored() int64 {
	return s.Skipped + s.Downloaded
}

// SetTotal sets the number of pairs in the batch
func (s *Stats) SetTotal(n int64) {
	s.mu.Lock()
	s.total = n
	s.mu.Unlock()
}

// AddSkipped settles n pairs already present on disk
func (s *Stats) AddSkipped(n int64) {
	s.mu.Lock()
	s.skipped += n
	s.settled += n
	s.mu.Unlock()
}

// AddPrivate settles n pairs of an unavailable song
func (s *Stats) AddPrivate(n int64) {
	s.mu.Lock()
	s.private += n
	s.settled += n
	s.mu.Unlock()
}

// JobDone records a job that placed all of its weight targets
func (s *Stats) JobDone(weight int64) {
	s.mu.Lock()
	s.downloaded++
	s.settled += weight
	s.mu.Unlock()
}

// JobFailed records a failed job covering weight pairs
func (s *Stats) JobFailed(weight int64) {
	s.mu.Lock()
	s.errors++
	s.settled += weight
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of the counters
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Downloaded: s.downloaded,
		Skipped:    s.skipped,
		Private:    s.private,
		Errors:     s.errors,
		Total:      s.total,
		Settled:    s.settled,
	}
}
