package model

// SelectionDecision is the structured output of the Selector port:
// a starting set sized to the trip, ranked backups per starting POI,
// and rejections with reasons.
type SelectionDecision struct {
	StartingPOIs     []string                     `json:"starting_pois"`
	BackupPOIs       map[string][]BackupCandidate `json:"backup_pois"`
	RejectedPOIs     []Rejection                  `json:"rejected_pois"`
	ReasoningSummary string                       `json:"reasoning_summary,omitempty"`
}

// Starting reports whether name is in the starting set (case preserved
// as returned by the selector; callers compare canonical names).
func (d *SelectionDecision) Starting(name string) bool {
	for _, s := range d.StartingPOIs {
		if s == name {
			return true
		}
	}
	return false
}
