package ledger

// Recorder receives ledger outcomes for metrics.
type Recorder interface {
	RecordVote(kind, status string)
	RecordUnlock(category, result string)
	RecordReconcile(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordVote(string, string)   {}
func (nopRecorder) RecordUnlock(string, string) {}
func (nopRecorder) RecordReconcile(string)      {}
