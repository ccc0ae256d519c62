package ports

// SyncMetrics receives counters from the synchronization core. Implementations must be
// safe for concurrent use.
type SyncMetrics interface {
	RemoteWrite(entity, op, outcome string)
	EchoSuppressed(table Table)
	RemoteChange(table Table, event ChangeEvent, applied bool)
	Resubscribed()
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) RemoteWrite(string, string, string)    {}
func (NopMetrics) EchoSuppressed(Table)                  {}
func (NopMetrics) RemoteChange(Table, ChangeEvent, bool) {}
func (NopMetrics) Resubscribed()                         {}
