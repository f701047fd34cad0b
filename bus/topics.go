package bus

// Topics published by the agent. Payload types live in luxmon-go/types.
var (
	TopicReading = T("lux", "reading")   // types.Reading
	TopicSkipped = T("lux", "skipped")   // types.Skip
	TopicWindow  = T("lux", "window")    // retained exposure.Snapshot
	TopicSummary = T("lux", "summary")   // retained exposure.Summary
	TopicLink    = T("link", "state")    // retained types.LinkState
	TopicSync    = T("time", "sync")     // types.SyncResult
	TopicSession = T("session", "state") // retained types.SessionState
	TopicTick    = T("agent", "tick")
)
