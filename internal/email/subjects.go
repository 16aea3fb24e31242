package email

const (
	subjectLeadBroadcastFmt = "New lead available: %s"
	subjectExecutionDueFmt  = "Follow-up due: %s for %s"
	subjectClaimExpiredFmt  = "Lead went unclaimed: %s"
)
