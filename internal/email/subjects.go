package email

const (
	subjectBroadcastOfferFmt = "New %s lead available: claim it first"
	subjectClaimBreachFmt    = "[Admin] Lead unclaimed after %d minutes"
	subjectContactBreachFmt  = "[Admin] %s claimed a lead but didn't call"
	subjectReassignedFmt     = "Lead reassigned to you: %s"
	subjectDirectAssignedFmt = "New lead assigned to you: %s"
	finalWarningNotice       = "Final warning: admin escalation in 1 minute"
	contactTimerBannerFmt    = "Your %d-minute contact timer has started. Call the lead now."
	defaultLeadDisplayName   = "Website visitor"
	alarmSubjectPrefixLevel1 = "[Lead waiting]"
	alarmSubjectPrefixLevel2 = "[Reminder]"
	alarmSubjectPrefixLevel3 = "[Urgent]"
	alarmSubjectPrefixLevel4 = "[FINAL WARNING]"
	alarmSubjectBodyFmt      = "%s %s lead unclaimed for %d min"
)
