package domain

// ResolveOverallStatus derives a subject's overall status. It is pure: the
// result depends only on the groups, the override and the reverification hold.
func ResolveOverallStatus(subject *VerificationSubject) OverallStatus {
	if subject == nil {
		return OverallPending
	}
	switch subject.Kind {
	case SubjectKindPartner:
		return resolvePartner(subject)
	default:
		return resolveProperty(subject)
	}
}

func resolvePartner(subject *VerificationSubject) OverallStatus {
	identity := subject.Group(GroupKindIdentity)
	if identity == nil {
		return OverallNotSubmitted
	}
	switch identity.Status {
	case GroupStatusApproved:
		return OverallVerified
	case GroupStatusPending:
		return OverallPending
	case GroupStatusManualReview:
		return OverallManualReview
	case GroupStatusRejected:
		return OverallRejected
	default:
		return OverallNotSubmitted
	}
}

func resolveProperty(subject *VerificationSubject) OverallStatus {
	if subject.Override != nil && subject.Override.Status.IsOverrideStatus() {
		return subject.Override.Status
	}
	if len(subject.Groups) == 0 {
		return OverallPending
	}

	allApproved := true
	for _, group := range subject.Groups {
		if group.Status == GroupStatusRejected {
			return OverallRejected
		}
		if group.Status != GroupStatusApproved {
			allApproved = false
		}
	}
	if subject.ReverificationHold || !allApproved {
		return OverallPending
	}
	return OverallVerified
}
