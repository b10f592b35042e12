package domain

// coreIdentityFields are non-document property fields that were part of the
// operator's review basis.
var coreIdentityFields = map[string]struct{}{
	"legal_name":          {},
	"address":             {},
	"registration_number": {},
	"tax_id":              {},
	"bank_account":        {},
}

// CanEdit reports whether the submitter may upload into group.
func CanEdit(group *DocumentGroup) bool {
	if group == nil {
		return false
	}
	return group.Status == GroupStatusNotSubmitted || group.Status == GroupStatusRejected
}

// CanSubmit adds the subject-level checks to CanEdit: the group must exist and
// a suspended subject accepts no uploads.
func CanSubmit(subject *VerificationSubject, kind GroupKind) bool {
	if subject == nil || subject.IsSuspended() {
		return false
	}
	return CanEdit(subject.Group(kind))
}

// CanToggleListing reports whether a property's listed flag may change.
// Verification status plays no part here.
func CanToggleListing(subject *VerificationSubject) bool {
	if subject == nil || subject.Kind != SubjectKindProperty {
		return false
	}
	return subject.OnboardingCompleted
}

// RequiresReverification reports whether editing field on a verified subject
// must send it back to pending.
func RequiresReverification(subject *VerificationSubject, field string) bool {
	if subject == nil {
		return false
	}
	if _, ok := coreIdentityFields[field]; ok {
		return true
	}
	kind, err := ParseGroupKind(field)
	if err != nil {
		return false
	}
	return subject.Group(kind) != nil
}
