package survey

import "fmt"

// BlockedReason explains why a draft cannot be submitted yet. The empty
// string means the draft is submittable. Checks run in a fixed order so the
// first problem a user would hit is the one reported.
func (d Draft) BlockedReason() string {
	if d.Name == "" {
		return "The survey needs a name."
	}
	if d.Kind == KindAnnouncement {
		if d.Title == "" {
			return "Announcements need a title."
		}
		if d.Appearance == nil || d.Appearance.ButtonText == "" {
			return "Announcements need button text."
		}
	} else {
		if len(d.Questions) == 0 {
			return "The survey needs at least one question."
		}
		for i, q := range d.Questions {
			if q.Question == "" {
				return fmt.Sprintf("Question %d needs text.", i+1)
			}
			if err := q.Validate(); err != nil {
				return fmt.Sprintf("Question %d is incomplete: %s.", i+1, err)
			}
		}
	}
	if d.Conditions != nil && d.Conditions.Actions != nil && len(d.Conditions.Actions.Values) > 0 {
		if d.Appearance == nil || d.Appearance.PopupDelaySeconds == nil {
			return "Surveys triggered by actions need a popup delay."
		}
	}
	if d.Conditions != nil && d.Conditions.URLMatchType == URLMatchRegex && d.Conditions.URL == "" {
		return "A URL pattern is required when matching by regex."
	}
	return ""
}

// Submittable reports whether the draft passes the submission gate.
func (d Draft) Submittable() bool {
	return d.BlockedReason() == ""
}
