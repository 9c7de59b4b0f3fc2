package survey

import "fmt"

// Describe renders the differences between two drafts as short
// human-readable sentences for the activity log. Unchanged sections
// produce nothing.
func Describe(before, after Draft) []string {
	var out []string
	if before.Name != after.Name {
		if before.Name == "" {
			out = append(out, fmt.Sprintf("named the survey %q", after.Name))
		} else {
			out = append(out, fmt.Sprintf("renamed the survey from %q to %q", before.Name, after.Name))
		}
	}
	if before.Description != after.Description {
		out = append(out, "updated the description")
	}
	if before.Kind != after.Kind {
		out = append(out, fmt.Sprintf("changed the survey type from %s to %s", before.Kind, after.Kind))
	}
	if d := len(after.Questions) - len(before.Questions); d != 0 {
		switch {
		case d == 1:
			out = append(out, "added a question")
		case d > 1:
			out = append(out, fmt.Sprintf("added %d questions", d))
		case d == -1:
			out = append(out, "removed a question")
		default:
			out = append(out, fmt.Sprintf("removed %d questions", -d))
		}
	} else if !sameQuestions(before.Questions, after.Questions) {
		out = append(out, "edited the questions")
	}
	if before.Schedule != after.Schedule ||
		before.IterationCount != after.IterationCount ||
		before.IterationFrequencyDays != after.IterationFrequencyDays {
		out = append(out, "set the schedule to "+describeSchedule(after))
	}
	if !sameConditions(before.Conditions, after.Conditions) {
		out = append(out, "updated the display conditions")
	}
	if !sameAppearance(before.Appearance, after.Appearance) {
		out = append(out, "updated the appearance")
	}
	if before.LinkedFlagKey != after.LinkedFlagKey {
		if after.LinkedFlagKey == "" {
			out = append(out, "unlinked the feature flag")
		} else {
			out = append(out, fmt.Sprintf("linked the feature flag %q", after.LinkedFlagKey))
		}
	}
	return out
}

func describeSchedule(d Draft) string {
	switch d.Schedule {
	case ScheduleRecurring:
		if d.IterationCount == 1 {
			return "recurring, one iteration"
		}
		return fmt.Sprintf("recurring, %d iterations every %d days", d.IterationCount, d.IterationFrequencyDays)
	case ScheduleAlways:
		return "always"
	default:
		return "once"
	}
}

func sameQuestions(a, b []Question) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || a[i].Question != b[i].Question ||
			a[i].Description != b[i].Description || a[i].Optional != b[i].Optional ||
			a[i].Link != b[i].Link || a[i].Scale != b[i].Scale ||
			a[i].Display != b[i].Display || len(a[i].Choices) != len(b[i].Choices) {
			return false
		}
		for j := range a[i].Choices {
			if a[i].Choices[j] != b[i].Choices[j] {
				return false
			}
		}
	}
	return true
}

func sameConditions(a, b *Conditions) bool {
	if (a == nil) != (b == nil) {
		// a freshly created empty block reads the same as no block
		if a == nil {
			a, b = b, a
		}
		return b == nil && conditionsEmpty(*a)
	}
	if a == nil {
		return true
	}
	if a.URL != b.URL || a.URLMatchType != b.URLMatchType || a.Selector != b.Selector ||
		a.WaitPeriodDays != b.WaitPeriodDays || a.LinkedFlagVariant != b.LinkedFlagVariant ||
		len(a.DeviceTypes) != len(b.DeviceTypes) {
		return false
	}
	for i := range a.DeviceTypes {
		if a.DeviceTypes[i] != b.DeviceTypes[i] {
			return false
		}
	}
	return sameEvents(a.Events, b.Events) && sameActions(a.Actions, b.Actions)
}

func conditionsEmpty(c Conditions) bool {
	return c.URL == "" && c.URLMatchType == "" && c.Selector == "" &&
		len(c.DeviceTypes) == 0 && c.Events == nil && c.Actions == nil &&
		c.WaitPeriodDays == 0 && c.LinkedFlagVariant == ""
}

func sameEvents(a, b *EventConditions) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	if a.RepeatedActivation != b.RepeatedActivation || len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if a.Values[i].Name != b.Values[i].Name || len(a.Values[i].Properties) != len(b.Values[i].Properties) {
			return false
		}
	}
	return true
}

func sameActions(a, b *ActionConditions) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	if len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			return false
		}
	}
	return true
}

func sameAppearance(a, b *Appearance) bool {
	if (a == nil) != (b == nil) {
		if a == nil {
			a, b = b, a
		}
		return b == nil && *a == Appearance{}
	}
	if a == nil {
		return true
	}
	x, y := *a, *b
	if (x.PopupDelaySeconds == nil) != (y.PopupDelaySeconds == nil) {
		return false
	}
	if x.PopupDelaySeconds != nil && *x.PopupDelaySeconds != *y.PopupDelaySeconds {
		return false
	}
	x.PopupDelaySeconds, y.PopupDelaySeconds = nil, nil
	return x == y
}
