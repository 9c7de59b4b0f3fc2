package survey

// The draft model is a plain value. Patch operations take a draft by value
// and return the patched copy, so two patches touching disjoint fields can
// be applied in either order with the same result.

// URLMatchType selects how Conditions.URL is compared against the page URL.
type URLMatchType string

const (
	URLMatchExact     URLMatchType = "exact"
	URLMatchIContains URLMatchType = "icontains"
	URLMatchRegex     URLMatchType = "regex"
)

// PropertyFilter narrows an event trigger to events carrying a property value.
type PropertyFilter struct {
	Key      string `json:"key"`
	Operator string `json:"operator" enum:"exact,icontains,regex,is_set"`
	Value    string `json:"value,omitempty"`
}

// EventTrigger shows the survey when a named product event fires.
type EventTrigger struct {
	Name       string           `json:"name"`
	Properties []PropertyFilter `json:"properties,omitempty"`
}

// EventConditions groups event-based triggers. RepeatedActivation re-shows
// the survey each time a trigger fires instead of once per user.
type EventConditions struct {
	Values             []EventTrigger `json:"values"`
	RepeatedActivation bool           `json:"repeated_activation,omitempty"`
}

// ActionConditions triggers the survey when the user completes a funnel
// action. Action-triggered surveys must carry a popup delay so the survey
// does not interrupt the step that triggered it.
type ActionConditions struct {
	Values []string `json:"values"`
}

// Conditions is the display-targeting block of a draft. Every field is
// optional; an empty Conditions matches everywhere.
type Conditions struct {
	URL               string            `json:"url,omitempty"`
	URLMatchType      URLMatchType      `json:"url_match_type,omitempty" enum:"exact,icontains,regex"`
	Selector          string            `json:"selector,omitempty"`
	DeviceTypes       []string          `json:"device_types,omitempty"`
	Events            *EventConditions  `json:"events,omitempty"`
	Actions           *ActionConditions `json:"actions,omitempty"`
	WaitPeriodDays    int               `json:"wait_period_days,omitempty"`
	LinkedFlagVariant string            `json:"linked_flag_variant,omitempty"`
}

// Appearance controls how the rendered survey looks in the product.
type Appearance struct {
	BackgroundColor   string `json:"background_color,omitempty"`
	BorderColor       string `json:"border_color,omitempty"`
	ButtonColor       string `json:"button_color,omitempty"`
	ButtonTextColor   string `json:"button_text_color,omitempty"`
	ButtonText        string `json:"button_text,omitempty"`
	Position          string `json:"position,omitempty" enum:"left,center,right"`
	PopupDelaySeconds *int   `json:"popup_delay_seconds,omitempty"`
	DisplayThankYou   bool   `json:"display_thank_you,omitempty"`
	ThankYouHeader    string `json:"thank_you_header,omitempty"`
}

// ScheduleKind says how often a launched survey activates per user.
type ScheduleKind string

const (
	ScheduleOnce      ScheduleKind = "once"
	ScheduleRecurring ScheduleKind = "recurring"
	ScheduleAlways    ScheduleKind = "always"
)

// SurveyKind is the delivery mechanism of a survey.
type SurveyKind string

const (
	KindPopover      SurveyKind = "popover"
	KindWidget       SurveyKind = "widget"
	KindAPI          SurveyKind = "api"
	KindAnnouncement SurveyKind = "announcement"
)

// Draft is the in-progress survey configuration. A nil Conditions or
// Appearance means the section was never touched.
type Draft struct {
	Name                   string       `json:"name"`
	Description            string       `json:"description,omitempty"`
	Kind                   SurveyKind   `json:"kind" enum:"popover,widget,api,announcement"`
	Title                  string       `json:"title,omitempty"`
	Questions              []Question   `json:"questions,omitempty"`
	Conditions             *Conditions  `json:"conditions,omitempty"`
	Appearance             *Appearance  `json:"appearance,omitempty"`
	Schedule               ScheduleKind `json:"schedule" enum:"once,recurring,always"`
	IterationCount         int          `json:"iteration_count,omitempty"`
	IterationFrequencyDays int          `json:"iteration_frequency_days,omitempty"`
	LinkedFlagKey          string       `json:"linked_flag_key,omitempty"`
}

// NewDraft returns an empty popover draft shown once per user.
func NewDraft() Draft {
	return Draft{Kind: KindPopover, Schedule: ScheduleOnce}
}

// Patch carries top-level field replacements. Nil fields are left alone.
type Patch struct {
	Name                   *string       `json:"name,omitempty"`
	Description            *string       `json:"description,omitempty"`
	Kind                   *SurveyKind   `json:"kind,omitempty" enum:"popover,widget,api,announcement"`
	Title                  *string       `json:"title,omitempty"`
	Questions              *[]Question   `json:"questions,omitempty"`
	Schedule               *ScheduleKind `json:"schedule,omitempty" enum:"once,recurring,always"`
	IterationCount         *int          `json:"iteration_count,omitempty"`
	IterationFrequencyDays *int          `json:"iteration_frequency_days,omitempty"`
	LinkedFlagKey          *string       `json:"linked_flag_key,omitempty"`
}

// Apply returns a copy of the draft with the patch applied and the schedule
// fields normalized. The receiver is never mutated.
func (d Draft) Apply(p Patch) Draft {
	out := d.clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Kind != nil {
		out.Kind = *p.Kind
	}
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Questions != nil {
		out.Questions = cloneQuestions(*p.Questions)
	}
	if p.Schedule != nil {
		out.Schedule = *p.Schedule
	}
	if p.IterationCount != nil {
		out.IterationCount = *p.IterationCount
	}
	if p.IterationFrequencyDays != nil {
		out.IterationFrequencyDays = *p.IterationFrequencyDays
	}
	if p.LinkedFlagKey != nil {
		out.LinkedFlagKey = *p.LinkedFlagKey
	}
	return out.Normalized()
}

// ConditionsPatch shallow-merges into the conditions block. Nil fields are
// left alone; other sections of the draft never change.
type ConditionsPatch struct {
	URL               *string           `json:"url,omitempty"`
	URLMatchType      *URLMatchType     `json:"url_match_type,omitempty" enum:"exact,icontains,regex"`
	Selector          *string           `json:"selector,omitempty"`
	DeviceTypes       *[]string         `json:"device_types,omitempty"`
	Events            *EventConditions  `json:"events,omitempty"`
	Actions           *ActionConditions `json:"actions,omitempty"`
	WaitPeriodDays    *int              `json:"wait_period_days,omitempty"`
	LinkedFlagVariant *string           `json:"linked_flag_variant,omitempty"`
}

// ApplyConditions merges the patch into the draft's conditions, creating
// the block on first use.
func (d Draft) ApplyConditions(p ConditionsPatch) Draft {
	out := d.clone()
	c := Conditions{}
	if out.Conditions != nil {
		c = *out.Conditions
	}
	if p.URL != nil {
		c.URL = *p.URL
	}
	if p.URLMatchType != nil {
		c.URLMatchType = *p.URLMatchType
	}
	if p.Selector != nil {
		c.Selector = *p.Selector
	}
	if p.DeviceTypes != nil {
		dts := make([]string, len(*p.DeviceTypes))
		copy(dts, *p.DeviceTypes)
		c.DeviceTypes = dts
	}
	if p.Events != nil {
		ev := *p.Events
		ev.Values = append([]EventTrigger(nil), ev.Values...)
		c.Events = &ev
	}
	if p.Actions != nil {
		ac := *p.Actions
		ac.Values = append([]string(nil), ac.Values...)
		c.Actions = &ac
	}
	if p.WaitPeriodDays != nil {
		c.WaitPeriodDays = *p.WaitPeriodDays
	}
	if p.LinkedFlagVariant != nil {
		c.LinkedFlagVariant = *p.LinkedFlagVariant
	}
	out.Conditions = &c
	return out
}

// AppearancePatch shallow-merges into the appearance block.
type AppearancePatch struct {
	BackgroundColor   *string `json:"background_color,omitempty"`
	BorderColor       *string `json:"border_color,omitempty"`
	ButtonColor       *string `json:"button_color,omitempty"`
	ButtonTextColor   *string `json:"button_text_color,omitempty"`
	ButtonText        *string `json:"button_text,omitempty"`
	Position          *string `json:"position,omitempty" enum:"left,center,right"`
	PopupDelaySeconds *int    `json:"popup_delay_seconds,omitempty"`
	DisplayThankYou   *bool   `json:"display_thank_you,omitempty"`
	ThankYouHeader    *string `json:"thank_you_header,omitempty"`
}

// ApplyAppearance merges the patch into the draft's appearance, creating
// the block on first use.
func (d Draft) ApplyAppearance(p AppearancePatch) Draft {
	out := d.clone()
	a := Appearance{}
	if out.Appearance != nil {
		a = *out.Appearance
	}
	if p.BackgroundColor != nil {
		a.BackgroundColor = *p.BackgroundColor
	}
	if p.BorderColor != nil {
		a.BorderColor = *p.BorderColor
	}
	if p.ButtonColor != nil {
		a.ButtonColor = *p.ButtonColor
	}
	if p.ButtonTextColor != nil {
		a.ButtonTextColor = *p.ButtonTextColor
	}
	if p.ButtonText != nil {
		a.ButtonText = *p.ButtonText
	}
	if p.Position != nil {
		a.Position = *p.Position
	}
	if p.PopupDelaySeconds != nil {
		v := *p.PopupDelaySeconds
		a.PopupDelaySeconds = &v
	}
	if p.DisplayThankYou != nil {
		a.DisplayThankYou = *p.DisplayThankYou
	}
	if p.ThankYouHeader != nil {
		a.ThankYouHeader = *p.ThankYouHeader
	}
	out.Appearance = &a
	return out
}

// Normalized enforces the schedule invariant: recurring surveys carry an
// iteration count and frequency of at least 1, every other schedule carries
// zeroes.
func (d Draft) Normalized() Draft {
	switch d.Schedule {
	case ScheduleRecurring:
		if d.IterationCount < 1 {
			d.IterationCount = 1
		}
		if d.IterationFrequencyDays < 1 {
			d.IterationFrequencyDays = 1
		}
	default:
		d.IterationCount = 0
		d.IterationFrequencyDays = 0
	}
	for i, q := range d.Questions {
		if q.Type == QuestionRating && q.Scale == 0 {
			// Copy on write so callers holding the old slice keep it.
			d.Questions = cloneQuestions(d.Questions)
			d.Questions[i].Scale = defaultRatingScale
			if d.Questions[i].Display == "" {
				d.Questions[i].Display = QuestionDisplayNumber
			}
		}
	}
	return d
}

func (d Draft) clone() Draft {
	out := d
	out.Questions = cloneQuestions(d.Questions)
	if d.Conditions != nil {
		c := *d.Conditions
		if c.DeviceTypes != nil {
			c.DeviceTypes = append([]string(nil), c.DeviceTypes...)
		}
		if c.Events != nil {
			ev := *c.Events
			ev.Values = append([]EventTrigger(nil), ev.Values...)
			c.Events = &ev
		}
		if c.Actions != nil {
			ac := *c.Actions
			ac.Values = append([]string(nil), ac.Values...)
			c.Actions = &ac
		}
		out.Conditions = &c
	}
	if d.Appearance != nil {
		a := *d.Appearance
		if a.PopupDelaySeconds != nil {
			v := *a.PopupDelaySeconds
			a.PopupDelaySeconds = &v
		}
		out.Appearance = &a
	}
	return out
}
