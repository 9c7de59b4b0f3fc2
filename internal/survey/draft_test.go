package survey

import (
	"reflect"
	"strings"
	"testing"
)

func strp(s string) *string { return &s }
func intp(n int) *int       { return &n }

func TestApplyNormalizesRecurringSchedule(t *testing.T) {
	sched := ScheduleRecurring
	d := NewDraft().Apply(Patch{Schedule: &sched})
	if d.IterationCount != 1 || d.IterationFrequencyDays != 1 {
		t.Fatalf("recurring defaults = %d/%d, want 1/1", d.IterationCount, d.IterationFrequencyDays)
	}

	d = d.Apply(Patch{IterationCount: intp(4), IterationFrequencyDays: intp(30)})
	if d.IterationCount != 4 || d.IterationFrequencyDays != 30 {
		t.Fatalf("iterations = %d/%d, want 4/30", d.IterationCount, d.IterationFrequencyDays)
	}

	once := ScheduleOnce
	d = d.Apply(Patch{Schedule: &once})
	if d.IterationCount != 0 || d.IterationFrequencyDays != 0 {
		t.Fatalf("once schedule kept iterations %d/%d, want 0/0", d.IterationCount, d.IterationFrequencyDays)
	}

	always := ScheduleAlways
	d = d.Apply(Patch{Schedule: &always, IterationCount: intp(9)})
	if d.IterationCount != 0 {
		t.Fatalf("always schedule kept iteration count %d, want 0", d.IterationCount)
	}
}

func TestApplyDefaultsRatingScale(t *testing.T) {
	d := NewDraft().Apply(Patch{
		Name:      strp("NPS"),
		Questions: &[]Question{{Type: QuestionRating, Question: "Q?"}},
	})
	q := d.Questions[0]
	if q.Scale != 5 || q.Display != QuestionDisplayNumber {
		t.Fatalf("rating defaults = scale %d display %q, want 5/number", q.Scale, q.Display)
	}
	if !d.Submittable() {
		t.Fatalf("defaulted rating draft blocked: %q", d.BlockedReason())
	}
}

func TestAlwaysScheduleIndependentOfRepeatedActivation(t *testing.T) {
	always := ScheduleAlways
	d := NewDraft().
		Apply(Patch{Name: strp("Bug reporter"), Schedule: &always}).
		ApplyConditions(ConditionsPatch{Events: &EventConditions{
			Values:             []EventTrigger{{Name: "error shown"}},
			RepeatedActivation: true,
		}})
	if d.Schedule != ScheduleAlways || !d.Conditions.Events.RepeatedActivation {
		t.Fatalf("always + repeated activation not preserved: %+v", d)
	}

	// Turning repeated activation off leaves the schedule alone, and vice versa.
	d2 := d.ApplyConditions(ConditionsPatch{Events: &EventConditions{
		Values: []EventTrigger{{Name: "error shown"}},
	}})
	if d2.Schedule != ScheduleAlways || d2.Conditions.Events.RepeatedActivation {
		t.Fatalf("clearing repeated activation touched the schedule: %+v", d2)
	}
	once := ScheduleOnce
	d3 := d.Apply(Patch{Schedule: &once})
	if !d3.Conditions.Events.RepeatedActivation {
		t.Fatalf("changing the schedule cleared repeated activation: %+v", d3)
	}
}

func TestDisjointPatchesCommute(t *testing.T) {
	base := NewDraft().Apply(Patch{Name: strp("Onboarding feedback")})

	name := Patch{Description: strp("Asked after the first project is created")}
	cond := ConditionsPatch{URL: strp("/onboarding"), URLMatchType: urlMatchP(URLMatchIContains)}
	appr := AppearancePatch{Position: strp("right"), ButtonText: strp("Send")}

	ab := base.Apply(name).ApplyConditions(cond).ApplyAppearance(appr)
	ba := base.ApplyAppearance(appr).ApplyConditions(cond).Apply(name)
	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("patch order changed the result:\n%+v\n%+v", ab, ba)
	}
}

func urlMatchP(m URLMatchType) *URLMatchType { return &m }

func TestApplyDoesNotMutateReceiver(t *testing.T) {
	orig := NewDraft().Apply(Patch{
		Name:      strp("NPS"),
		Questions: &[]Question{{Type: QuestionRating, Question: "How likely are you to recommend us?", Scale: 10}},
	})
	_ = orig.Apply(Patch{Questions: &[]Question{}})
	_ = orig.ApplyConditions(ConditionsPatch{Selector: strp("#nav")})
	if len(orig.Questions) != 1 || orig.Conditions != nil {
		t.Fatalf("receiver mutated: %+v", orig)
	}
}

func TestBlockedReason(t *testing.T) {
	empty := NewDraft()
	if r := empty.BlockedReason(); !strings.Contains(r, "name") {
		t.Fatalf("empty draft reason = %q, want a name complaint", r)
	}

	named := empty.Apply(Patch{Name: strp("NPS")})
	if r := named.BlockedReason(); !strings.Contains(r, "question") {
		t.Fatalf("question-less draft reason = %q", r)
	}

	rated := named.Apply(Patch{Questions: &[]Question{{
		Type: QuestionRating, Question: "How likely are you to recommend us?", Scale: 10,
	}}})
	if !rated.Submittable() {
		t.Fatalf("rating draft blocked: %q", rated.BlockedReason())
	}

	badScale := named.Apply(Patch{Questions: &[]Question{{
		Type: QuestionRating, Question: "Rate us", Scale: 4,
	}}})
	if r := badScale.BlockedReason(); !strings.Contains(r, "scale") {
		t.Fatalf("bad scale reason = %q", r)
	}

	blank := named.Apply(Patch{Questions: &[]Question{{Type: QuestionOpen}}})
	if r := blank.BlockedReason(); r != "Question 1 needs text." {
		t.Fatalf("blank question reason = %q", r)
	}
}

func TestBlockedReasonAnnouncement(t *testing.T) {
	kind := KindAnnouncement
	d := NewDraft().Apply(Patch{Name: strp("Maintenance window"), Kind: &kind})
	if r := d.BlockedReason(); !strings.Contains(r, "title") {
		t.Fatalf("reason = %q, want title complaint", r)
	}
	d = d.Apply(Patch{Title: strp("Scheduled maintenance on Friday")})
	if r := d.BlockedReason(); !strings.Contains(r, "button") {
		t.Fatalf("reason = %q, want button text complaint", r)
	}
	d = d.ApplyAppearance(AppearancePatch{ButtonText: strp("Got it")})
	if !d.Submittable() {
		t.Fatalf("announcement blocked: %q", d.BlockedReason())
	}
}

func TestBlockedReasonActionTriggerNeedsDelay(t *testing.T) {
	d := NewDraft().
		Apply(Patch{Name: strp("Post-checkout"), Questions: &[]Question{{Type: QuestionOpen, Question: "How was checkout?"}}}).
		ApplyConditions(ConditionsPatch{Actions: &ActionConditions{Values: []string{"completed checkout"}}})
	if r := d.BlockedReason(); !strings.Contains(r, "popup delay") {
		t.Fatalf("reason = %q, want popup delay complaint", r)
	}
	d = d.ApplyAppearance(AppearancePatch{PopupDelaySeconds: intp(5)})
	if !d.Submittable() {
		t.Fatalf("still blocked: %q", d.BlockedReason())
	}
}

func TestQuestionValidate(t *testing.T) {
	cases := []struct {
		q    Question
		want string
	}{
		{Question{Type: QuestionOpen, Question: "Any feedback?"}, ""},
		{Question{Type: QuestionLink, Question: "Book a call"}, "link"},
		{Question{Type: QuestionRating, Question: "Rate", Scale: 5, Display: QuestionDisplayEmoji}, ""},
		{Question{Type: QuestionRating, Question: "Rate", Scale: 10, Display: QuestionDisplayEmoji}, "emoji"},
		{Question{Type: QuestionSingleChoice, Question: "Pick one"}, "choice"},
		{Question{Type: QuestionMultipleChoice, Question: "Pick", Choices: []string{"a", ""}}, "empty"},
		{Question{Question: "No type"}, "type"},
	}
	for i, c := range cases {
		err := c.q.Validate()
		if c.want == "" {
			if err != nil {
				t.Errorf("case %d: unexpected error %v", i, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Errorf("case %d: error = %v, want mention of %q", i, err, c.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	before := NewDraft().Apply(Patch{Name: strp("NPS")})
	sched := ScheduleRecurring
	after := before.
		Apply(Patch{Schedule: &sched, IterationCount: intp(3), IterationFrequencyDays: intp(30)}).
		Apply(Patch{Questions: &[]Question{{Type: QuestionOpen, Question: "Why that score?"}}}).
		Apply(Patch{LinkedFlagKey: strp("new-billing")})

	got := Describe(before, after)
	want := []string{
		"added a question",
		"set the schedule to recurring, 3 iterations every 30 days",
		`linked the feature flag "new-billing"`,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Describe = %q, want %q", got, want)
	}

	if msgs := Describe(after, after); len(msgs) != 0 {
		t.Fatalf("no-op diff produced %q", msgs)
	}
}
