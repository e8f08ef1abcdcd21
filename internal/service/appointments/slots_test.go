package appointments

import (
	"math/rand/v2"
	"slices"
	"testing"

	"schedula/internal/domain"
)

func booked(id int64, at domain.TimeOfDay, minutes int) domain.Appointment {
	return domain.Appointment{
		ID:              id,
		Date:            domain.Date{Year: 2026, Month: 1, Day: 20},
		Time:            at,
		DurationMinutes: minutes,
		Status:          domain.StatusScheduled,
	}
}

func TestAvailableSlots_EmptyDay(t *testing.T) {
	got := availableSlots(domain.Clock(9, 0), domain.Clock(11, 0), 60, 30, nil)
	want := []domain.TimeOfDay{domain.Clock(9, 0), domain.Clock(9, 30), domain.Clock(10, 0)}
	if !slices.Equal(got, want) {
		t.Fatalf("slots = %v, want %v", got, want)
	}
}

func TestAvailableSlots_UnsortedBusyInput(t *testing.T) {
	busy := []domain.Appointment{
		booked(2, domain.Clock(14, 0), 60),
		booked(1, domain.Clock(10, 0), 30),
	}
	got := availableSlots(domain.Clock(9, 0), domain.Clock(17, 0), 60, 30, busy)
	for _, excluded := range []domain.TimeOfDay{domain.Clock(9, 30), domain.Clock(10, 0), domain.Clock(13, 30), domain.Clock(14, 0), domain.Clock(14, 30)} {
		if slices.Contains(got, excluded) {
			t.Fatalf("slots = %v, must not contain %s", got, excluded)
		}
	}
	for _, kept := range []domain.TimeOfDay{domain.Clock(9, 0), domain.Clock(10, 30), domain.Clock(12, 30), domain.Clock(15, 0), domain.Clock(16, 0)} {
		if !slices.Contains(got, kept) {
			t.Fatalf("slots = %v, missing %s", got, kept)
		}
	}
}

func TestAvailableSlots_DurationLongerThanWindow(t *testing.T) {
	got := availableSlots(domain.Clock(9, 0), domain.Clock(10, 0), 90, 30, nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("slots = %#v, want empty non-nil", got)
	}
}

func TestAvailableSlots_DegenerateInputs(t *testing.T) {
	cases := []struct {
		name           string
		start, end     domain.TimeOfDay
		duration, step int
	}{
		{"zero step", domain.Clock(9, 0), domain.Clock(17, 0), 60, 0},
		{"zero duration", domain.Clock(9, 0), domain.Clock(17, 0), 0, 30},
		{"inverted window", domain.Clock(17, 0), domain.Clock(9, 0), 60, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := availableSlots(tc.start, tc.end, tc.duration, tc.step, nil); len(got) != 0 {
				t.Fatalf("slots = %v, want empty", got)
			}
		})
	}
}

func TestConflictsWith(t *testing.T) {
	candidate := booked(0, domain.Clock(10, 30), 60)
	cancelled := booked(4, domain.Clock(10, 0), 60)
	cancelled.Status = domain.StatusCancelled
	otherDay := booked(5, domain.Clock(10, 0), 60)
	otherDay.Date = otherDay.Date.AddDays(1)

	sameDay := []domain.Appointment{
		booked(3, domain.Clock(11, 0), 30),
		booked(1, domain.Clock(9, 30), 90),
		booked(2, domain.Clock(11, 30), 30),
		cancelled,
		otherDay,
	}

	got := conflictsWith(candidate, sameDay, 0)
	if want := []int64{1, 3}; !slices.Equal(ids(got), want) {
		t.Fatalf("conflicts = %v, want %v", ids(got), want)
	}

	got = conflictsWith(candidate, sameDay, 1)
	if want := []int64{3}; !slices.Equal(ids(got), want) {
		t.Fatalf("conflicts excluding #1 = %v, want %v", ids(got), want)
	}
}

// bruteForceSlots checks every grid start against every busy interval.
func bruteForceSlots(dayStart, dayEnd domain.TimeOfDay, duration, step int, busy []domain.Appointment) []domain.TimeOfDay {
	out := []domain.TimeOfDay{}
	for t := dayStart; t.Add(duration) <= dayEnd; t = t.Add(step) {
		candidate := domain.Appointment{Time: t, DurationMinutes: duration}
		free := true
		for _, b := range busy {
			if candidate.Overlaps(b) {
				free = false
				break
			}
		}
		if free {
			out = append(out, t)
		}
	}
	return out
}

func TestAvailableSlots_MatchesBruteForce(t *testing.T) {
	for seed := uint64(1); seed <= 300; seed++ {
		r := rand.New(rand.NewPCG(seed, seed*7919))

		busy := make([]domain.Appointment, r.IntN(8))
		for i := range busy {
			busy[i] = booked(int64(i+1), domain.TimeOfDay(r.IntN(24*12)*5), 5+r.IntN(48)*5)
		}
		dayStart := domain.TimeOfDay(r.IntN(12 * 60))
		dayEnd := dayStart.Add(1 + r.IntN(12*60))
		duration := 1 + r.IntN(180)
		step := 1 + r.IntN(90)

		got := availableSlots(dayStart, dayEnd, duration, step, busy)
		want := bruteForceSlots(dayStart, dayEnd, duration, step, busy)
		if !slices.Equal(got, want) {
			t.Fatalf("seed %d: window %s-%s duration %d step %d busy %+v\nslots = %v\nwant   %v",
				seed, dayStart, dayEnd, duration, step, busy, got, want)
		}
	}
}
