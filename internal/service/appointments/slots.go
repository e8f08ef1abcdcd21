package appointments

import (
	"slices"

	"schedula/internal/domain"
)

// availableSlots returns every start t in [dayStart, dayEnd-duration] on the
// step grid whose interval [t, t+duration) is free of busy appointments.
func availableSlots(dayStart, dayEnd domain.TimeOfDay, duration, step int, busy []domain.Appointment) []domain.TimeOfDay {
	slots := []domain.TimeOfDay{}
	if duration <= 0 || step <= 0 || dayEnd <= dayStart {
		return slots
	}

	sorted := slices.Clone(busy)
	domain.SortByDateTime(sorted)

	for t := dayStart; t.Add(duration) <= dayEnd; t = t.Add(step) {
		candidate := domain.Appointment{Time: t, DurationMinutes: duration}
		if !overlapsAny(candidate, sorted) {
			slots = append(slots, t)
		}
	}
	return slots
}

// overlapsAny expects busy sorted by start time.
func overlapsAny(candidate domain.Appointment, busy []domain.Appointment) bool {
	for _, b := range busy {
		if b.Start() >= candidate.End() {
			return false
		}
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

// conflictsWith returns the scheduled appointments in sameDay that overlap
// candidate, skipping excludeID.
func conflictsWith(candidate domain.Appointment, sameDay []domain.Appointment, excludeID int64) []domain.Appointment {
	var out []domain.Appointment
	for _, a := range sameDay {
		if !a.IsScheduled() || a.ID == excludeID || a.Date != candidate.Date {
			continue
		}
		if candidate.Overlaps(a) {
			out = append(out, a)
		}
	}
	domain.SortByDateTime(out)
	return out
}
