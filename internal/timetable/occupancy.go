package timetable

import "sort"

// Occupancy records which class holds each teacher at each "Day-Period" key.
// A session appends to it as classes are committed and never removes entries.
type Occupancy struct {
	slots map[string]map[string]string
}

// NewOccupancy returns an empty occupancy table.
func NewOccupancy() *Occupancy {
	return &Occupancy{slots: make(map[string]map[string]string)}
}

// Holder returns the class occupying the teacher at key, if any.
func (o *Occupancy) Holder(teacherID, key string) (string, bool) {
	if o == nil {
		return "", false
	}
	class, ok := o.slots[teacherID][key]
	return class, ok
}

// Reserve marks the teacher as busy at key for class.
func (o *Occupancy) Reserve(teacherID, key, class string) {
	if o.slots[teacherID] == nil {
		o.slots[teacherID] = make(map[string]string)
	}
	o.slots[teacherID][key] = class
}

// Commit reserves every assignment of a finished class.
func (o *Occupancy) Commit(assignments []Assignment) {
	for _, a := range assignments {
		o.Reserve(a.TeacherID, a.Key(), a.Class)
	}
}

// Clone returns an independent copy, used as an immutable snapshot.
func (o *Occupancy) Clone() *Occupancy {
	clone := NewOccupancy()
	if o == nil {
		return clone
	}
	for teacher, keys := range o.slots {
		copied := make(map[string]string, len(keys))
		for key, class := range keys {
			copied[key] = class
		}
		clone.slots[teacher] = copied
	}
	return clone
}

// Len is the number of reserved (teacher, slot) entries.
func (o *Occupancy) Len() int {
	if o == nil {
		return 0
	}
	total := 0
	for _, keys := range o.slots {
		total += len(keys)
	}
	return total
}

// Snapshot lists the busy slot keys per teacher, sorted for stable output.
func (o *Occupancy) Snapshot() map[string][]string {
	out := make(map[string][]string)
	if o == nil {
		return out
	}
	for teacher, keys := range o.slots {
		list := make([]string, 0, len(keys))
		for key := range keys {
			list = append(list, key)
		}
		sort.Strings(list)
		out[teacher] = list
	}
	return out
}
