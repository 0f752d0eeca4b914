package student

import (
	"fmt"
	"strconv"
)

// ClassSequence is a class's roll number configuration on the school API.
type ClassSequence struct {
	ClassID string `json:"class_id"`
	Prefix  string `json:"prefix"`
	Next    int    `json:"next"`
	Width   int    `json:"width"`
}

// NextRoll renders the next roll number of the sequence, eg. {Prefix: "7A-", Next: 4, Width: 3} -> "7A-004".
func NextRoll(seq ClassSequence) string {
	next := seq.Next
	if next < 1 {
		next = 1
	}
	if seq.Width <= 0 {
		return seq.Prefix + strconv.Itoa(next)
	}
	return fmt.Sprintf("%s%0*d", seq.Prefix, seq.Width, next)
}

// ApplyRoll fills an empty roll number from the class sequence. It reports whether the draft changed.
func (d *Draft) ApplyRoll(seq ClassSequence) bool {
	if d.RollNumber != "" || (seq.ClassID != "" && seq.ClassID != d.ClassID) {
		return false
	}
	d.RollNumber = NextRoll(seq)
	return true
}
