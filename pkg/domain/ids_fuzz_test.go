package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseDutyID checks that parsing never panics and accepted values round-trip.
func FuzzParseDutyID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("../history")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseDutyID(input)
		if err == nil {
			roundTrip, err2 := ParseDutyID(id.String())
			if err2 != nil {
				t.Errorf("valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed ID value")
			}
			if id.IsNil() {
				t.Error("nil ID accepted")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseAllIDs ensures all ID types accept and reject the same inputs.
func FuzzParseAllIDs(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, errUser := ParseUserID(input)
		_, errDuty := ParseDutyID(input)
		_, errNotification := ParseNotificationID(input)

		if (errUser == nil) != (errDuty == nil) || (errUser == nil) != (errNotification == nil) {
			t.Error("inconsistent parsing across ID types")
		}
	})
}
