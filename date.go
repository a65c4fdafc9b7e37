package fatstore

import (
	"time"
)

// ParseDate decodes a FAT date stamp, a 16 bit date relative to 01/01/1980:
//  Bits 0–4: Day of month, 1-31.
//  Bits 5–8: Month of year, 1-12.
//  Bits 9–15: Count of years from 1980, 0-127 (1980-2107).
// The time of the result is always 00:00:00 UTC.
//
// Day and month 0 are invalid. In that case time.Time{} is returned so time.Time.IsZero() can be used.
// A month bigger than 12 rolls over into the next year.
func ParseDate(input uint16) time.Time {
	dayOfMonth := input & 0x1F
	monthOfYear := input & 0x1E0 >> 5
	yearSince1980 := input & 0xFE00 >> 9

	if dayOfMonth == 0 || monthOfYear == 0 {
		return time.Time{}
	}

	return time.Date(1980+int(yearSince1980), time.Month(monthOfYear), int(dayOfMonth), 0, 0, 0, 0, time.UTC)
}

// ParseTime decodes a FAT time stamp with a granularity of 2 seconds:
//  Bits 0–4: 2-second count, 0-29 (0-58 seconds).
//  Bits 5–10: Minutes, 0-59.
//  Bits 11–15: Hours, 0-23.
// The date of the result is always January 1, year 1, so midnight is time.Time{}.
//
// Values out of range are added to the time but the result is capped at 23:59:59.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x1F) * 2
	minutes := input & 0x7E0 >> 5
	hours := input & 0xF800 >> 11

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)

	if result.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}

	return result
}

// ParseDateTime combines a date and a time stamp. It returns time.Time{} if the date is invalid.
func ParseDateTime(date, tm uint16) time.Time {
	d := ParseDate(date)
	if d.IsZero() {
		return time.Time{}
	}

	t := ParseTime(tm)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// EncodeDate is the inverse of ParseDate.
// Dates before 1980 result in 0 (invalid), dates after 2107 are capped at 12/31/2107.
func EncodeDate(t time.Time) uint16 {
	if t.IsZero() || t.Year() < 1980 {
		return 0
	}
	if t.Year() > 2107 {
		return 127<<9 | 12<<5 | 31
	}

	return uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

// EncodeTime is the inverse of ParseTime. Odd seconds are rounded down.
func EncodeTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}
