package types

import "time"

// filetimeUnixDiff is the distance between the FILETIME epoch (1601-01-01)
// and the Unix epoch in 100-nanosecond intervals.
const filetimeUnixDiff = 116444736000000000

// TimeToFiletime converts t to a Windows FILETIME.
func TimeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano()/100) + filetimeUnixDiff
}

// FiletimeToTime converts a Windows FILETIME to time.Time.
func FiletimeToTime(ft uint64) time.Time {
	if ft < filetimeUnixDiff {
		return time.Time{}
	}
	return time.Unix(0, int64(ft-filetimeUnixDiff)*100)
}

// UTimeToTime converts seconds since the Unix epoch; 0 and 0xFFFFFFFF mean
// "not specified".
func UTimeToTime(u uint32) time.Time {
	if u == 0 || u == 0xFFFFFFFF {
		return time.Time{}
	}
	return time.Unix(int64(u), 0)
}

// TimeToUTime converts t to seconds since the Unix epoch, clamped to 32 bits.
func TimeToUTime(t time.Time) uint32 {
	if t.IsZero() || t.Unix() < 0 {
		return 0
	}
	if t.Unix() > 0xFFFFFFFE {
		return 0xFFFFFFFE
	}
	return uint32(t.Unix())
}

// TimeToDOS encodes t as the SMB_DATE/SMB_TIME pair in local time.
// Years before 1980 encode as 1980-01-01.
func TimeToDOS(t time.Time) (date, tm uint16) {
	t = t.Local()
	if t.Year() < 1980 {
		return 1<<5 | 1, 0
	}
	date = uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	tm = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return date, tm
}

// DOSToTime decodes an SMB_DATE/SMB_TIME pair in local time. A zero date
// means "not specified".
func DOSToTime(date, tm uint16) time.Time {
	if date == 0 && tm == 0 {
		return time.Time{}
	}
	return time.Date(
		int(date>>9)+1980, time.Month(date>>5&0x0F), int(date&0x1F),
		int(tm>>11), int(tm>>5&0x3F), int(tm&0x1F)*2,
		0, time.Local,
	)
}
