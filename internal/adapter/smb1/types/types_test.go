package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToDOSError(t *testing.T) {
	tests := []struct {
		status Status
		want   DOSError
	}{
		{StatusSuccess, DOSError{ErrSuccess, 0}},
		{StatusObjectNameNotFound, DOSError{ErrDOS, ERRbadfile}},
		{StatusObjectPathNotFound, DOSError{ErrDOS, ERRbadpath}},
		{StatusObjectPathSyntaxBad, DOSError{ErrDOS, ERRbadpath}},
		{StatusObjectNameInvalid, DOSError{ErrDOS, ERRinvalidname}},
		{StatusSharingViolation, DOSError{ErrDOS, ERRbadshare}},
		{StatusLockNotGranted, DOSError{ErrDOS, ERRlock}},
		{StatusFileLockConflict, DOSError{ErrDOS, ERRlock}},
		{StatusRangeNotLocked, DOSError{ErrDOS, ERRnotlocked}},
		{StatusDiskFull, DOSError{ErrHRD, ERRdiskfull}},
		{StatusInvalidParameter, DOSError{ErrSRV, ERRerror}},
		{StatusNotImplemented, DOSError{ErrSRV, ERRsmbcmd}},
		{StatusSMBBadTID, DOSError{ErrSRV, ERRinvnid}},
		{StatusSMBBadUID, DOSError{ErrSRV, ERRbaduid}},
		{StatusSMBUseStandard, DOSError{ErrSRV, ERRuseSTD}},
		{DOSStatus(ErrDOS, ERRcancelviolation), DOSError{ErrDOS, ERRcancelviolation}},
		{Status(0xC0FFEE00), DOSError{ErrSRV, ERRerror}},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ToDOSError(tt.status))
		})
	}
}

func TestDOSErrorForCheckDirectory(t *testing.T) {
	assert.Equal(t, DOSError{ErrDOS, ERRbadpath}, DOSErrorFor(SMBCheckDirectory, StatusObjectNameNotFound))
	assert.Equal(t, DOSError{ErrDOS, ERRbadfile}, DOSErrorFor(SMBOpenAndX, StatusObjectNameNotFound))
	assert.Equal(t, DOSError{ErrDOS, ERRnoaccess}, DOSErrorFor(SMBCheckDirectory, StatusAccessDenied))
}

func TestStatusSeverity(t *testing.T) {
	assert.True(t, StatusSuccess.IsSuccess())
	assert.True(t, StatusNoMoreFiles.IsWarning())
	assert.True(t, StatusAccessDenied.IsError())
	assert.True(t, StatusInvalidSMB.IsError())
	assert.False(t, StatusInvalidSMB.IsSuccess())
	assert.True(t, DOSStatus(ErrSRV, ERRerror).IsError())
	assert.Equal(t, "STATUS_FILE_LOCK_CONFLICT", StatusFileLockConflict.String())
	assert.Equal(t, "DOS(ERRDOS/173)", DOSStatus(ErrDOS, ERRcancelviolation).String())
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "LOCKING_ANDX", SMBLockingAndX.String())
	assert.Equal(t, "UNKNOWN_0xEE", Command(0xEE).String())
}

func TestDOSTimeRoundTrip(t *testing.T) {
	ts := time.Date(2024, time.March, 15, 13, 45, 58, 0, time.Local)
	d, tm := TimeToDOS(ts)
	assert.True(t, ts.Equal(DOSToTime(d, tm)))

	d, tm = TimeToDOS(time.Date(1975, 1, 1, 0, 0, 0, 0, time.Local))
	assert.Equal(t, time.Date(1980, 1, 1, 0, 0, 0, 0, time.Local), DOSToTime(d, tm))
	assert.True(t, DOSToTime(0, 0).IsZero())
}

func TestFiletimeAndUTime(t *testing.T) {
	ts := time.Unix(1700000000, 123400)
	assert.True(t, ts.Equal(FiletimeToTime(TimeToFiletime(ts))))
	assert.Zero(t, TimeToFiletime(time.Time{}))

	assert.Equal(t, uint32(1700000000), TimeToUTime(time.Unix(1700000000, 0)))
	assert.True(t, UTimeToTime(0).IsZero())
	assert.True(t, UTimeToTime(0xFFFFFFFF).IsZero())
}
