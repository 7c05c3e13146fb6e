package types

import "fmt"

// Status is a 32-bit NT status code.
//
// Bits 30-31 carry the severity: 00 success, 01 informational,
// 10 warning, 11 error.
type Status uint32

const (
	StatusSuccess                Status = 0x00000000
	StatusPending                Status = 0x00000103
	StatusBufferOverflow         Status = 0x80000005
	StatusNoMoreFiles            Status = 0x80000006
	StatusNotImplemented         Status = 0xC0000002
	StatusInvalidHandle          Status = 0xC0000008
	StatusInvalidParameter       Status = 0xC000000D
	StatusNoSuchFile             Status = 0xC000000F
	StatusInvalidDeviceRequest   Status = 0xC0000010
	StatusEndOfFile              Status = 0xC0000011
	StatusMoreProcessingRequired Status = 0xC0000016
	StatusAccessDenied           Status = 0xC0000022
	StatusObjectTypeMismatch     Status = 0xC0000024
	StatusObjectNameInvalid      Status = 0xC0000033
	StatusObjectNameNotFound     Status = 0xC0000034
	StatusObjectNameCollision    Status = 0xC0000035
	StatusObjectPathInvalid      Status = 0xC0000039
	StatusObjectPathNotFound     Status = 0xC000003A
	StatusObjectPathSyntaxBad    Status = 0xC000003B
	StatusSharingViolation       Status = 0xC0000043
	StatusFileLockConflict       Status = 0xC0000054
	StatusLockNotGranted         Status = 0xC0000055
	StatusDeletePending          Status = 0xC0000056
	StatusLogonFailure           Status = 0xC000006D
	StatusRangeNotLocked         Status = 0xC000007E
	StatusDiskFull               Status = 0xC000007F
	StatusInsufficientResources  Status = 0xC000009A
	StatusMediaWriteProtected    Status = 0xC00000A2
	StatusFileIsADirectory       Status = 0xC00000BA
	StatusNotSupported           Status = 0xC00000BB
	StatusNetworkNameDeleted     Status = 0xC00000C9
	StatusBadDeviceType          Status = 0xC00000CB
	StatusBadNetworkName         Status = 0xC00000CC
	StatusPrintQueueFull         Status = 0xC00000C6
	StatusNotSameDevice          Status = 0xC00000D4
	StatusInternalError          Status = 0xC00000E5
	StatusDirectoryNotEmpty      Status = 0xC0000101
	StatusNotADirectory          Status = 0xC0000103
	StatusCancelled              Status = 0xC0000120
	StatusCannotDelete           Status = 0xC0000121
	StatusInvalidLockRange       Status = 0xC00001A1
	StatusFileClosed             Status = 0xC0000128
	StatusTooManyOpenedFiles     Status = 0xC000011F
	StatusUserSessionDeleted     Status = 0xC0000203

	// Server-class codes: ERRSRV in the low word, the DOS code in the high word.
	StatusInvalidSMB     Status = 0x00010002
	StatusSMBBadTID      Status = 0x00050002
	StatusSMBBadCommand  Status = 0x00400002
	StatusSMBBadUID      Status = 0x005B0002
	StatusSMBUseStandard Status = 0x00FB0002
)

// dosStatusFacility marks a Status that carries a DOS class/code pair
// verbatim: 0xF1 | class<<16 | code.
const dosStatusFacility = 0xF1000000

// DOSStatus wraps a DOS class/code pair so it can travel through code that
// speaks NT status. ToDOSError unwraps it exactly.
func DOSStatus(class ErrorClass, code uint16) Status {
	return Status(dosStatusFacility | uint32(class)<<16 | uint32(code))
}

// IsDOSStatus reports whether s was built by DOSStatus.
func (s Status) IsDOSStatus() bool {
	return uint32(s)&0xFF000000 == dosStatusFacility
}

var statusNames = map[Status]string{
	StatusSuccess:                "STATUS_SUCCESS",
	StatusPending:                "STATUS_PENDING",
	StatusBufferOverflow:         "STATUS_BUFFER_OVERFLOW",
	StatusNoMoreFiles:            "STATUS_NO_MORE_FILES",
	StatusNotImplemented:         "STATUS_NOT_IMPLEMENTED",
	StatusInvalidHandle:          "STATUS_INVALID_HANDLE",
	StatusInvalidParameter:       "STATUS_INVALID_PARAMETER",
	StatusNoSuchFile:             "STATUS_NO_SUCH_FILE",
	StatusInvalidDeviceRequest:   "STATUS_INVALID_DEVICE_REQUEST",
	StatusEndOfFile:              "STATUS_END_OF_FILE",
	StatusMoreProcessingRequired: "STATUS_MORE_PROCESSING_REQUIRED",
	StatusAccessDenied:           "STATUS_ACCESS_DENIED",
	StatusObjectTypeMismatch:     "STATUS_OBJECT_TYPE_MISMATCH",
	StatusObjectNameInvalid:      "STATUS_OBJECT_NAME_INVALID",
	StatusObjectNameNotFound:     "STATUS_OBJECT_NAME_NOT_FOUND",
	StatusObjectNameCollision:    "STATUS_OBJECT_NAME_COLLISION",
	StatusObjectPathInvalid:      "STATUS_OBJECT_PATH_INVALID",
	StatusObjectPathNotFound:     "STATUS_OBJECT_PATH_NOT_FOUND",
	StatusObjectPathSyntaxBad:    "STATUS_OBJECT_PATH_SYNTAX_BAD",
	StatusSharingViolation:       "STATUS_SHARING_VIOLATION",
	StatusFileLockConflict:       "STATUS_FILE_LOCK_CONFLICT",
	StatusLockNotGranted:         "STATUS_LOCK_NOT_GRANTED",
	StatusDeletePending:          "STATUS_DELETE_PENDING",
	StatusLogonFailure:           "STATUS_LOGON_FAILURE",
	StatusRangeNotLocked:         "STATUS_RANGE_NOT_LOCKED",
	StatusDiskFull:               "STATUS_DISK_FULL",
	StatusInsufficientResources:  "STATUS_INSUFFICIENT_RESOURCES",
	StatusMediaWriteProtected:    "STATUS_MEDIA_WRITE_PROTECTED",
	StatusFileIsADirectory:       "STATUS_FILE_IS_A_DIRECTORY",
	StatusNotSupported:           "STATUS_NOT_SUPPORTED",
	StatusNetworkNameDeleted:     "STATUS_NETWORK_NAME_DELETED",
	StatusBadDeviceType:          "STATUS_BAD_DEVICE_TYPE",
	StatusBadNetworkName:         "STATUS_BAD_NETWORK_NAME",
	StatusPrintQueueFull:         "STATUS_PRINT_QUEUE_FULL",
	StatusNotSameDevice:          "STATUS_NOT_SAME_DEVICE",
	StatusInternalError:          "STATUS_INTERNAL_ERROR",
	StatusInvalidLockRange:       "STATUS_INVALID_LOCK_RANGE",
	StatusDirectoryNotEmpty:      "STATUS_DIRECTORY_NOT_EMPTY",
	StatusNotADirectory:          "STATUS_NOT_A_DIRECTORY",
	StatusCancelled:              "STATUS_CANCELLED",
	StatusCannotDelete:           "STATUS_CANNOT_DELETE",
	StatusFileClosed:             "STATUS_FILE_CLOSED",
	StatusTooManyOpenedFiles:     "STATUS_TOO_MANY_OPENED_FILES",
	StatusInvalidSMB:             "STATUS_INVALID_SMB",
	StatusUserSessionDeleted:     "STATUS_USER_SESSION_DELETED",
	StatusSMBBadTID:              "STATUS_SMB_BAD_TID",
	StatusSMBBadUID:              "STATUS_SMB_BAD_UID",
	StatusSMBBadCommand:          "STATUS_SMB_BAD_COMMAND",
	StatusSMBUseStandard:         "STATUS_SMB_USE_STANDARD",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	if s.IsDOSStatus() {
		d := ToDOSError(s)
		return fmt.Sprintf("DOS(%s/%d)", d.Class, d.Code)
	}
	return fmt.Sprintf("STATUS_0x%08X", uint32(s))
}

// IsSuccess reports whether s has success severity.
func (s Status) IsSuccess() bool {
	return s.Severity() == 0 && !s.isServerClass()
}

// IsError reports whether s has error severity, carries a DOS error, or is
// one of the SMB server-class codes (code<<16 | ERRSRV).
func (s Status) IsError() bool {
	return s.Severity() == 3 || s.IsDOSStatus() || s.isServerClass()
}

func (s Status) isServerClass() bool {
	return s.Severity() == 0 && uint32(s)&0xFFFF == uint32(ErrSRV) && uint32(s)>>16 != 0
}

// IsWarning reports whether s has warning severity.
func (s Status) IsWarning() bool {
	return s.Severity() == 2
}

// Severity returns the two severity bits (0-3).
func (s Status) Severity() int {
	return int(uint32(s) >> 30)
}
