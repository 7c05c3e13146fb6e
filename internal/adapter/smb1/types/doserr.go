package types

import "fmt"

// ErrorClass is the DOS error class byte of an SMB1 header.
type ErrorClass uint8

const (
	ErrSuccess ErrorClass = 0x00
	ErrDOS     ErrorClass = 0x01
	ErrSRV     ErrorClass = 0x02
	ErrHRD     ErrorClass = 0x03
	ErrCMD     ErrorClass = 0xFF
)

func (c ErrorClass) String() string {
	switch c {
	case ErrSuccess:
		return "SUCCESS"
	case ErrDOS:
		return "ERRDOS"
	case ErrSRV:
		return "ERRSRV"
	case ErrHRD:
		return "ERRHRD"
	case ErrCMD:
		return "ERRCMD"
	default:
		return fmt.Sprintf("CLASS_0x%02X", uint8(c))
	}
}

// ERRDOS codes.
const (
	ERRbadfunc         uint16 = 1
	ERRbadfile         uint16 = 2
	ERRbadpath         uint16 = 3
	ERRnofids          uint16 = 4
	ERRnoaccess        uint16 = 5
	ERRbadfid          uint16 = 6
	ERRnomem           uint16 = 8
	ERRbadaccess       uint16 = 12
	ERRbaddata         uint16 = 13
	ERRremcd           uint16 = 16
	ERRdiffdevice      uint16 = 17
	ERRnofiles         uint16 = 18
	ERRbadshare        uint16 = 32
	ERRlock            uint16 = 33
	ERRfilexists       uint16 = 80
	ERRinvalidparam    uint16 = 87
	ERRinvalidname     uint16 = 123
	ERRunknownlevel    uint16 = 124
	ERRdirnotempty     uint16 = 145
	ERRnotlocked       uint16 = 158
	ERRcancelviolation uint16 = 173
	ERRnoatomiclocks   uint16 = 174
	ERRbadpipe         uint16 = 230
	ERRmoredata        uint16 = 234
)

// ERRSRV codes.
const (
	ERRerror      uint16 = 1
	ERRbadpw      uint16 = 2
	ERRaccess     uint16 = 4
	ERRinvnid     uint16 = 5
	ERRinvnetname uint16 = 6
	ERRinvdevice  uint16 = 7
	ERRqfull      uint16 = 49
	ERRinvpfid    uint16 = 52
	ERRsmbcmd     uint16 = 64
	ERRsrverror   uint16 = 65
	ERRnoresource uint16 = 89
	ERRbaduid     uint16 = 91
	ERRuseSTD     uint16 = 251
	ERRnosupport  uint16 = 0xFFFF
)

// ERRHRD codes.
const (
	ERRnowrite  uint16 = 19
	ERRgeneral  uint16 = 31
	ERRdiskfull uint16 = 39
)

// DOSError is a legacy (class, code) error pair.
type DOSError struct {
	Class ErrorClass
	Code  uint16
}

func (e DOSError) String() string {
	return fmt.Sprintf("%s/%d", e.Class, e.Code)
}

// dosErrorTable maps NT status codes to the pair sent to clients that did
// not negotiate 32-bit status.
var dosErrorTable = map[Status]DOSError{
	StatusSuccess:               {ErrSuccess, 0},
	StatusNotImplemented:        {ErrSRV, ERRsmbcmd},
	StatusInvalidHandle:         {ErrDOS, ERRbadfid},
	StatusFileClosed:            {ErrDOS, ERRbadfid},
	StatusInvalidParameter:      {ErrSRV, ERRerror},
	StatusNoSuchFile:            {ErrDOS, ERRbadfile},
	StatusInvalidDeviceRequest:  {ErrDOS, ERRbadfunc},
	StatusEndOfFile:             {ErrDOS, ERRbaddata},
	StatusAccessDenied:          {ErrDOS, ERRnoaccess},
	StatusObjectTypeMismatch:    {ErrDOS, ERRbadfile},
	StatusObjectNameInvalid:     {ErrDOS, ERRinvalidname},
	StatusObjectNameNotFound:    {ErrDOS, ERRbadfile},
	StatusObjectNameCollision:   {ErrDOS, ERRfilexists},
	StatusObjectPathInvalid:     {ErrDOS, ERRbadpath},
	StatusObjectPathNotFound:    {ErrDOS, ERRbadpath},
	StatusObjectPathSyntaxBad:   {ErrDOS, ERRbadpath},
	StatusSharingViolation:      {ErrDOS, ERRbadshare},
	StatusFileLockConflict:      {ErrDOS, ERRlock},
	StatusLockNotGranted:        {ErrDOS, ERRlock},
	StatusDeletePending:         {ErrDOS, ERRnoaccess},
	StatusLogonFailure:          {ErrSRV, ERRbadpw},
	StatusRangeNotLocked:        {ErrDOS, ERRnotlocked},
	StatusDiskFull:              {ErrHRD, ERRdiskfull},
	StatusInsufficientResources: {ErrSRV, ERRnoresource},
	StatusMediaWriteProtected:   {ErrHRD, ERRnowrite},
	StatusFileIsADirectory:      {ErrDOS, ERRnoaccess},
	StatusNotSupported:          {ErrSRV, ERRnosupport},
	StatusNetworkNameDeleted:    {ErrSRV, ERRinvnid},
	StatusBadDeviceType:         {ErrSRV, ERRinvdevice},
	StatusBadNetworkName:        {ErrSRV, ERRinvnetname},
	StatusPrintQueueFull:        {ErrSRV, ERRqfull},
	StatusNotSameDevice:         {ErrDOS, ERRdiffdevice},
	StatusInternalError:         {ErrSRV, ERRerror},
	StatusInvalidLockRange:      {ErrDOS, ERRlock},
	StatusDirectoryNotEmpty:     {ErrDOS, ERRdirnotempty},
	StatusNotADirectory:         {ErrDOS, ERRbadpath},
	StatusCancelled:             {ErrDOS, ERRlock},
	StatusCannotDelete:          {ErrDOS, ERRnoaccess},
	StatusTooManyOpenedFiles:    {ErrDOS, ERRnofids},
	StatusNoMoreFiles:           {ErrDOS, ERRnofiles},
	StatusUserSessionDeleted:    {ErrSRV, ERRbaduid},
}

// ToDOSError maps an NT status to its DOS (class, code) pair. Statuses built
// by DOSStatus and server-class codes decode directly; unmapped errors fall
// back to ERRSRV/ERRerror.
func ToDOSError(s Status) DOSError {
	if s.IsDOSStatus() {
		return DOSError{Class: ErrorClass(uint32(s) >> 16 & 0xFF), Code: uint16(s)}
	}
	if s.isServerClass() {
		return DOSError{Class: ErrSRV, Code: uint16(uint32(s) >> 16)}
	}
	if d, ok := dosErrorTable[s]; ok {
		return d
	}
	if s.IsSuccess() || s.IsWarning() {
		return DOSError{Class: ErrSuccess}
	}
	return DOSError{Class: ErrSRV, Code: ERRerror}
}

// DOSErrorFor applies command-specific remaps on top of ToDOSError.
// CHECK_DIRECTORY reports a missing final component as ERRbadpath.
func DOSErrorFor(cmd Command, s Status) DOSError {
	if cmd == SMBCheckDirectory && s == StatusObjectNameNotFound {
		return DOSError{Class: ErrDOS, Code: ERRbadpath}
	}
	return ToDOSError(s)
}
