package types

// SMB1ProtocolID is the 4-byte magic at the start of every SMB1 header
// (0xFF 'S' 'M' 'B').
var SMB1ProtocolID = [4]byte{0xFF, 'S', 'M', 'B'}

// HeaderSize is the fixed SMB1 header length.
const HeaderSize = 32

// DialectNTLM012 is the only dialect this server negotiates.
const DialectNTLM012 = "NT LM 0.12"

// Header Flags.
const (
	FlagsLockAndReadOK   uint8 = 0x01
	FlagsCaseInsensitive uint8 = 0x08
	FlagsCanonicalPaths  uint8 = 0x10
	FlagsOplock          uint8 = 0x20
	FlagsOplockNotifyAny uint8 = 0x40
	FlagsReply           uint8 = 0x80
)

// Header Flags2.
const (
	Flags2LongNames   uint16 = 0x0001
	Flags2EAs         uint16 = 0x0002
	Flags2SecuritySig uint16 = 0x0004
	Flags2IsLongName  uint16 = 0x0040
	Flags2DFS         uint16 = 0x1000
	Flags2PagingIO    uint16 = 0x2000
	Flags2NTStatus    uint16 = 0x4000
	Flags2Unicode     uint16 = 0x8000
)

// Negotiated capabilities.
const (
	CapRawMode       uint32 = 0x00000001
	CapMpxMode       uint32 = 0x00000002
	CapUnicode       uint32 = 0x00000004
	CapLargeFiles    uint32 = 0x00000008
	CapNTSMBs        uint32 = 0x00000010
	CapRPCRemoteAPIs uint32 = 0x00000020
	CapNTStatus      uint32 = 0x00000040
	CapLevel2Oplocks uint32 = 0x00000080
	CapLockAndRead   uint32 = 0x00000100
	CapNTFind        uint32 = 0x00000200
	CapLargeReadX    uint32 = 0x00004000
	CapLargeWriteX   uint32 = 0x00008000
)

// DOS file attributes (SMB_FILE_ATTRIBUTES).
const (
	AttrReadOnly  uint16 = 0x0001
	AttrHidden    uint16 = 0x0002
	AttrSystem    uint16 = 0x0004
	AttrVolume    uint16 = 0x0008
	AttrDirectory uint16 = 0x0010
	AttrArchive   uint16 = 0x0020
	AttrNormal    uint16 = 0x0000

	// AttrSettable are the bits a client may change with SET_INFORMATION.
	AttrSettable = AttrReadOnly | AttrHidden | AttrSystem | AttrArchive
)

// LOCKING_ANDX TypeOfLock bits.
const (
	LockingSharedLock    uint8 = 0x01
	LockingOplockRelease uint8 = 0x02
	LockingChangeType    uint8 = 0x04
	LockingCancelLock    uint8 = 0x08
	LockingLargeFiles    uint8 = 0x10
)

// Lock timeouts in LOCKING_ANDX.
const (
	LockTimeoutNone     uint32 = 0
	LockTimeoutInfinite uint32 = 0xFFFFFFFF
)

// Oplock levels carried in LOCKING_ANDX NewOplockLevel.
const (
	OplockLevelNone uint8 = 0
	OplockLevelII   uint8 = 1
)

// OPEN / OPEN_ANDX AccessMode fields.
const (
	AccessModeMask     uint16 = 0x0007
	AccessRead         uint16 = 0x0000
	AccessWrite        uint16 = 0x0001
	AccessReadWrite    uint16 = 0x0002
	AccessExecute      uint16 = 0x0003
	SharingModeMask    uint16 = 0x0070
	SharingCompat      uint16 = 0x0000
	SharingDenyAll     uint16 = 0x0010
	SharingDenyWrite   uint16 = 0x0020
	SharingDenyRead    uint16 = 0x0030
	SharingDenyNone    uint16 = 0x0040
	AccessWriteThrough uint16 = 0x4000
)

// OPEN_ANDX OpenFunction bits.
const (
	OpenFuncFailIfExists uint16 = 0x0000
	OpenFuncOpenIfExists uint16 = 0x0001
	OpenFuncTruncate     uint16 = 0x0002
	OpenFuncExistsMask   uint16 = 0x0003
	OpenFuncCreate       uint16 = 0x0010
)

// OPEN_ANDX Flags.
const (
	OpenXAdditionalInfo uint16 = 0x0001
	OpenXOplock         uint16 = 0x0002
	OpenXBatchOplock    uint16 = 0x0004
)

// OPEN_ANDX Action.
const (
	OpenActionExisted   uint16 = 0x0001
	OpenActionCreated   uint16 = 0x0002
	OpenActionTruncated uint16 = 0x0003
	OpenActionOplock    uint16 = 0x8000
)

// WRITE_ANDX WriteMode bits.
const (
	WriteModeWriteThrough uint16 = 0x0001
	WriteModeRawMode      uint16 = 0x0008
)

// SEEK modes.
const (
	SeekFromStart   uint16 = 0
	SeekFromCurrent uint16 = 1
	SeekFromEnd     uint16 = 2
)

// Buffer format codes prefixing byte-area fields.
const (
	BufferFormatDataBlock uint8 = 0x01
	BufferFormatDialect   uint8 = 0x02
	BufferFormatPathname  uint8 = 0x03
	BufferFormatASCII     uint8 = 0x04
	BufferFormatVariable  uint8 = 0x05
)
