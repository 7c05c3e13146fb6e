package types

import "fmt"

// Command is an SMB1 command opcode.
type Command uint8

const (
	SMBCreateDirectory   Command = 0x00
	SMBDeleteDirectory   Command = 0x01
	SMBOpen              Command = 0x02
	SMBCreate            Command = 0x03
	SMBClose             Command = 0x04
	SMBFlush             Command = 0x05
	SMBDelete            Command = 0x06
	SMBRename            Command = 0x07
	SMBQueryInformation  Command = 0x08
	SMBSetInformation    Command = 0x09
	SMBRead              Command = 0x0A
	SMBWrite             Command = 0x0B
	SMBLockByteRange     Command = 0x0C
	SMBUnlockByteRange   Command = 0x0D
	SMBCreateTemporary   Command = 0x0E
	SMBCreateNew         Command = 0x0F
	SMBCheckDirectory    Command = 0x10
	SMBProcessExit       Command = 0x11
	SMBSeek              Command = 0x12
	SMBLockAndRead       Command = 0x13
	SMBWriteAndUnlock    Command = 0x14
	SMBReadRaw           Command = 0x1A
	SMBReadMpx           Command = 0x1B
	SMBReadMpxSecondary  Command = 0x1C
	SMBWriteRaw          Command = 0x1D
	SMBWriteMpx          Command = 0x1E
	SMBWriteMpxSecondary Command = 0x1F
	SMBWriteComplete     Command = 0x20
	SMBSetInformation2   Command = 0x22
	SMBQueryInformation2 Command = 0x23
	SMBLockingAndX       Command = 0x24
	SMBCopy              Command = 0x29
	SMBEcho              Command = 0x2B
	SMBWriteAndClose     Command = 0x2C
	SMBOpenAndX          Command = 0x2D
	SMBReadAndX          Command = 0x2E
	SMBWriteAndX         Command = 0x2F
	SMBTreeConnect       Command = 0x70
	SMBTreeDisconnect    Command = 0x71
	SMBNegotiate         Command = 0x72
	SMBSessionSetupAndX  Command = 0x73
	SMBLogoffAndX        Command = 0x74
	SMBTreeConnectAndX   Command = 0x75
	SMBQueryInfoDisk     Command = 0x80
	SMBSearch            Command = 0x81
	SMBFind              Command = 0x82
	SMBFindUnique        Command = 0x83
	SMBFindClose         Command = 0x84
	SMBNTCancel          Command = 0xA4
	SMBNTRename          Command = 0xA5
	SMBOpenPrintFile     Command = 0xC0
	SMBWritePrintFile    Command = 0xC1
	SMBClosePrintFile    Command = 0xC2
	SMBGetPrintQueue     Command = 0xC3

	// SMBNoAndXCommand terminates an AndX chain.
	SMBNoAndXCommand Command = 0xFF
)

var commandNames = map[Command]string{
	SMBCreateDirectory:   "CREATE_DIRECTORY",
	SMBDeleteDirectory:   "DELETE_DIRECTORY",
	SMBOpen:              "OPEN",
	SMBCreate:            "CREATE",
	SMBClose:             "CLOSE",
	SMBFlush:             "FLUSH",
	SMBDelete:            "DELETE",
	SMBRename:            "RENAME",
	SMBQueryInformation:  "QUERY_INFORMATION",
	SMBSetInformation:    "SET_INFORMATION",
	SMBRead:              "READ",
	SMBWrite:             "WRITE",
	SMBLockByteRange:     "LOCK_BYTE_RANGE",
	SMBUnlockByteRange:   "UNLOCK_BYTE_RANGE",
	SMBCreateTemporary:   "CREATE_TEMPORARY",
	SMBCreateNew:         "CREATE_NEW",
	SMBCheckDirectory:    "CHECK_DIRECTORY",
	SMBProcessExit:       "PROCESS_EXIT",
	SMBSeek:              "SEEK",
	SMBLockAndRead:       "LOCK_AND_READ",
	SMBWriteAndUnlock:    "WRITE_AND_UNLOCK",
	SMBReadRaw:           "READ_RAW",
	SMBReadMpx:           "READ_MPX",
	SMBReadMpxSecondary:  "READ_MPX_SECONDARY",
	SMBWriteRaw:          "WRITE_RAW",
	SMBWriteMpx:          "WRITE_MPX",
	SMBWriteMpxSecondary: "WRITE_MPX_SECONDARY",
	SMBWriteComplete:     "WRITE_COMPLETE",
	SMBSetInformation2:   "SET_INFORMATION2",
	SMBQueryInformation2: "QUERY_INFORMATION2",
	SMBLockingAndX:       "LOCKING_ANDX",
	SMBCopy:              "COPY",
	SMBEcho:              "ECHO",
	SMBWriteAndClose:     "WRITE_AND_CLOSE",
	SMBOpenAndX:          "OPEN_ANDX",
	SMBReadAndX:          "READ_ANDX",
	SMBWriteAndX:         "WRITE_ANDX",
	SMBTreeConnect:       "TREE_CONNECT",
	SMBTreeDisconnect:    "TREE_DISCONNECT",
	SMBNegotiate:         "NEGOTIATE",
	SMBSessionSetupAndX:  "SESSION_SETUP_ANDX",
	SMBLogoffAndX:        "LOGOFF_ANDX",
	SMBTreeConnectAndX:   "TREE_CONNECT_ANDX",
	SMBQueryInfoDisk:     "QUERY_INFORMATION_DISK",
	SMBSearch:            "SEARCH",
	SMBFind:              "FIND",
	SMBFindUnique:        "FIND_UNIQUE",
	SMBFindClose:         "FIND_CLOSE",
	SMBNTCancel:          "NT_CANCEL",
	SMBNTRename:          "NT_RENAME",
	SMBOpenPrintFile:     "OPEN_PRINT_FILE",
	SMBWritePrintFile:    "WRITE_PRINT_FILE",
	SMBClosePrintFile:    "CLOSE_PRINT_FILE",
	SMBGetPrintQueue:     "GET_PRINT_QUEUE",
	SMBNoAndXCommand:     "NO_ANDX_COMMAND",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_0x%02X", uint8(c))
}
