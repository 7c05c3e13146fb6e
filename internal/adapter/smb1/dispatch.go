package smb1

import (
	"context"

	"github.com/marmos91/dittosmb/internal/adapter/smb1/handlers"
	"github.com/marmos91/dittosmb/internal/adapter/smb1/types"
)

// HandlerResult is an alias for the handlers.HandlerResult type
type HandlerResult = handlers.HandlerResult

// CommandHandler is the signature for SMB1 command handlers. It has the
// shape of a handlers.Handler method expression.
type CommandHandler func(h *handlers.Handler, ctx context.Context, req *handlers.Request) *HandlerResult

// Command metadata
type Command struct {
	Name         string
	Handler      CommandHandler
	NeedsSession bool // Requires a valid UID
	NeedsTree    bool // Requires a valid TID
	AndX         bool // Parameter block starts with an AndX header
}

// DispatchTable maps SMB1 command codes to handlers
var DispatchTable map[types.Command]*Command

// obsoleteCommands are the multiplexed transfer commands. Clients are told
// to fall back to the standard ones.
var obsoleteCommands = map[types.Command]bool{
	types.SMBReadMpx:           true,
	types.SMBReadMpxSecondary:  true,
	types.SMBWriteMpx:          true,
	types.SMBWriteMpxSecondary: true,
}

func init() {
	DispatchTable = map[types.Command]*Command{
		types.SMBNegotiate: {
			Name:    "NEGOTIATE",
			Handler: (*handlers.Handler).Negotiate,
		},
		types.SMBSessionSetupAndX: {
			Name:    "SESSION_SETUP_ANDX",
			Handler: (*handlers.Handler).SessionSetupAndX,
			AndX:    true,
		},
		types.SMBLogoffAndX: {
			Name:         "LOGOFF_ANDX",
			Handler:      (*handlers.Handler).LogoffAndX,
			NeedsSession: true,
			AndX:         true,
		},
		types.SMBTreeConnect: {
			Name:         "TREE_CONNECT",
			Handler:      (*handlers.Handler).TreeConnect,
			NeedsSession: true,
		},
		types.SMBTreeConnectAndX: {
			Name:         "TREE_CONNECT_ANDX",
			Handler:      (*handlers.Handler).TreeConnectAndX,
			NeedsSession: true,
			AndX:         true,
		},
		types.SMBTreeDisconnect: {
			Name:         "TREE_DISCONNECT",
			Handler:      (*handlers.Handler).TreeDisconnect,
			NeedsSession: true,
			NeedsTree:    true,
		},
		types.SMBEcho: {
			Name:    "ECHO",
			Handler: (*handlers.Handler).Echo,
		},
		types.SMBNTCancel: {
			Name:    "NT_CANCEL",
			Handler: (*handlers.Handler).NTCancel,
		},
		types.SMBProcessExit: {
			Name:         "PROCESS_EXIT",
			Handler:      (*handlers.Handler).ProcessExit,
			NeedsSession: true,
		},

		// Directories and names
		types.SMBCreateDirectory: treeCommand("CREATE_DIRECTORY", (*handlers.Handler).CreateDirectory),
		types.SMBDeleteDirectory: treeCommand("DELETE_DIRECTORY", (*handlers.Handler).DeleteDirectory),
		types.SMBCheckDirectory:  treeCommand("CHECK_DIRECTORY", (*handlers.Handler).CheckDirectory),
		types.SMBDelete:          treeCommand("DELETE", (*handlers.Handler).Delete),
		types.SMBRename:          treeCommand("RENAME", (*handlers.Handler).Rename),
		types.SMBNTRename:        treeCommand("NT_RENAME", (*handlers.Handler).NTRename),
		types.SMBCopy:            treeCommand("COPY", (*handlers.Handler).Copy),

		// Attributes
		types.SMBQueryInformation:  treeCommand("QUERY_INFORMATION", (*handlers.Handler).QueryInformation),
		types.SMBSetInformation:    treeCommand("SET_INFORMATION", (*handlers.Handler).SetInformation),
		types.SMBQueryInformation2: treeCommand("QUERY_INFORMATION2", (*handlers.Handler).QueryInformation2),
		types.SMBSetInformation2:   treeCommand("SET_INFORMATION2", (*handlers.Handler).SetInformation2),
		types.SMBQueryInfoDisk:     treeCommand("QUERY_INFORMATION_DISK", (*handlers.Handler).QueryInformationDisk),

		// Opening and closing
		types.SMBOpen:            treeCommand("OPEN", (*handlers.Handler).Open),
		types.SMBCreate:          treeCommand("CREATE", (*handlers.Handler).Create),
		types.SMBCreateNew:       treeCommand("CREATE_NEW", (*handlers.Handler).CreateNew),
		types.SMBCreateTemporary: treeCommand("CREATE_TEMPORARY", (*handlers.Handler).CreateTemporary),
		types.SMBOpenAndX:        andXCommand("OPEN_ANDX", (*handlers.Handler).OpenAndX),
		types.SMBClose:           treeCommand("CLOSE", (*handlers.Handler).Close),
		types.SMBFlush:           treeCommand("FLUSH", (*handlers.Handler).Flush),
		types.SMBSeek:            treeCommand("SEEK", (*handlers.Handler).Seek),

		// Data transfer
		types.SMBRead:           treeCommand("READ", (*handlers.Handler).Read),
		types.SMBReadAndX:       andXCommand("READ_ANDX", (*handlers.Handler).ReadAndX),
		types.SMBReadRaw:        treeCommand("READ_RAW", (*handlers.Handler).ReadRaw),
		types.SMBLockAndRead:    treeCommand("LOCK_AND_READ", (*handlers.Handler).LockAndRead),
		types.SMBWrite:          treeCommand("WRITE", (*handlers.Handler).Write),
		types.SMBWriteAndX:      andXCommand("WRITE_ANDX", (*handlers.Handler).WriteAndX),
		types.SMBWriteRaw:       treeCommand("WRITE_RAW", (*handlers.Handler).WriteRaw),
		types.SMBWriteAndUnlock: treeCommand("WRITE_AND_UNLOCK", (*handlers.Handler).WriteAndUnlock),
		types.SMBWriteAndClose:  treeCommand("WRITE_AND_CLOSE", (*handlers.Handler).WriteAndClose),

		// Byte-range locks and oplock acknowledgments
		types.SMBLockByteRange:   treeCommand("LOCK_BYTE_RANGE", (*handlers.Handler).LockByteRange),
		types.SMBUnlockByteRange: treeCommand("UNLOCK_BYTE_RANGE", (*handlers.Handler).UnlockByteRange),
		types.SMBLockingAndX:     andXCommand("LOCKING_ANDX", (*handlers.Handler).LockingAndX),

		// Searches
		types.SMBSearch:     treeCommand("SEARCH", (*handlers.Handler).Search),
		types.SMBFind:       treeCommand("FIND", (*handlers.Handler).Find),
		types.SMBFindUnique: treeCommand("FIND_UNIQUE", (*handlers.Handler).FindUnique),
		types.SMBFindClose:  treeCommand("FIND_CLOSE", (*handlers.Handler).FindClose),

		// Printing
		types.SMBOpenPrintFile:  treeCommand("OPEN_PRINT_FILE", (*handlers.Handler).OpenPrintFile),
		types.SMBWritePrintFile: treeCommand("WRITE_PRINT_FILE", (*handlers.Handler).WritePrintFile),
		types.SMBClosePrintFile: treeCommand("CLOSE_PRINT_FILE", (*handlers.Handler).ClosePrintFile),
		types.SMBGetPrintQueue:  treeCommand("GET_PRINT_QUEUE", (*handlers.Handler).GetPrintQueue),
	}
}

// treeCommand describes a command that runs against a mounted tree.
func treeCommand(name string, fn CommandHandler) *Command {
	return &Command{Name: name, Handler: fn, NeedsSession: true, NeedsTree: true}
}

// andXCommand describes a tree command that can be chained.
func andXCommand(name string, fn CommandHandler) *Command {
	c := treeCommand(name, fn)
	c.AndX = true
	return c
}

// Lookup returns the dispatch entry for cmd.
func Lookup(cmd types.Command) (*Command, bool) {
	c, ok := DispatchTable[cmd]
	return c, ok
}
