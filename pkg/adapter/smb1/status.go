package smb1

import (
	"github.com/marmos91/dittosmb/pkg/api/handlers"
)

// Ready reports whether the listener is accepting connections.
func (a *Adapter) Ready() bool {
	select {
	case <-a.Shutdown:
		return false
	default:
	}
	select {
	case <-a.ListenerReady:
		return true
	default:
		return false
	}
}

// Shares lists the exported shares, IPC$ included.
func (a *Adapter) Shares() []handlers.ShareStatus {
	shares := a.handler.Shares()
	out := make([]handlers.ShareStatus, 0, len(shares))
	for _, s := range shares {
		out = append(out, handlers.ShareStatus{
			Name:     s.Name,
			Service:  s.Service(),
			Comment:  s.Comment,
			ReadOnly: s.ReadOnly,
			GuestOK:  s.GuestOK,
		})
	}
	return out
}

// Stats returns current connection, open file and pending lock counts.
func (a *Adapter) Stats() handlers.Stats {
	return handlers.Stats{
		ServerName:        a.handler.ServerName,
		StartTime:         a.handler.StartTime,
		ActiveConnections: a.GetActiveConnections(),
		OpenFiles:         a.handler.Opens.Len(),
		PendingLocks:      a.handler.Locks.Pending(),
	}
}

var _ handlers.Source = (*Adapter)(nil)
