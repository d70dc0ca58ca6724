package bmqt

import "fmt"

// QueueMode is the access mode requested when opening a queue.
type QueueMode int

const (
	QueueModeAdmin QueueMode = iota
	QueueModeRead
	QueueModeWrite
	QueueModeReadWrite
)

// QueueFlags are the bit flags understood by the native layer.
type QueueFlags uint64

const (
	QueueFlagAdmin QueueFlags = 1 << iota
	QueueFlagRead
	QueueFlagWrite
	QueueFlagAck

	validQueueFlags = QueueFlagAdmin | QueueFlagRead | QueueFlagWrite | QueueFlagAck
)

func (m QueueMode) String() string {
	switch m {
	case QueueModeAdmin:
		return "ADMIN"
	case QueueModeRead:
		return "READ"
	case QueueModeWrite:
		return "WRITE"
	case QueueModeReadWrite:
		return "READ_WRITE"
	default:
		return fmt.Sprintf("QueueMode(%d)", int(m))
	}
}

// Flags returns the native flag set for the mode. Writers always request acks.
func (m QueueMode) Flags() QueueFlags {
	switch m {
	case QueueModeAdmin:
		return QueueFlagAdmin
	case QueueModeRead:
		return QueueFlagRead
	case QueueModeWrite:
		return QueueFlagWrite | QueueFlagAck
	case QueueModeReadWrite:
		return QueueFlagRead | QueueFlagWrite | QueueFlagAck
	default:
		return 0
	}
}

func (m QueueMode) CanRead() bool  { return m == QueueModeRead || m == QueueModeReadWrite }
func (m QueueMode) CanWrite() bool { return m == QueueModeWrite || m == QueueModeReadWrite }

func (f QueueFlags) Has(flag QueueFlags) bool { return f&flag == flag }

// Valid reports whether the set is non-empty, carries no unknown bits, and does not mix
// admin access with data access.
func (f QueueFlags) Valid() bool {
	if f == 0 || f&^validQueueFlags != 0 {
		return false
	}

	if f.Has(QueueFlagAdmin) && f&(QueueFlagRead|QueueFlagWrite) != 0 {
		return false
	}

	return true
}

func (f QueueFlags) String() string {
	names := []struct {
		flag QueueFlags
		name string
	}{
		{QueueFlagAdmin, "ADMIN"},
		{QueueFlagRead, "READ"},
		{QueueFlagWrite, "WRITE"},
		{QueueFlagAck, "ACK"},
	}

	out := ""
	for _, n := range names {
		if f.Has(n.flag) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}

	if out == "" {
		return "NONE"
	}

	return out
}
