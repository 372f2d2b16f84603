package media

import "fmt"

// Operation is the closed set of filesystem actions a plan can contain.
type Operation int

const (
	OpRename Operation = iota + 1
	OpSubtitleRename
	OpAudioRename
	OpPictureRename
	OpNFODelete
)

// Operations lists every operation in execution order.
func Operations() []Operation {
	return []Operation{OpRename, OpSubtitleRename, OpAudioRename, OpPictureRename, OpNFODelete}
}

func (o Operation) String() string {
	switch o {
	case OpRename:
		return "rename"
	case OpSubtitleRename:
		return "subtitle_rename"
	case OpAudioRename:
		return "audio_rename"
	case OpPictureRename:
		return "picture_rename"
	case OpNFODelete:
		return "nfo_delete"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// ParseOperation is the inverse of String.
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations() {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// Valid reports whether o is one of the defined operations.
func (o Operation) Valid() bool {
	return o >= OpRename && o <= OpNFODelete
}

// Reversible reports whether a rollback can undo o.
func (o Operation) Reversible() bool {
	switch o {
	case OpRename, OpSubtitleRename, OpAudioRename, OpPictureRename:
		return true
	case OpNFODelete:
		return false
	default:
		return false
	}
}

// Phase orders execution: videos, then their sidecars, then metadata deletes.
func (o Operation) Phase() int {
	switch o {
	case OpRename:
		return 0
	case OpSubtitleRename, OpAudioRename, OpPictureRename:
		return 1
	case OpNFODelete:
		return 2
	default:
		return 3
	}
}

func (o Operation) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid operation %d", int(o))
	}
	return []byte(o.String()), nil
}

func (o *Operation) UnmarshalText(b []byte) error {
	op, err := ParseOperation(string(b))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// OperationFor returns the rename operation for a file kind.
func OperationFor(k Kind) (Operation, bool) {
	switch k {
	case KindVideo:
		return OpRename, true
	case KindSubtitle:
		return OpSubtitleRename, true
	case KindAudio:
		return OpAudioRename, true
	case KindPicture:
		return OpPictureRename, true
	case KindNFO:
		return OpNFODelete, true
	default:
		return 0, false
	}
}
