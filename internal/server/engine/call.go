package engine

// ArgKind is the declared type of one positional command argument. The
// catalog entry's Args slice is the command's argument schema; Invoke
// rejects a call whose arguments do not match before opening a transaction.
type ArgKind int

const (
	ArgString ArgKind = iota
	ArgBytes
	ArgUint32
	ArgInt64
	// ArgOptUint32 accepts a uint32 or nil (an absent optional reference,
	// e.g. a message reply target).
	ArgOptUint32
)

func checkArgs(schema []ArgKind, args []any) error {
	if len(args) != len(schema) {
		return ErrBadArguments
	}
	for i, kind := range schema {
		switch kind {
		case ArgString:
			if _, ok := args[i].(string); !ok {
				return ErrBadArguments
			}
		case ArgBytes:
			if _, ok := args[i].([]byte); !ok {
				return ErrBadArguments
			}
		case ArgUint32:
			if _, ok := args[i].(uint32); !ok {
				return ErrBadArguments
			}
		case ArgInt64:
			if _, ok := args[i].(int64); !ok {
				return ErrBadArguments
			}
		case ArgOptUint32:
			if args[i] == nil {
				continue
			}
			if _, ok := args[i].(uint32); !ok {
				return ErrBadArguments
			}
		}
	}
	return nil
}

// Call carries one validated invocation: the submitting connection identity
// and the positional arguments. The typed accessors assume the schema check
// has already passed.
type Call struct {
	Conn Conn
	Args []any
}

func (c *Call) String(i int) string { return c.Args[i].(string) }

func (c *Call) Bytes(i int) []byte { return c.Args[i].([]byte) }

func (c *Call) Uint32(i int) uint32 { return c.Args[i].(uint32) }

func (c *Call) Int64(i int) int64 { return c.Args[i].(int64) }

// OptUint32 returns the optional argument and whether it was present.
func (c *Call) OptUint32(i int) (uint32, bool) {
	if c.Args[i] == nil {
		return 0, false
	}
	return c.Args[i].(uint32), true
}
