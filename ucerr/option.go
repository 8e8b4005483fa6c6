package ucerr

// Option is an Error option function
type Option func(*Error)

func WithMessage(msg string) Option { return func(e *Error) { e.Message = msg } }
func WithSession(id uint64) Option  { return func(e *Error) { e.SessionID = id } }
func WithOffset(off int) Option     { return func(e *Error) { e.Offset = off } }
func WithContext(ctx string) Option { return func(e *Error) { e.Context = ctx } }
func WithCause(err error) Option    { return func(e *Error) { e.Cause = err } }

func WithMessageID(id uint32) Option {
	return func(e *Error) { e.MessageID = &id }
}
