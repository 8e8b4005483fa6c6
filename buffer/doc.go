/*
Package buffer offers the lockable byte buffer each session uses for
inbound data.

A transport reader goroutine appends received bytes while the
dispatcher decodes and consumes them. Both sides hold a Lock while
they touch the data, so every Append and Consume is atomic to the
other:

	err := buf.With(func(l *buffer.Lock) error {
		msgs, n, err := codec.Decode(l.Bytes())
		...
		return l.Consume(n)
	})
*/
package buffer
