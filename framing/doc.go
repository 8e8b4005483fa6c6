/*
Package framing offers the byte-stream framers used by the unicomm codecs.

	escaped    payload bytes with 0xFF/0xFE escaped, ended by 0xFF
	delimited  payload followed by a delimiter such as "\r\n\r\n"
	chunked    "\n#<size>\n" chunks ended by "\n##\n"

The split functions have the bufio.SplitFunc signature and can be used
with a *bufio.Scanner. They keep no state, so a decoder may hand them
the unread part of a growing buffer and retry after more input arrives.
Input ending other than at a frame boundary returns io.ErrUnexpectedEOF
when atEOF is set.
*/
package framing
