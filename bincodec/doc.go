/*
Package bincodec implements the unicomm binary message codec.

Each message body is a header followed by the payload:

	version(1) header_len(1) flags(1) id(4, big endian) [seq(8)] [reply_to(8)]

flags bit 0x01 marks a seq field and 0x02 a reply_to field; header_len
counts every header byte. The body is then framed, by default with
escaped framing (see package framing).
*/
package bincodec
