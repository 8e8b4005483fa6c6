/*
Package xmlcodec implements the unicomm XML message codec.

A message is encoded as

	<message id="7" seq="3" rid="2">payload</message>\r\n\r\n

with seq and rid present only when set. Payloads that are not valid
XML text are base64 encoded and marked with encoding="base64".
*/
package xmlcodec
