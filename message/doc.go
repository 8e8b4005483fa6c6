/*
Package message defines the unicomm message envelope and the codec
contract every wire format implements.

Codecs are pure: Encode maps a Message to framed bytes and Decode maps
a byte prefix to zero or more Messages plus the count of bytes used.
Sessions keep the unconsumed remainder and present it again with the
next read, so frames may arrive split at any byte.
*/
package message
