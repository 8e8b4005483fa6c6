// Package config holds the options a communicator is built from and
// loads them from TOML files:
//
//	handshake_timeout = "5s"
//	max_sessions = 100
//	reply_policy = "strict"
//
//	[codec]
//	name = "binary"
//	params = { framing = "chunked", max_chunk_size = "4096" }
//
//	[replies]
//	ready = [10, 11]
//
//	[handshake]
//	send = [1, 2]
//	expect = [1, 2]
package config
