package protocol

// This package implements parsing and serialising of the packets exchanged with
// a strongSwan daemon over its VICI management socket.
//
// The protocol is a simple, length prefixed binary format that
//
// - is cheap to parse incrementally, the length prefix tells us if a frame is complete
// - carries a tree of key/values, sections and lists
// - multiplexes command replies and events over the same stream
//
// - `Packet`  - A single frame. It has a type, an optional name and a message body.
// - `Message` - An ordered tree of attributes. Keys bind values, sections or lists.
// - `Command` - A client request (CMD_REQUEST) answered by exactly one CMD_RESPONSE,
//               or CMD_UNKNOWN if the daemon does not know the command.
// - `Event`   - An unsolicited EVENT packet the daemon pushes to clients that have
//               registered for it.
//
// === Framing
//
//   ```
//   <len:u32 big-endian><type:u8>[<namelen:u8><name>]<elements...>
//   ```
//
// `len` counts everything after the prefix. A name follows the type byte for the
// named packet types only: CMD_REQUEST, EVENT_REGISTER, EVENT_UNREGISTER and EVENT.
//
// === Packet types
//
//   ```
//   0 CMD_REQUEST       named   client -> daemon
//   1 CMD_RESPONSE              daemon -> client
//   2 CMD_UNKNOWN               daemon -> client
//   3 EVENT_REGISTER    named   client -> daemon
//   4 EVENT_UNREGISTER  named   client -> daemon
//   5 EVENT_CONFIRM             daemon -> client
//   6 EVENT_UNKNOWN             daemon -> client
//   7 EVENT             named   daemon -> client
//   ```
//
// The daemon answers requests strictly in the order they were sent and a client
// only ever has one request outstanding. Events can arrive at any time, including
// between a request and its response, but a frame is atomic: you will never receive
// half of a response, then an event, then the rest of the response.
//
// === Message elements
//
//   ```
//   1 SECTION_START  <namelen:u8><name>
//   2 SECTION_END
//   3 KEY_VALUE      <keylen:u8><key><valuelen:u16><value>
//   4 LIST_START     <namelen:u8><name>
//   5 LIST_ITEM      <valuelen:u16><value>
//   6 LIST_END
//   ```
//
// Lists only hold plain values, never sections.
//
// For example a `list-policies` command asking for trap policies
//
//   ```
//   00 00 00 1a  00  0d "list-policies"  03 04 "trap" 00 03 "yes"
//   ```
//
// === Decoding
//
// ReadPacket works on whatever has been read so far. When the buffer holds less
// than a complete frame it returns ErrNeedMoreData and consumes nothing, so a
// caller reading from a non-blocking socket keeps the partial bytes around and
// tries again after the next read.
