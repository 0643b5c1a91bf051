// Package redis provides the Redis adapters for xport.
//
// Technology name: "redis". One package serves three contexts:
//
//   - database: each book is a hash under "<prefix>:book:<isbn>", indexed by the set
//     "<prefix>:books". Units of work stage saves and apply them with WATCH/MULTI/EXEC,
//     failing with library.ErrBookAlreadyExists when an ISBN is taken.
//   - interface: a consumer group on a command stream. Each entry carries a "name"
//     (register, read, books, isbn, name, author) and a JSON "payload". Entries with a
//     "reply_to" field get the command result appended to that stream.
//   - sender: notifications are appended to a stream with XADD.
//
// Config keys (REDIS_* in the environment):
//   - addr: "host:port" (default "127.0.0.1:6379")
//   - key_prefix: namespace for database keys (default "library")
//   - stream: command stream (default "library:commands")
//   - group / consumer: consumer group identity (default "xport", "xport-<host>-<pid>")
//   - concurrency: workers per interface (default 4)
//   - batch_size, block: XREADGROUP COUNT and BLOCK (default 64, 2s)
//   - dead_letter: stream that receives entries whose command failed (optional)
//   - notify_stream: sender stream (default "library:notifications")
//   - max_len_approx: approximate trimming for streams written by this package
package redis
