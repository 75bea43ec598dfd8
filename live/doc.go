// Package live decides which watched streamers are newly live.
//
// QueryEngine resolves watchlist logins to Helix users and asks which of them
// are broadcasting, merging user metadata into each stream record. Tracker
// holds the last observed live set and diffs every fresh poll against it so a
// streamer is announced once per live session.
//
// Tracker state lives only in memory. After a restart every streamer that is
// still live is announced again on the first cycle.
package live
