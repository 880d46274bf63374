package es

import "log/slog"

// Version is the position of an event within its stream. It increases
// monotonically starting at 1 for the first event and equals the total
// count of events ever appended to the stream.
//
// Version drives optimistic concurrency control: an append must state
// the version it expects the stream to be at, and fails with a
// [ConcurrencyError] when the stream has moved on.
type Version int64

// AnyVersion skips the optimistic concurrency check on append.
const AnyVersion Version = -1

func (v Version) Int64() int64                           { return int64(v) }
func (v Version) SlogAttr() slog.Attr                    { return newSlogVersionAttr("version", v) }
func (v Version) SlogAttrWithKey(key string) slog.Attr   { return newSlogVersionAttr(key, v) }
func newSlogVersionAttr(key string, v Version) slog.Attr { return slog.Int64(key, int64(v)) }
