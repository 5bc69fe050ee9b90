// Package source finds and reads component source files for the command
// line tools. Files are sniffed with mimetype, converted to UTF-8 when
// chardet reports another encoding, and collected with doublestar patterns
// over a fastwalk traversal.
package source
