// Package script holds the script unit registry and helpers for writing
// units. Base supplies pass-through metadata hooks so a unit only needs to
// declare its ports and implement Process.
package script
