// Package commands implements the keytrust CLI: inspecting the stored key
// directory, flipping trust flags, and generating signed device fixtures.
package commands
