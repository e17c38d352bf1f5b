// Package ingest turns one named image artifact into an index entry.
//
// Artifact names follow OOOCCCCCCCCCCCRRRRRRRRRRRNAME.ext: a three digit
// origin code, an eleven digit CPF, an eleven digit RG and the display name
// with underscores for spaces. The pipeline parses the name, extracts an
// embedding, inserts it with its record and persists the index. Every
// failure is reported as a Rejected outcome; nothing is thrown past the
// pipeline boundary.
package ingest
