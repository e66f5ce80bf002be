// Package record defines the data model shared by the local store, the
// sync engine, and the remote backend adapter.
//
// Three record kinds exist:
//
//   - Entry: a single timestamped attendance event (entry or exit)
//   - Person: a registrant with identity and academic/contact metadata
//   - QueueItem: a pending mutation awaiting remote application
//
// Records carry a SyncState lifecycle tag (pending, synced, failed)
// tracking the outcome of remote application. Identifiers are opaque
// strings of the form "<kind>_<epoch-millis>_<random-suffix>"; Person
// identifiers are assigned by the caller before any store write so the
// same identifier is usable locally and remotely.
//
// Date and time fields are locale-formatted strings (day/month/year,
// 24h clock) because that is the format the remote spreadsheet rows and
// the QR scan payload use. DateLayout and TimeLayout are the only
// accepted layouts.
package record
