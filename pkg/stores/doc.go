// Package stores provides the persistence layer (the ledger) for managed
// hosts, tracked tasks, provisioning workflows, workflow logs, and per-host
// command logs. The SQLite implementation keeps every write immediately
// durable; host credentials are encrypted at rest by an injected cipher.
package stores
