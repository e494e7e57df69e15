// Package alert checks ingested readings against threshold rules and
// publishes a notification over MQTT for each rule crossed.
//
// Notifier.Check is wired as the ingest writer's post-commit hook, so it
// only sees readings that were actually stored.
package alert
