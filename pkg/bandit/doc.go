// Package bandit is a client for the Bandit job platform.
//
// A Client works in one of two modes. With a username, API key and server
// URL (from Options or the BANDIT_CLIENT_* environment variables) it talks
// to the server. Without them every network operation prints what it would
// have done and succeeds, so the same script runs on a laptop and inside a
// worker container.
//
// Inside a worker, BANDIT_JOB_ID identifies the running job. Metric points
// are then appended to /job/metadata/charts.ndjson before being sent, and
// metadata is written through to /job/metadata/metadata.json.
package bandit
