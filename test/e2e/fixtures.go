// Package e2e exercises the whole system the way a user would: transcript
// files on disk, directory ingestion, and ranked retrieval.
package e2e

// transcripts is a small corpus of plain-text transcript excerpts. Each entry
// has distinctive vocabulary so ranking assertions are unambiguous.
var transcripts = map[string]string{
	"gc.txt": `Today we talk about garbage collection. The collector scans the heap,
marks reachable objects, and sweeps the rest. Generational collectors split the
heap into young and old regions because most objects die young.`,

	"sqlite.txt": `SQLite keeps the entire database in a single file. Writers take a
lock on the whole file, so concurrent writers queue behind each other. The WAL
mode relaxes this by appending changes to a write-ahead log.`,

	"raft.txt": `Raft elects a leader, and the leader replicates a log of commands
to its followers. When a majority acknowledges an entry, it is committed. If the
leader fails, followers time out and start a new election.`,

	"embeddings.txt": `An embedding model maps text into a dense vector space where
semantic similarity becomes geometric closeness. Nearest neighbor search over
these vectors finds related passages even without shared vocabulary.`,
}
