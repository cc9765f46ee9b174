package tracing

// Span attribute keys.
const (
	AttrRepoPath   = "repo.path"
	AttrCommitID   = "commit.id"
	AttrFile       = "diff.file"
	AttrCached     = "diff.cached"
	AttrSkip       = "log.skip"
	AttrLimit      = "log.limit"
	AttrAll        = "log.all_branches"
	AttrNoMerges   = "log.no_merges"
	AttrForce      = "push.force"
	AttrResultSize = "result.size"
)

// SpanPrefixGit prefixes backend span names, e.g. "git.log".
const SpanPrefixGit = "git."
