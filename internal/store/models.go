package store

import (
	"strings"
	"time"

	"github.com/zjrosen/lanes/internal/git"
)

// CommitModel is a row of the commits table.
type CommitModel struct {
	Position int
	ID       string
	Author   string
	Date     string // RFC 3339 with the author's offset
	Message  string
	Parents  string // space separated
}

func toCommitModel(pos int, c git.Commit) CommitModel {
	return CommitModel{
		Position: pos,
		ID:       c.ID,
		Author:   c.Author,
		Date:     c.Date.Format(time.RFC3339Nano),
		Message:  c.Message,
		Parents:  strings.Join(c.Parents, " "),
	}
}

func (m CommitModel) toCommit() (git.Commit, error) {
	date, err := time.Parse(time.RFC3339Nano, m.Date)
	if err != nil {
		return git.Commit{}, err
	}
	return git.Commit{
		ID:      m.ID,
		Author:  m.Author,
		Date:    date,
		Message: m.Message,
		Parents: strings.Fields(m.Parents),
	}, nil
}
