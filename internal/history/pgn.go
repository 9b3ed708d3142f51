package history

import (
	"fmt"
	"strings"
	"time"
)

const pliesPerLine = 6

// ExportPGN renders the ledger as a minimal PGN document. Labels are
// placeholders unless a SAN labeler is configured, so the result tag is
// always unknown.
func (l *Ledger) ExportPGN(date time.Time) string {
	if date.IsZero() {
		date = l.now()
	}
	var b strings.Builder
	b.WriteString("[Event \"Live Chess Detection\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%s\"]\n", date.Format("2006-01-02")))
	b.WriteString("[White \"Player\"]\n")
	b.WriteString("[Black \"Player\"]\n")
	b.WriteString("[Result \"*\"]\n\n")

	for i, mv := range l.moves {
		if mv.IsWhiteMove {
			b.WriteString(fmt.Sprintf("%d. ", mv.MoveNumber))
		}
		if label := strings.TrimSpace(mv.Notation); label != "" {
			b.WriteString(label)
			b.WriteByte(' ')
		}
		if i%pliesPerLine == pliesPerLine-1 {
			b.WriteByte('\n')
		}
	}
	b.WriteString("*")
	return b.String()
}

// PGNFilename is the download name used for an export on date.
func PGNFilename(date time.Time) string {
	return fmt.Sprintf("chess-game-%s.pgn", date.Format("2006-01-02"))
}
