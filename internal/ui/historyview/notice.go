package historyview

import "github.com/zjrosen/lanes/internal/ui/styles"

// NoticeLevel is the severity of a status bar message.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarn
	NoticeError
)

// Notice is a message shown in the status bar until the next one replaces
// it. Services outside the view publish notices on a broker.
type Notice struct {
	Level NoticeLevel
	Text  string
}

// Render styles the notice by level.
func (n Notice) Render() string {
	switch n.Level {
	case NoticeWarn:
		return styles.WarnStyle.Render(n.Text)
	case NoticeError:
		return styles.ErrorStyle.Render(n.Text)
	default:
		return styles.InfoStyle.Render(n.Text)
	}
}
