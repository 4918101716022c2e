package notifier

import (
	"context"
	"fmt"
	"io"

	"github.com/zeromicro/go-zero/core/logx"
)

// Log is a dry-run Service: it logs the message and, when out is set, echoes
// it there. It never fails.
type Log struct {
	out io.Writer
}

// NewLog returns a dry-run notifier writing to out (may be nil).
func NewLog(out io.Writer) *Log {
	return &Log{out: out}
}

// Send implements Service.
func (l *Log) Send(ctx context.Context, text string) error {
	logx.WithContext(ctx).Infof("notifier: dry-run message=%q", text)
	if l.out != nil {
		fmt.Fprintln(l.out, text)
	}
	return nil
}
