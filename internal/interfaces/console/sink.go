package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"xtrader/internal/application/port"
)

type Sink struct {
	out io.Writer
}

func NewSink() port.Sink { return &Sink{out: os.Stdout} }

// NewWriterSink writes to w instead of stdout.
func NewWriterSink(w io.Writer) port.Sink { return &Sink{out: w} }

func (s *Sink) WriteSnapshot(ts time.Time, line string) error {
	_, err := fmt.Fprintf(s.out, "%s %s\n", ts.Format("2006-01-02 15:04:05"), line)
	return err
}

func (s *Sink) NewLine() error {
	_, err := fmt.Fprint(s.out, "\n")
	return err
}
