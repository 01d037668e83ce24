package console

import (
	"fmt"
	"io"
	"os"

	"github.com/ericogr/temprec/pkg/output"
	"github.com/ericogr/temprec/pkg/store"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout} }

func (c *ConsoleOutput) Publish(id string, m store.Measurement) error {
	_, err := fmt.Fprintf(c.w, "%s sensor=%s %s\n", m.Time.UTC().Format(store.TimeLayout), id, m.Reading)
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
