package output

import (
	"errors"

	"github.com/ericogr/temprec/pkg/store"
)

// Output receives every measurement a sensor store records.
type Output interface {
	Publish(id string, m store.Measurement) error
	Close() error
}

// Fanout publishes to several outputs. One failing output does not keep the
// others from receiving the measurement.
type Fanout []Output

func (f Fanout) Publish(id string, m store.Measurement) error {
	var errs []error
	for _, o := range f {
		if err := o.Publish(id, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, o := range f {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
