// Package commands implements the mapper-log CLI commands.
package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/log"
)

// FilterOptions are the textual filter flags shared by the commands.
type FilterOptions struct {
	DeviceID  string
	Signal    string
	Layer     string
	Category  string
	TimeStart string
	TimeEnd   string
}

// Build converts the options to a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{
		DeviceID: o.DeviceID,
		Signal:   o.Signal,
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if o.Layer != "" {
		l, err := ParseLayer(o.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}
	if o.Category != "" {
		c, err := ParseCategory(o.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	return filter, nil
}

var layers = []log.Layer{log.LayerRegistry, log.LayerRouter, log.LayerLifecycle, log.LayerNetwork, log.LayerHost}

var categories = []log.Category{log.CategoryBinding, log.CategoryValue, log.CategoryInstance, log.CategoryState, log.CategoryError}

// ParseLayer parses a layer name, case-insensitively.
func ParseLayer(s string) (log.Layer, error) {
	for _, l := range layers {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown layer: %s (valid: registry, router, lifecycle, network, host)", s)
}

// ParseCategory parses a category name, case-insensitively.
func ParseCategory(s string) (log.Category, error) {
	for _, c := range categories {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category: %s (valid: binding, value, instance, state, error)", s)
}
