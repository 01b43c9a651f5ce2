// Package report generates markdown reports of monit instances and events.
package report

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/user/monitoring/internal/model"
	"github.com/user/monitoring/internal/storage"
	"github.com/user/monitoring/internal/util"
)

// Generator creates reports from the database.
type Generator struct {
	db     *storage.DB
	config *util.Config
}

// NewGenerator creates a new report generator.
func NewGenerator(db *storage.DB, cfg *util.Config) *Generator {
	return &Generator{
		db:     db,
		config: cfg,
	}
}

// InstanceReport is one monit instance with the latest state of its services.
type InstanceReport struct {
	Instance model.MonitInstance
	Services []model.ServiceRow
	Failing  int
}

// ReportData holds all data for a report.
type ReportData struct {
	GeneratedAt time.Time
	Since       time.Time
	Until       time.Time

	Instances []InstanceReport

	EventCounts map[model.ServiceType]int
	EventTotal  int
	Timeline    []model.TimelineEntry

	IncludeDiagram bool
}

// Generate collects report data for the time range in opts.
func (g *Generator) Generate(ctx context.Context, opts model.ReportOptions) (*ReportData, error) {
	if opts.Until.IsZero() {
		opts.Until = time.Now()
	}
	if opts.Until.Before(opts.Since) {
		return nil, errors.Errorf("report window ends before it starts (%s < %s)",
			opts.Until.Format(time.RFC3339), opts.Since.Format(time.RFC3339))
	}

	data := &ReportData{
		GeneratedAt:    time.Now(),
		Since:          opts.Since,
		Until:          opts.Until,
		IncludeDiagram: opts.IncludeDiagram,
	}

	instances, err := storage.NewMonitStorage(g.db).List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list monit instances")
	}

	services := storage.NewServiceStorage(g.db)
	for _, inst := range instances {
		rows, err := services.Latest(ctx, inst.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load services of %s", inst.LocalHostname)
		}
		ir := InstanceReport{Instance: inst, Services: rows}
		for _, r := range rows {
			if r.Status != 0 {
				ir.Failing++
			}
		}
		data.Instances = append(data.Instances, ir)
	}

	events := storage.NewEventStorage(g.db)
	since, until := opts.Since.Unix(), opts.Until.Unix()

	if data.EventCounts, err = events.CountByType(ctx, since, until); err != nil {
		return nil, err
	}
	for _, n := range data.EventCounts {
		data.EventTotal += n
	}

	if opts.IncludeEvents {
		if data.Timeline, err = events.Timeline(ctx, since, until, model.ServiceTypes()); err != nil {
			return nil, err
		}
	}

	return data, nil
}
